// Package cohort construit la matrice de rétention par cohorte d'acquisition
// et la LTV mensuelle par cohorte.
package cohort

import (
	"time"

	"retail-analytics/pkg/idset"
	"retail-analytics/pkg/models"

	"github.com/RoaringBitmap/roaring"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("retail")

const source = "cohort"

// Cohort regroupe les clients dont le premier achat tombe dans le même mois.
// Cells couvre les périodes 0..(dernier mois observé − mois de cohorte) ; au-delà, rien n'est émis.
type Cohort struct {
	Month time.Time           `json:"month"`
	Label string              `json:"label"`
	Size  int                 `json:"size"`
	Cells []models.CohortCell `json:"cells"`
}

// Matrix est la matrice cohorte × période.
type Matrix struct {
	Cohorts   []Cohort       `json:"cohorts"`
	LastMonth time.Time      `json:"last_month"`
	Issues    []models.Issue `json:"issues,omitempty"`
}

// Cells aplatit la matrice, cohorte par cohorte puis période croissante.
func (m Matrix) Cells() []models.CohortCell {
	var out []models.CohortCell
	for _, c := range m.Cohorts {
		out = append(out, c.Cells...)
	}
	return out
}

// Lookup retourne la cellule (cohorte, période) ; false si elle n'est pas encore observable.
func (m Matrix) Lookup(cohortMonth string, period int) (models.CohortCell, bool) {
	for _, c := range m.Cohorts {
		if c.Label != cohortMonth {
			continue
		}
		if period < 0 || period >= len(c.Cells) {
			return models.CohortCell{}, false
		}
		return c.Cells[period], true
	}
	return models.CohortCell{}, false
}

// Build construit la matrice de rétention. Seuls les clients identifiés sont pris en compte.
func Build(txs []models.Transaction) Matrix {
	customers := idset.NewDictionary()
	first := make(map[uint32]time.Time)
	var last time.Time
	for _, tx := range txs {
		m := monthStart(tx.Timestamp)
		if m.After(last) {
			last = m
		}
		if !tx.HasCustomer() {
			continue
		}
		id := customers.ID(tx.CustomerID)
		if f, ok := first[id]; !ok || m.Before(f) {
			first[id] = m
		}
	}

	var mx Matrix
	mx.LastMonth = last
	if len(first) == 0 {
		mx.Issues = append(mx.Issues, models.Warning(source, "no_customers", 0, "no identified customer to build cohorts"))
		return mx
	}

	members := make(map[time.Time]*roaring.Bitmap)
	active := make(map[time.Time]*roaring.Bitmap)
	revenue := make(map[time.Time]map[time.Time]float64) // cohorte → mois → CA
	for _, tx := range txs {
		if !tx.HasCustomer() {
			continue
		}
		id, _ := customers.Lookup(tx.CustomerID)
		c := first[id]
		m := monthStart(tx.Timestamp)
		bitmapFor(members, c).Add(id)
		bitmapFor(active, m).Add(id)
		if revenue[c] == nil {
			revenue[c] = make(map[time.Time]float64)
		}
		revenue[c][m] += tx.Revenue()
	}

	for _, c := range monthsBetweenInclusive(earliest(members), last) {
		set, ok := members[c]
		if !ok {
			continue
		}
		size := int(set.GetCardinality())
		co := Cohort{Month: c, Label: c.Format("2006-01"), Size: size}
		cumulative := 0.0
		for p, m := range monthsBetweenInclusive(c, last) {
			retained := 0
			if act, ok := active[m]; ok {
				retained = int(roaring.And(set, act).GetCardinality())
			}
			rev := revenue[c][m]
			cumulative += rev
			co.Cells = append(co.Cells, models.CohortCell{
				CohortMonth:       co.Label,
				PeriodIndex:       p,
				RetainedCustomers: retained,
				RetentionRate:     float64(retained) / float64(size),
				Revenue:           rev,
				CumulativeLTV:     cumulative / float64(size),
			})
		}
		mx.Cohorts = append(mx.Cohorts, co)
	}
	log.Debugf("cohort: %d cohortes, dernier mois %s", len(mx.Cohorts), last.Format("2006-01"))
	return mx
}

func bitmapFor(m map[time.Time]*roaring.Bitmap, k time.Time) *roaring.Bitmap {
	bm, ok := m[k]
	if !ok {
		bm = roaring.New()
		m[k] = bm
	}
	return bm
}

func earliest(m map[time.Time]*roaring.Bitmap) time.Time {
	var out time.Time
	for k := range m {
		if out.IsZero() || k.Before(out) {
			out = k
		}
	}
	return out
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
