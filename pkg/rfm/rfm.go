// Package rfm calcule les profils Recency / Frequency / Monetary par client,
// les scores par quantiles et le segment associé.
package rfm

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"retail-analytics/pkg/idset"
	"retail-analytics/pkg/models"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("retail")

const (
	source          = "rfm"
	DefaultBinCount = 5
)

// Options paramètre un calcul RFM. ReferenceDate nulle → dernier achat observé + 24h.
type Options struct {
	ReferenceDate time.Time
	BinCount      int
	Segments      *SegmentTable
}

// SegmentStat résume un segment.
type SegmentStat struct {
	Segment       string  `json:"segment"`
	Customers     int     `json:"customer_count"`
	Share         float64 `json:"share"`
	AvgRecency    float64 `json:"avg_recency_days"`
	AvgFrequency  float64 `json:"avg_frequency"`
	AvgMonetary   float64 `json:"avg_monetary"`
	TotalMonetary float64 `json:"total_monetary"`
	Priority      string  `json:"priority"`
	Action        string  `json:"action"`
}

// Result contient les profils triés par identifiant client et les statistiques par segment.
type Result struct {
	ReferenceDate time.Time                `json:"reference_date"`
	BinCount      int                      `json:"bin_count"`
	Profiles      []models.CustomerProfile `json:"profiles"`
	Segments      []SegmentStat            `json:"segments"`
	Issues        []models.Issue           `json:"issues,omitempty"`
}

type accumulator struct {
	profile  models.CustomerProfile
	invoices idset.Set
}

// Compute calcule les profils RFM. Les lignes anonymes et postérieures à la date de référence sont ignorées.
func Compute(txs []models.Transaction, opts Options) (Result, error) {
	k := opts.BinCount
	if k == 0 {
		k = DefaultBinCount
	}
	if k < 1 {
		return Result{}, fmt.Errorf("rfm: bin count must be >= 1, got %d", opts.BinCount)
	}
	table := opts.Segments
	if table == nil {
		var err error
		table, err = NewSegmentTable(DefaultSegmentRules(), k)
		if err != nil {
			return Result{}, err
		}
	} else if table.BinCount() != k {
		return Result{}, fmt.Errorf("rfm: segment table built for %d bins, options ask for %d", table.BinCount(), k)
	}

	ref := opts.ReferenceDate
	if ref.IsZero() {
		ref = latest(txs).Add(24 * time.Hour)
	}
	ref = ref.UTC()

	res := Result{ReferenceDate: ref, BinCount: k}
	invoices := idset.NewDictionary()
	byCustomer := make(map[string]*accumulator)
	future := 0
	for _, tx := range txs {
		if !tx.HasCustomer() {
			continue
		}
		if tx.Timestamp.After(ref) {
			future++
			continue
		}
		acc, ok := byCustomer[tx.CustomerID]
		if !ok {
			acc = &accumulator{profile: models.CustomerProfile{
				CustomerID:    tx.CustomerID,
				Country:       tx.Country,
				FirstPurchase: tx.Timestamp,
				LastPurchase:  tx.Timestamp,
			}}
			byCustomer[tx.CustomerID] = acc
		}
		p := &acc.profile
		if tx.Timestamp.Before(p.FirstPurchase) {
			p.FirstPurchase = tx.Timestamp
		}
		if tx.Timestamp.After(p.LastPurchase) {
			p.LastPurchase = tx.Timestamp
		}
		p.Monetary += tx.Revenue()
		acc.invoices.Add(invoices.ID(tx.InvoiceID))
	}
	if future > 0 {
		res.Issues = append(res.Issues, models.Warning(source, "after_reference_date", future,
			"%d rows after reference date %s ignored", future, ref.Format(time.DateOnly)))
	}
	if len(byCustomer) == 0 {
		res.Issues = append(res.Issues, models.Warning(source, "no_customers", 0,
			"no identified customer before reference date"))
		return res, nil
	}

	profiles := make([]models.CustomerProfile, 0, len(byCustomer))
	for _, acc := range byCustomer {
		p := acc.profile
		p.Frequency = acc.invoices.Len()
		p.RecencyDays = int(math.Floor(ref.Sub(p.LastPurchase).Hours() / 24))
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].CustomerID < profiles[j].CustomerID })

	recency := make([]float64, len(profiles))
	frequency := make([]float64, len(profiles))
	monetary := make([]float64, len(profiles))
	for i, p := range profiles {
		recency[i] = float64(p.RecencyDays)
		frequency[i] = float64(p.Frequency)
		monetary[i] = p.Monetary
	}
	rBins, rUsed := QuantileBins(recency, k)
	fBins, fUsed := QuantileBins(frequency, k)
	mBins, mUsed := QuantileBins(monetary, k)
	axes := []struct {
		name string
		used int
	}{{"recency", rUsed}, {"frequency", fUsed}, {"monetary", mUsed}}
	for _, axis := range axes {
		if axis.used < k {
			res.Issues = append(res.Issues, models.Degraded(source, "fewer_bins",
				"%s axis uses %d of %d bins (not enough distinct values)", axis.name, axis.used, k))
		}
	}

	for i := range profiles {
		p := &profiles[i]
		p.RecencyScore = k + 1 - rBins[i]
		p.FrequencyScore = fBins[i]
		p.MonetaryScore = mBins[i]
		p.RFMCode = scoreCode(p.RecencyScore, p.FrequencyScore, p.MonetaryScore)
		p.RFMScore = p.RecencyScore + p.FrequencyScore + p.MonetaryScore
		p.Segment = table.Lookup(p.RecencyScore, p.FrequencyScore, p.MonetaryScore).Name
	}
	res.Profiles = profiles
	res.Segments = segmentStats(profiles, table)

	log.Debugf("rfm: %d clients, référence=%s, %d segments", len(profiles), ref.Format(time.DateOnly), len(res.Segments))
	return res, nil
}

// QuantileBins affecte chaque valeur à une classe 1..k par rang centré : p = (inférieurs + égaux/2) / n.
// Les valeurs égales partagent la même classe. Retourne aussi le nombre de classes utilisées.
func QuantileBins(values []float64, k int) ([]int, int) {
	n := len(values)
	bins := make([]int, n)
	if n == 0 {
		return bins, 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	used := make(map[int]struct{}, k)
	for i, v := range values {
		less := sort.SearchFloat64s(sorted, v)
		upper := sort.Search(n, func(j int) bool { return sorted[j] > v })
		equal := upper - less
		p := (float64(less) + float64(equal)/2) / float64(n)
		b := int(math.Floor(p*float64(k))) + 1
		if b > k {
			b = k
		}
		bins[i] = b
		used[b] = struct{}{}
	}
	return bins, len(used)
}

func scoreCode(r, f, m int) string {
	return strconv.Itoa(r) + strconv.Itoa(f) + strconv.Itoa(m)
}

func latest(txs []models.Transaction) time.Time {
	var max time.Time
	for _, tx := range txs {
		if tx.Timestamp.After(max) {
			max = tx.Timestamp
		}
	}
	return max
}

// segmentStats agrège les profils par segment, triés par nombre de clients décroissant puis par nom.
func segmentStats(profiles []models.CustomerProfile, table *SegmentTable) []SegmentStat {
	bySegment := make(map[string]*SegmentStat)
	for _, p := range profiles {
		s, ok := bySegment[p.Segment]
		if !ok {
			s = &SegmentStat{Segment: p.Segment}
			if rule, found := table.Rule(p.Segment); found {
				s.Priority = rule.Priority
				s.Action = rule.Action
			}
			bySegment[p.Segment] = s
		}
		s.Customers++
		s.AvgRecency += float64(p.RecencyDays)
		s.AvgFrequency += float64(p.Frequency)
		s.TotalMonetary += p.Monetary
	}
	out := make([]SegmentStat, 0, len(bySegment))
	for _, s := range bySegment {
		n := float64(s.Customers)
		s.Share = n / float64(len(profiles))
		s.AvgRecency /= n
		s.AvgFrequency /= n
		s.AvgMonetary = s.TotalMonetary / n
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Customers != out[j].Customers {
			return out[i].Customers > out[j].Customers
		}
		return out[i].Segment < out[j].Segment
	})
	return out
}
