// Package clv estime la valeur vie client (CLV) et la probabilité de churn
// à partir des profils RFM.
package clv

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"retail-analytics/pkg/aggregator"
	"retail-analytics/pkg/models"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("retail")

const (
	source = "clv"
	// Durée moyenne d'un mois en jours.
	daysPerMonth = 30.4375
	// Pente et centre de la logistique de churn, en multiples de l'intervalle attendu.
	churnSlope  = 1.5
	churnCenter = 2.0
)

const (
	HighRisk   = "High Risk"
	MediumRisk = "Medium Risk"
	LowRisk    = "Low Risk"

	HighValue   = "High CLV"
	MediumValue = "Medium CLV"
	LowValue    = "Low CLV"
)

var ErrInvalidOptions = errors.New("invalid clv options")

// Thresholds sont les seuils de probabilité de churn ; une égalité va au palier le plus risqué.
type Thresholds struct {
	HighRisk   float64
	MediumRisk float64
}

// Options paramètre le scoring. BacktestMonths = 0 désactive la validation sur fenêtre de contrôle.
type Options struct {
	Thresholds       Thresholds
	ProjectionMonths int
	BacktestMonths   int
}

func DefaultOptions() Options {
	return Options{Thresholds: Thresholds{HighRisk: 0.7, MediumRisk: 0.4}, ProjectionMonths: 12, BacktestMonths: 3}
}

func (o Options) validate() error {
	t := o.Thresholds
	if t.MediumRisk < 0 || t.HighRisk > 1 || t.MediumRisk >= t.HighRisk {
		return fmt.Errorf("%w: need 0 <= medium (%v) < high (%v) <= 1", ErrInvalidOptions, t.MediumRisk, t.HighRisk)
	}
	if o.ProjectionMonths < 1 {
		return fmt.Errorf("%w: projection months must be >= 1, got %d", ErrInvalidOptions, o.ProjectionMonths)
	}
	if o.BacktestMonths < 0 {
		return fmt.Errorf("%w: backtest months must be >= 0, got %d", ErrInvalidOptions, o.BacktestMonths)
	}
	return nil
}

// riskTier est une ligne de la table des paliers : probabilité minimale → palier, action.
type riskTier struct {
	min    float64
	name   string
	action string
}

// riskTable retourne la table ordonnée du palier le plus risqué au moins risqué.
func riskTable(t Thresholds) []riskTier {
	return []riskTier{
		{min: t.HighRisk, name: HighRisk, action: "Immediate win-back offer and personal outreach"},
		{min: t.MediumRisk, name: MediumRisk, action: "Re-engagement campaign and loyalty incentive"},
		{min: 0, name: LowRisk, action: "Maintain relationship, cross-sell"},
	}
}

func classify(table []riskTier, p float64) riskTier {
	for _, r := range table {
		if p >= r.min {
			return r
		}
	}
	return table[len(table)-1]
}

// TierSummary résume un palier.
type TierSummary struct {
	Tier      string  `json:"tier"`
	Customers int     `json:"customer_count"`
	TotalCLV  float64 `json:"total_clv"`
	AvgCLV    float64 `json:"avg_clv"`
	AvgChurn  float64 `json:"avg_churn_probability"`
}

// Result contient les scores triés par CLV décroissante puis identifiant.
type Result struct {
	Scores     []models.ChurnScore `json:"scores"`
	ValueTiers []TierSummary       `json:"value_tiers"`
	RiskTiers  []TierSummary       `json:"risk_tiers"`
	ValueCuts  [2]float64          `json:"value_cuts"` // 33e et 66e centiles de la CLV
	Issues     []models.Issue      `json:"issues,omitempty"`
}

// Score calcule CLV et churn pour chaque profil. La vue d'ensemble de l'agrégateur
// fournit l'intervalle de repli quand aucun client n'a racheté.
func Score(profiles []models.CustomerProfile, overview aggregator.Overview, opts Options) (Result, error) {
	if err := opts.validate(); err != nil {
		return Result{}, err
	}
	var res Result
	if len(profiles) == 0 {
		res.Issues = append(res.Issues, models.Warning(source, "no_profiles", 0, "no customer profile to score"))
		return res, nil
	}

	fallback, single := fallbackInterval(profiles, overview)
	if single > 0 {
		res.Issues = append(res.Issues, models.Warning(source, "single_purchase", single,
			"%d customers with one purchase use a fallback interval of %.1f days", single, fallback))
	}

	table := riskTable(opts.Thresholds)
	res.Scores = make([]models.ChurnScore, 0, len(profiles))
	for _, p := range profiles {
		interval, ok := ownInterval(p)
		if !ok {
			interval = fallback
		}
		rel := float64(p.RecencyDays) / interval
		prob := ChurnProbability(rel)
		tier := classify(table, prob)
		res.Scores = append(res.Scores, models.ChurnScore{
			CustomerID:           p.CustomerID,
			PredictedCLV:         PredictCLV(p, opts.ProjectionMonths),
			ChurnProbability:     prob,
			RiskTier:             tier.name,
			ExpectedIntervalDays: interval,
			RelativeRecency:      rel,
			Action:               tier.action,
		})
	}

	values := make([]float64, len(res.Scores))
	for i, s := range res.Scores {
		values[i] = s.PredictedCLV
	}
	sort.Float64s(values)
	res.ValueCuts = [2]float64{quantile(values, 1.0/3), quantile(values, 2.0/3)}
	for i := range res.Scores {
		res.Scores[i].ValueTier = valueTier(res.Scores[i].PredictedCLV, res.ValueCuts)
	}

	sort.Slice(res.Scores, func(i, j int) bool {
		a, b := res.Scores[i], res.Scores[j]
		if a.PredictedCLV != b.PredictedCLV {
			return a.PredictedCLV > b.PredictedCLV
		}
		return a.CustomerID < b.CustomerID
	})
	res.ValueTiers = summarize(res.Scores, func(s models.ChurnScore) string { return s.ValueTier },
		[]string{HighValue, MediumValue, LowValue})
	res.RiskTiers = summarize(res.Scores, func(s models.ChurnScore) string { return s.RiskTier },
		[]string{HighRisk, MediumRisk, LowRisk})

	log.Debugf("clv: %d clients, coupures CLV %.2f / %.2f", len(res.Scores), res.ValueCuts[0], res.ValueCuts[1])
	return res, nil
}

// PredictCLV = CA mensuel moyen × mois projetés × F/(F+1).
// Croissante en montant et en fréquence, à ancienneté égale.
func PredictCLV(p models.CustomerProfile, projectionMonths int) float64 {
	if p.Monetary <= 0 || p.Frequency <= 0 {
		return 0
	}
	months := math.Max(1, (float64(p.RecencyDays)+tenureDays(p))/daysPerMonth)
	retention := float64(p.Frequency) / float64(p.Frequency+1)
	return p.Monetary / months * float64(projectionMonths) * retention
}

// ChurnProbability est une logistique de la récence relative, bornée à [0 ; 1].
func ChurnProbability(relativeRecency float64) float64 {
	if math.IsNaN(relativeRecency) {
		return 1
	}
	p := 1 / (1 + math.Exp(-churnSlope*(relativeRecency-churnCenter)))
	return math.Min(1, math.Max(0, p))
}

func tenureDays(p models.CustomerProfile) float64 {
	if p.FirstPurchase.IsZero() || p.LastPurchase.IsZero() {
		return 0
	}
	return math.Max(0, p.LastPurchase.Sub(p.FirstPurchase).Hours()/24)
}

// ownInterval retourne l'intervalle moyen entre achats d'un client ayant racheté.
func ownInterval(p models.CustomerProfile) (float64, bool) {
	if p.Frequency < 2 {
		return 0, false
	}
	d := tenureDays(p) / float64(p.Frequency-1)
	if d <= 0 {
		return 0, false
	}
	return math.Max(1, d), true
}

// fallbackInterval : médiane des intervalles des clients ayant racheté, sinon la durée couverte par les données.
func fallbackInterval(profiles []models.CustomerProfile, overview aggregator.Overview) (float64, int) {
	var intervals []float64
	single := 0
	for _, p := range profiles {
		if d, ok := ownInterval(p); ok {
			intervals = append(intervals, d)
		} else {
			single++
		}
	}
	if len(intervals) > 0 {
		sort.Float64s(intervals)
		return math.Max(1, quantile(intervals, 0.5)), single
	}
	return math.Max(1, overview.SpanDays()), single
}

// quantile par interpolation linéaire sur des valeurs triées.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func valueTier(v float64, cuts [2]float64) string {
	switch {
	case v >= cuts[1]:
		return HighValue
	case v >= cuts[0]:
		return MediumValue
	default:
		return LowValue
	}
}

func summarize(scores []models.ChurnScore, tierOf func(models.ChurnScore) string, order []string) []TierSummary {
	byTier := make(map[string]*TierSummary, len(order))
	for _, s := range scores {
		name := tierOf(s)
		t, ok := byTier[name]
		if !ok {
			t = &TierSummary{Tier: name}
			byTier[name] = t
		}
		t.Customers++
		t.TotalCLV += s.PredictedCLV
		t.AvgChurn += s.ChurnProbability
	}
	var out []TierSummary
	for _, name := range order {
		t, ok := byTier[name]
		if !ok {
			continue
		}
		t.AvgCLV = t.TotalCLV / float64(t.Customers)
		t.AvgChurn /= float64(t.Customers)
		out = append(out, *t)
	}
	return out
}
