package clv

import (
	"errors"
	"fmt"
	"math"
	"time"

	"retail-analytics/pkg/aggregator"
	"retail-analytics/pkg/models"
	"retail-analytics/pkg/rfm"
)

// Seuil de probabilité au-delà duquel un client est prédit perdu.
const churnDecision = 0.5

var ErrBacktestUnavailable = errors.New("backtest unavailable")

// TierOutcome confronte un palier de risque au churn observé.
type TierOutcome struct {
	Tier           string  `json:"tier"`
	Customers      int     `json:"customer_count"`
	PredictedChurn float64 `json:"avg_predicted_churn"`
	ObservedChurn  float64 `json:"observed_churn_rate"`
}

// Validation mesure la qualité du modèle sur une fenêtre de contrôle :
// les scores sont calculés avant Cutoff puis comparés à l'activité réelle des HoldoutMonths mois suivants.
type Validation struct {
	Cutoff            time.Time     `json:"cutoff"`
	HoldoutMonths     int           `json:"holdout_months"`
	Customers         int           `json:"customer_count"`
	ObservedChurnRate float64       `json:"observed_churn_rate"`
	ChurnAccuracy     float64       `json:"churn_accuracy"`
	ChurnBrier        float64       `json:"churn_brier_score"`
	CLVMAE            float64       `json:"clv_mae"`
	ActualMeanRevenue float64       `json:"actual_mean_revenue"`
	Tiers             []TierOutcome `json:"tiers"`
}

// Backtest arrête l'historique au début des HoldoutMonths derniers mois calendaires,
// recalcule profils et scores sur ce qui précède, puis les compare à la fenêtre de contrôle.
// La CLV prédite est ramenée à la durée de la fenêtre avant le calcul de l'erreur absolue.
func Backtest(txs []models.Transaction, opts Options) (Validation, error) {
	if err := opts.validate(); err != nil {
		return Validation{}, err
	}
	holdout := opts.BacktestMonths
	if holdout < 1 {
		return Validation{}, fmt.Errorf("%w: backtest months must be >= 1, got %d", ErrInvalidOptions, holdout)
	}

	var last time.Time
	for _, tx := range txs {
		if tx.Timestamp.After(last) {
			last = tx.Timestamp
		}
	}
	cutoff := aggregator.MonthStart(last).AddDate(0, 1-holdout, 0)

	var train []models.Transaction
	active := make(map[string]float64) // client → CA dans la fenêtre
	for _, tx := range txs {
		if tx.Timestamp.Before(cutoff) {
			train = append(train, tx)
			continue
		}
		if tx.HasCustomer() {
			active[tx.CustomerID] += tx.Revenue()
		}
	}

	profiles, err := rfm.Compute(train, rfm.Options{ReferenceDate: cutoff})
	if err != nil {
		return Validation{}, fmt.Errorf("backtest rfm: %w", err)
	}
	if len(profiles.Profiles) == 0 {
		return Validation{}, fmt.Errorf("%w: no identified customer before %s", ErrBacktestUnavailable, cutoff.Format("2006-01"))
	}
	scored, err := Score(profiles.Profiles, aggregator.Summarize(train).Overview, opts)
	if err != nil {
		return Validation{}, fmt.Errorf("backtest score: %w", err)
	}

	v := Validation{Cutoff: cutoff, HoldoutMonths: holdout, Customers: len(scored.Scores)}
	scale := float64(holdout) / float64(opts.ProjectionMonths)
	type tierAcc struct {
		n, churned int
		prob       float64
	}
	tiers := make(map[string]*tierAcc)
	correct, churned := 0, 0
	for _, s := range scored.Scores {
		revenue, ok := active[s.CustomerID]
		lost := 0.0
		if !ok {
			lost = 1
			churned++
		}
		if (s.ChurnProbability >= churnDecision) == !ok {
			correct++
		}
		v.ChurnBrier += (s.ChurnProbability - lost) * (s.ChurnProbability - lost)
		v.CLVMAE += math.Abs(s.PredictedCLV*scale - revenue)
		v.ActualMeanRevenue += revenue

		acc, found := tiers[s.RiskTier]
		if !found {
			acc = &tierAcc{}
			tiers[s.RiskTier] = acc
		}
		acc.n++
		acc.prob += s.ChurnProbability
		if !ok {
			acc.churned++
		}
	}
	n := float64(v.Customers)
	v.ObservedChurnRate = float64(churned) / n
	v.ChurnAccuracy = float64(correct) / n
	v.ChurnBrier /= n
	v.CLVMAE /= n
	v.ActualMeanRevenue /= n
	for _, name := range []string{HighRisk, MediumRisk, LowRisk} {
		acc, ok := tiers[name]
		if !ok {
			continue
		}
		v.Tiers = append(v.Tiers, TierOutcome{
			Tier:           name,
			Customers:      acc.n,
			PredictedChurn: acc.prob / float64(acc.n),
			ObservedChurn:  float64(acc.churned) / float64(acc.n),
		})
	}

	log.Debugf("clv: backtest au %s, %d clients, précision churn %.3f, MAE CLV %.2f",
		cutoff.Format("2006-01"), v.Customers, v.ChurnAccuracy, v.CLVMAE)
	return v, nil
}
