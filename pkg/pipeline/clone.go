package pipeline

import (
	"slices"

	"retail-analytics/pkg/basket"
	"retail-analytics/pkg/cohort"
	"retail-analytics/pkg/models"
)

// clone copie toutes les tables du rapport : le cache garde son exemplaire intact
// quoi que l'appelant fasse du sien.
func (r *Report) clone() *Report {
	out := *r
	out.Cleaning.Issues = slices.Clone(r.Cleaning.Issues)
	out.Transactions = slices.Clone(r.Transactions)
	out.Returns = slices.Clone(r.Returns)

	out.Summary.Products = slices.Clone(r.Summary.Products)
	out.Summary.Countries = slices.Clone(r.Summary.Countries)
	out.Summary.Months = slices.Clone(r.Summary.Months)
	out.Summary.Hours = slices.Clone(r.Summary.Hours)
	out.Summary.Weekdays = slices.Clone(r.Summary.Weekdays)

	out.RFM.Profiles = slices.Clone(r.RFM.Profiles)
	out.RFM.Segments = slices.Clone(r.RFM.Segments)
	out.RFM.Issues = slices.Clone(r.RFM.Issues)

	out.Basket.Itemsets = cloneItemsets(r.Basket.Itemsets)
	out.Basket.Rules = cloneRules(r.Basket.Rules)
	out.Basket.Issues = slices.Clone(r.Basket.Issues)

	out.Cohorts.Cohorts = cloneCohorts(r.Cohorts.Cohorts)
	out.Cohorts.Issues = slices.Clone(r.Cohorts.Issues)
	out.LTV = slices.Clone(r.LTV)

	if r.Forecast != nil {
		f := *r.Forecast
		f.Points = slices.Clone(f.Points)
		f.History = slices.Clone(f.History)
		f.Seasonal = slices.Clone(f.Seasonal)
		f.Issues = slices.Clone(f.Issues)
		out.Forecast = &f
	}

	out.CLV.Scores = slices.Clone(r.CLV.Scores)
	out.CLV.ValueTiers = slices.Clone(r.CLV.ValueTiers)
	out.CLV.RiskTiers = slices.Clone(r.CLV.RiskTiers)
	out.CLV.Issues = slices.Clone(r.CLV.Issues)
	if r.Backtest != nil {
		v := *r.Backtest
		v.Tiers = slices.Clone(v.Tiers)
		out.Backtest = &v
	}

	out.Issues = slices.Clone(r.Issues)
	return &out
}

func cloneItemsets(in []basket.Itemset) []basket.Itemset {
	out := slices.Clone(in)
	for i := range out {
		out[i].Items = slices.Clone(out[i].Items)
	}
	return out
}

func cloneRules(in []models.AssociationRule) []models.AssociationRule {
	out := slices.Clone(in)
	for i := range out {
		out[i].Antecedent = slices.Clone(out[i].Antecedent)
		out[i].Consequent = slices.Clone(out[i].Consequent)
	}
	return out
}

func cloneCohorts(in []cohort.Cohort) []cohort.Cohort {
	out := slices.Clone(in)
	for i := range out {
		out[i].Cells = slices.Clone(out[i].Cells)
	}
	return out
}
