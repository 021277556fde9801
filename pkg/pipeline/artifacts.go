package pipeline

import (
	"retail-analytics/pkg/clv"
	"retail-analytics/pkg/forecast"
	"retail-analytics/pkg/models"
)

// Noms des tables exposées à la couche de présentation.
const (
	ArtifactCleaned         = "cleaned_transactions"
	ArtifactReturns         = "returns"
	ArtifactOverview        = "overview"
	ArtifactProducts        = "product_metrics"
	ArtifactCountries       = "country_metrics"
	ArtifactMonthly         = "monthly_metrics"
	ArtifactHourly          = "hourly_metrics"
	ArtifactWeekday         = "weekday_metrics"
	ArtifactRFM             = "rfm"
	ArtifactSegments        = "rfm_segments"
	ArtifactItemsets        = "frequent_itemsets"
	ArtifactRules           = "association_rules"
	ArtifactBasketStats     = "basket_stats"
	ArtifactCohorts         = "cohort_matrix"
	ArtifactCohortLTV       = "cohort_ltv"
	ArtifactForecast        = "forecast"
	ArtifactSeasonalProfile = "seasonal_profile"
	ArtifactCLV             = "clv_churn"
	ArtifactCLVTiers        = "clv_tiers"
	ArtifactCLVBacktest     = "clv_backtest"
	ArtifactIssues          = "issues"
)

// Artifacts retourne les tables du rapport dans un ordre fixe.
// Une table vide est émise comme séquence vide, jamais omise.
func (r *Report) Artifacts() []models.Artifact {
	var (
		points   []models.ForecastPoint
		seasonal []forecast.SeasonalPoint
		backtest []clv.TierOutcome
	)
	if r.Backtest != nil {
		backtest = r.Backtest.Tiers
	}
	if r.Forecast != nil {
		points = r.Forecast.Points
		seasonal = r.Forecast.Seasonal
	}
	return []models.Artifact{
		{Name: ArtifactCleaned, Records: orEmpty(r.Transactions)},
		{Name: ArtifactReturns, Records: orEmpty(r.Returns)},
		{Name: ArtifactOverview, Records: []any{r.Summary.Overview}},
		{Name: ArtifactProducts, Records: orEmpty(r.Summary.Products)},
		{Name: ArtifactCountries, Records: orEmpty(r.Summary.Countries)},
		{Name: ArtifactMonthly, Records: orEmpty(r.Summary.Months)},
		{Name: ArtifactHourly, Records: orEmpty(r.Summary.Hours)},
		{Name: ArtifactWeekday, Records: orEmpty(r.Summary.Weekdays)},
		{Name: ArtifactRFM, Records: orEmpty(r.RFM.Profiles)},
		{Name: ArtifactSegments, Records: orEmpty(r.RFM.Segments)},
		{Name: ArtifactItemsets, Records: orEmpty(r.Basket.Itemsets)},
		{Name: ArtifactRules, Records: orEmpty(r.Basket.Rules)},
		{Name: ArtifactBasketStats, Records: []any{r.Basket.Stats}},
		{Name: ArtifactCohorts, Records: orEmpty(r.Cohorts.Cells())},
		{Name: ArtifactCohortLTV, Records: orEmpty(r.LTV)},
		{Name: ArtifactForecast, Records: orEmpty(points)},
		{Name: ArtifactSeasonalProfile, Records: orEmpty(seasonal)},
		{Name: ArtifactCLV, Records: orEmpty(r.CLV.Scores)},
		{Name: ArtifactCLVTiers, Records: orEmpty(r.CLV.ValueTiers)},
		{Name: ArtifactCLVBacktest, Records: orEmpty(backtest)},
		{Name: ArtifactIssues, Records: orEmpty(r.Issues)},
	}
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
