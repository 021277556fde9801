package forecast

import (
	"math"
	"testing"
	"time"

	"retail-analytics/pkg/models"

	"github.com/stretchr/testify/require"
)

func series(start time.Time, revenues ...float64) []models.MonthlyMetric {
	out := make([]models.MonthlyMetric, len(revenues))
	for i, r := range revenues {
		m := start.AddDate(0, i, 0)
		out[i] = models.MonthlyMetric{YearMonth: m.Format("2006-01"), Month: m, Revenue: r}
	}
	return out
}

var jan2022 = time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)

func seasonal24() []models.MonthlyMetric {
	var rev []float64
	for i := 0; i < 24; i++ {
		base := 1000 + 20*float64(i)
		if i%12 == 10 || i%12 == 11 {
			base *= 1.5
		}
		rev = append(rev, base)
	}
	return series(jan2022, rev...)
}

func TestProject_InsufficientHistory(t *testing.T) {
	_, err := Project(series(jan2022, 10, 20), DefaultOptions())
	require.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestProject_InvalidOptions(t *testing.T) {
	o := DefaultOptions()
	o.HorizonMonths = 0
	_, err := Project(seasonal24(), o)
	require.ErrorIs(t, err, ErrInvalidOptions)
}

func TestProject_StrictlyFutureAndBounded(t *testing.T) {
	hist := seasonal24()
	res, err := Project(hist, DefaultOptions())
	require.NoError(t, err)
	require.Empty(t, res.Issues)
	require.Len(t, res.Points, 12)

	lastObserved := hist[len(hist)-1].Month
	prevWidth := -1.0
	for i, p := range res.Points {
		require.True(t, p.Month.After(lastObserved))
		require.Equal(t, i+1, p.Horizon)
		require.GreaterOrEqual(t, p.PredictedRevenue, 0.0)
		require.LessOrEqual(t, p.LowerBound, p.PredictedRevenue)
		require.GreaterOrEqual(t, p.UpperBound, p.PredictedRevenue)
		width := p.UpperBound - p.LowerBound
		require.GreaterOrEqual(t, width, prevWidth)
		prevWidth = width
	}
	require.Equal(t, "2024-01", res.Points[0].YearMonth)

	// Novembre/décembre sont au-dessus de la tendance.
	require.Greater(t, res.Indices[10], 1.0)
	require.Less(t, res.Indices[0], 1.0)
	sum := 0.0
	for _, v := range res.Indices {
		sum += v
	}
	require.InDelta(t, 12.0, sum, 1e-9)

	require.Len(t, res.Seasonal, 12)
	require.Greater(t, res.Summary.GrowthPct, 0.0)
	require.Equal(t, "2024-12", res.Summary.PeakMonth)
}

func TestProject_NeverNegative(t *testing.T) {
	// Tendance fortement décroissante : la projection atteint zéro.
	res, err := Project(series(jan2022, 900, 700, 500, 300, 100), DefaultOptions())
	require.NoError(t, err)
	prevWidth := -1.0
	for _, p := range res.Points {
		require.GreaterOrEqual(t, p.PredictedRevenue, 0.0)
		require.GreaterOrEqual(t, p.LowerBound, 0.0)
		width := p.UpperBound - p.LowerBound
		require.GreaterOrEqual(t, width, prevWidth-1e-9)
		prevWidth = width
	}
	require.Zero(t, res.Points[len(res.Points)-1].PredictedRevenue)
}

func TestProject_ShortHistoryIsFlaggedAndWidened(t *testing.T) {
	hist := series(jan2022, 100, 110, 120, 130, 140, 150)
	short, err := Project(hist, DefaultOptions())
	require.NoError(t, err)

	codes := map[string]models.IssueKind{}
	for _, is := range short.Issues {
		codes[is.Code] = is.Kind
	}
	require.Equal(t, models.DataQualityWarning, codes["short_history"])
	require.Equal(t, models.ComputationDegraded, codes["widened_interval"])
	require.Equal(t, models.ComputationDegraded, codes["no_seasonality"])

	o := DefaultOptions()
	o.MinPeriods = 6
	normal, err := Project(hist, o)
	require.NoError(t, err)
	wShort := short.Points[0].UpperBound - short.Points[0].LowerBound
	wNormal := normal.Points[0].UpperBound - normal.Points[0].LowerBound
	require.InDelta(t, math.Sqrt(2), wShort/wNormal, 1e-9)
}

func TestProject_FillsGaps(t *testing.T) {
	hist := []models.MonthlyMetric{
		{YearMonth: "2022-03", Month: time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC), Revenue: 30},
		{YearMonth: "2022-01", Month: jan2022, Revenue: 10},
		{YearMonth: "2022-05", Revenue: 50},
	}
	res, err := Project(hist, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.History, 5)
	require.Equal(t, "2022-02", res.History[1].YearMonth)
	require.Zero(t, res.History[1].Revenue)
	require.Equal(t, "2022-06", res.Points[0].YearMonth)
}

func TestFitTrend(t *testing.T) {
	tr := fitTrend([]float64{1, 3, 5, 7})
	require.InDelta(t, 2.0, tr.Slope, 1e-12)
	require.InDelta(t, 1.0, tr.Intercept, 1e-12)
}

func TestProject_RejectsUnresolvableMonth(t *testing.T) {
	history := []models.MonthlyMetric{
		{YearMonth: "2023-01", Revenue: 100},
		{YearMonth: "2023-02", Revenue: 110},
		{YearMonth: "Mar 2023", Revenue: 120},
	}
	_, err := Project(history, DefaultOptions())
	require.ErrorIs(t, err, ErrInvalidHistory)
	require.ErrorContains(t, err, "Mar 2023")

	history[2].YearMonth = "2023-03"
	res, err := Project(history, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.History, 3)
	require.Equal(t, "2023-01", res.History[0].YearMonth)
}
