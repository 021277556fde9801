package aggregator

import (
	"testing"
	"time"

	"retail-analytics/pkg/models"

	"github.com/stretchr/testify/require"
)

func tx(inv, prod, cust, country string, qty int, price float64, ts time.Time) models.Transaction {
	return models.Transaction{
		InvoiceID: inv, ProductCode: prod, Description: "desc " + prod, CustomerID: cust,
		Country: country, Quantity: qty, UnitPrice: price, Timestamp: ts,
	}
}

func fixture() []models.Transaction {
	jan := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) // lundi
	feb := time.Date(2024, 2, 3, 18, 0, 0, 0, time.UTC) // samedi
	return []models.Transaction{
		tx("1", "A", "c1", "France", 2, 5, jan),
		tx("1", "B", "c1", "France", 1, 10, jan),
		tx("2", "A", "c2", "Spain", 4, 5, feb),
		tx("3", "C", "", "France", 1, 20, feb),
		tx("4", "B", "c1", "Spain", 2, 10, feb),
	}
}

func TestSummarize_Overview(t *testing.T) {
	s := Summarize(fixture())
	ov := s.Overview
	require.InDelta(t, 80.0, ov.TotalRevenue, 1e-9)
	require.Equal(t, 4, ov.OrderCount)
	require.Equal(t, 2, ov.CustomerCount)
	require.Equal(t, 3, ov.ProductCount)
	require.Equal(t, 10, ov.Quantity)
	require.Equal(t, 1, ov.AnonymousLines)
	require.InDelta(t, 20.0, ov.AvgOrderValue, 1e-9)
	require.InDelta(t, 33.375, ov.SpanDays(), 1e-9)
}

func TestSummarize_RevenueIsAdditive(t *testing.T) {
	s := Summarize(fixture())
	sum := func(gs []GroupMetric) float64 {
		total := 0.0
		for _, g := range gs {
			total += g.Revenue
		}
		return total
	}
	months := 0.0
	for _, m := range s.Months {
		months += m.Revenue
	}
	for _, v := range []float64{sum(s.Products), sum(s.Countries), sum(s.Hours), sum(s.Weekdays), months} {
		require.InDelta(t, s.Overview.TotalRevenue, v, 1e-9)
	}
}

func TestSummarize_Ordering(t *testing.T) {
	s := Summarize(fixture())

	// A=30, B=30 (2 commandes chacun), C=20 : égalité départagée par la clé.
	require.Equal(t, []string{"A", "B", "C"}, keys(s.Products))
	require.Equal(t, "desc A", s.Products[0].Label)
	require.Equal(t, 2, s.Products[0].OrderCount)
	require.Equal(t, 2, s.Products[0].CustomerCount)

	// France=40, Spain=40, 2 commandes chacun.
	require.Equal(t, []string{"France", "Spain"}, keys(s.Countries))
	require.InDelta(t, 0.5, s.Countries[0].RevenueShare, 1e-9)

	require.Len(t, s.Months, 2)
	require.Equal(t, "2024-01", s.Months[0].YearMonth)
	require.Equal(t, 1, s.Months[0].OrderCount)
	require.Equal(t, 3, s.Months[1].OrderCount)
	require.Equal(t, 2, s.Months[1].CustomerCount)

	require.Equal(t, []string{"09", "18"}, keys(s.Hours))
	require.Equal(t, []string{"Monday", "Saturday"}, keys(s.Weekdays))
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	require.Zero(t, s.Overview.OrderCount)
	require.Empty(t, s.Products)
	require.Empty(t, s.Months)
}

func TestMonthlyTable_MatchesSummary(t *testing.T) {
	require.Equal(t, Summarize(fixture()).Months, MonthlyTable(fixture()))
}

func TestTopGroups(t *testing.T) {
	groups := []GroupMetric{
		{Key: "z", Revenue: 10, OrderCount: 1},
		{Key: "a", Revenue: 10, OrderCount: 1},
		{Key: "m", Revenue: 50, OrderCount: 3},
		{Key: "b", Revenue: 10, OrderCount: 2},
		{Key: "q", Revenue: 1, OrderCount: 9},
	}
	top := TopGroups(groups, 3)
	require.Equal(t, []string{"m", "b", "a"}, keys(top))
	require.Nil(t, TopGroups(groups, 0))
	require.Len(t, TopGroups(groups, 10), 5)
}

func keys(gs []GroupMetric) []string {
	out := make([]string, len(gs))
	for i, g := range gs {
		out[i] = g.Key
	}
	return out
}
