package cohort

import (
	"testing"
	"time"

	"retail-analytics/pkg/models"

	"github.com/stretchr/testify/require"
)

func buy(cust string, year int, month time.Month, day int, amount float64) models.Transaction {
	return models.Transaction{
		InvoiceID:  cust + time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Format("20060102"),
		CustomerID: cust, Quantity: 1, UnitPrice: amount,
		Timestamp: time.Date(year, month, day, 12, 0, 0, 0, time.UTC),
	}
}

func TestBuild_RetentionMatrix(t *testing.T) {
	txs := []models.Transaction{
		buy("a", 2024, 1, 3, 10), buy("a", 2024, 1, 20, 5), // deux achats le même mois : compté une fois
		buy("b", 2024, 1, 9, 20),
		buy("a", 2024, 3, 1, 30),
		buy("b", 2024, 2, 2, 10),
		buy("c", 2024, 2, 14, 50),
		buy("c", 2024, 3, 14, 50),
		{InvoiceID: "x", Quantity: 1, UnitPrice: 1, Timestamp: time.Date(2024, 3, 30, 0, 0, 0, 0, time.UTC)},
	}
	m := Build(txs)
	require.Empty(t, m.Issues)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), m.LastMonth)
	require.Len(t, m.Cohorts, 2)

	jan := m.Cohorts[0]
	require.Equal(t, "2024-01", jan.Label)
	require.Equal(t, 2, jan.Size)
	require.Len(t, jan.Cells, 3)
	require.Equal(t, []int{2, 1, 1}, retained(jan))
	require.InDelta(t, 1.0, jan.Cells[0].RetentionRate, 1e-9)
	require.InDelta(t, 0.5, jan.Cells[1].RetentionRate, 1e-9)
	require.InDelta(t, 35.0, jan.Cells[0].Revenue, 1e-9)
	require.InDelta(t, (35.0+10+30)/2, jan.Cells[2].CumulativeLTV, 1e-9)

	feb := m.Cohorts[1]
	require.Equal(t, 1, feb.Size)
	require.Len(t, feb.Cells, 2)
	require.Equal(t, []int{1, 1}, retained(feb))

	// La période 2 de février dépasse la fin des données : absente, pas zéro.
	_, ok := m.Lookup("2024-02", 2)
	require.False(t, ok)
	cell, ok := m.Lookup("2024-01", 1)
	require.True(t, ok)
	require.Equal(t, 1, cell.RetainedCustomers)

	require.Len(t, m.Cells(), 5)
}

func TestBuild_RetainedNeverExceedsSize(t *testing.T) {
	var txs []models.Transaction
	for i, c := range []string{"a", "b", "c", "d", "e", "f"} {
		for k := 0; k <= i; k++ {
			txs = append(txs, buy(c, 2023, time.Month(1+i%3), 1+k, 10))
			txs = append(txs, buy(c, 2023, time.Month(2+i%3+k%4), 5, 10))
		}
	}
	m := Build(txs)
	for _, co := range m.Cohorts {
		require.InDelta(t, 1.0, co.Cells[0].RetentionRate, 1e-9)
		for _, cell := range co.Cells {
			require.LessOrEqual(t, cell.RetainedCustomers, co.Size)
			require.GreaterOrEqual(t, cell.RetentionRate, 0.0)
			require.LessOrEqual(t, cell.RetentionRate, 1.0)
		}
	}
}

func TestBuild_NoCustomers(t *testing.T) {
	m := Build([]models.Transaction{{InvoiceID: "1", Quantity: 1, Timestamp: time.Now()}})
	require.Empty(t, m.Cohorts)
	require.Len(t, m.Issues, 1)
}

func retained(c Cohort) []int {
	out := make([]int, len(c.Cells))
	for i, cell := range c.Cells {
		out[i] = cell.RetainedCustomers
	}
	return out
}
