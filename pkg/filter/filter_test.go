package filter

import (
	"testing"
	"time"

	"retail-analytics/pkg/models"

	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 12, 0, 0, 0, time.UTC)
}

func sample() []models.Transaction {
	return []models.Transaction{
		{InvoiceID: "1", CustomerID: "a", Country: "France", Timestamp: day(1)},
		{InvoiceID: "2", CustomerID: "b", Country: "Spain", Timestamp: day(5)},
		{InvoiceID: "3", CustomerID: "a", Country: "France", Timestamp: day(10)},
		{InvoiceID: "4", CustomerID: "", Country: "United Kingdom", Timestamp: day(15)},
	}
}

func TestApply_NoCriteriaCopies(t *testing.T) {
	in := sample()
	out := Apply(in, Criteria{})
	require.Equal(t, in, out)
	out[0].Country = "changed"
	require.Equal(t, "France", in[0].Country)
}

func TestApply_Countries(t *testing.T) {
	out := Apply(sample(), Criteria{Countries: []string{"france", " "}})
	require.Len(t, out, 2)
	for _, tx := range out {
		require.Equal(t, "France", tx.Country)
	}
}

func TestApply_CustomersAndPeriod(t *testing.T) {
	out := Apply(sample(), Criteria{CustomerIDs: []string{"a", "b"}, Start: day(2), End: day(10)})
	require.Len(t, out, 1)
	require.Equal(t, "2", out[0].InvoiceID)
}
