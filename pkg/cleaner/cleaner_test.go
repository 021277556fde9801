package cleaner

import (
	"errors"
	"math"
	"testing"
	"time"

	"retail-analytics/pkg/models"

	"github.com/stretchr/testify/require"
)

func table(rows ...[]any) models.RawTable {
	return models.RawTable{Columns: append([]string(nil), models.RequiredColumns...), Rows: rows}
}

func TestClean_MissingColumns(t *testing.T) {
	raw := models.RawTable{
		Columns: []string{"invoice_id", "product_code", "quantity", "unit_price", "timestamp", "country"},
	}
	_, err := Clean(raw)
	require.Error(t, err)
	require.True(t, errors.Is(err, models.ErrValidation))

	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, []string{"description", "customer_id"}, verr.Missing)
}

func TestClean_HeaderCaseInsensitive(t *testing.T) {
	raw := models.RawTable{
		Columns: []string{" Invoice_ID", "PRODUCT_CODE", "Description", "Quantity", "Unit_Price", "Timestamp", "Customer_ID", "Country "},
		Rows:    [][]any{{"1", "a", "Mug", 2, 3.0, "2024-01-01 10:00:00", "7", "France"}},
	}
	res, err := Clean(raw)
	require.NoError(t, err)
	require.Len(t, res.Transactions, 1)
	require.Equal(t, "A", res.Transactions[0].ProductCode)
}

func TestClean_DropsAndMovesRows(t *testing.T) {
	raw := table(
		[]any{"1", "A", "Mug", 2, 3.0, "2024-01-01 10:00:00", "17850.0", "  United   Kingdom "},
		[]any{"2", "B", "Pen", -1, 1.0, "2024-01-02 10:00:00", "17850", "France"},     // retour
		[]any{"C3", "B", "Pen", 1, 1.0, "2024-01-02 10:00:00", "17850", "France"},     // annulation
		[]any{"4", "B", "Pen", 1, -0.5, "2024-01-02 10:00:00", "17850", "France"},     // prix négatif
		[]any{"5", "B", "Pen", "abc", 1.0, "2024-01-02 10:00:00", "17850", "France"}, // quantité invalide
		[]any{"6", "B", "Pen", 1, 1.0, "not a date", "17850", "France"},
		[]any{"7", "B", "Pen", 1, "1.5", "01/15/2024 09:30", "nan", "France"},
	)
	res, err := Clean(raw)
	require.NoError(t, err)

	rep := res.Report
	require.Equal(t, 7, rep.RowsRead)
	require.Equal(t, 2, rep.RowsKept)
	require.Equal(t, 3, rep.Returns)
	require.Equal(t, 1, rep.MalformedNumber)
	require.Equal(t, 1, rep.BadTimestamp)
	require.Equal(t, 1, rep.Anonymous)
	require.Len(t, res.Returns, 3)
	require.Len(t, rep.Issues, 4)
	for _, is := range rep.Issues {
		require.Equal(t, models.DataQualityWarning, is.Kind)
	}

	first := res.Transactions[0]
	require.Equal(t, "17850", first.CustomerID)
	require.Equal(t, "United Kingdom", first.Country)
	require.Equal(t, 6.0, first.Revenue())

	anon := res.Transactions[1]
	require.False(t, anon.HasCustomer())
	require.Equal(t, 1.5, anon.UnitPrice)
	require.Equal(t, time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC), anon.Timestamp)
}

func TestClean_NoNegativeRevenue(t *testing.T) {
	raw := table(
		[]any{"1", "A", "x", 0, 3.0, "2024-01-01", "1", "FR"},
		[]any{"2", "A", "x", 3, 0.0, "2024-01-01", "1", "FR"},
		[]any{"3", "A", "x", -5, -2.0, "2024-01-01", "1", "FR"},
	)
	res, err := Clean(raw)
	require.NoError(t, err)
	for _, tx := range res.Transactions {
		require.GreaterOrEqual(t, tx.Revenue(), 0.0)
	}
	require.Len(t, res.Transactions, 1)
}

func TestClean_Idempotent(t *testing.T) {
	raw := table(
		[]any{" 1 ", "a1", "  Red   Mug ", "2", "3.50", "2024-03-01T10:00:00Z", 12345.0, "France"},
		[]any{"2", "b2", "Pen", int64(1), 1, time.Date(2024, 3, 2, 8, 0, 0, 0, time.FixedZone("X", 3600)), "", "Spain"},
	)
	first, err := Clean(raw)
	require.NoError(t, err)
	second, err := Clean(ToRawTable(first.Transactions))
	require.NoError(t, err)
	require.Equal(t, first.Transactions, second.Transactions)
	require.Equal(t, "12345", first.Transactions[0].CustomerID)
	require.Equal(t, "Red Mug", first.Transactions[0].Description)
	require.Equal(t, time.UTC, first.Transactions[1].Timestamp.Location())
}

func TestNormalizeCustomerID(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{"17850.0", "17850"},
		{17850.0, "17850"},
		{17850, "17850"},
		{"NULL", ""},
		{" ", ""},
		{"AB-12", "AB-12"},
		{int64(9007199254740993), "9007199254740993"},
		{int64(9007199254740992), "9007199254740992"},
		{uint64(18446744073709551615), "18446744073709551615"},
		{"12345678901234567891", "12345678901234567891"},
		{"12345678901234567892.00", "12345678901234567892"},
		{"Inf", ""},
		{"-Infinity", ""},
		{"NaN", ""},
		{math.Inf(1), ""},
	}
	for _, c := range cases {
		require.Equal(t, c.want, normalizeCustomerID(c.in), "input %v", c.in)
	}
}

func TestClean_LargeCustomerIDsStayDistinct(t *testing.T) {
	res, err := Clean(table(
		[]any{"1", "A", "a", 1, 2.0, "2024-01-02 10:00", int64(9007199254740993), "FR"},
		[]any{"2", "A", "a", 1, 2.0, "2024-01-02 10:00", int64(9007199254740992), "FR"},
		[]any{"3", "A", "a", 1, 2.0, "2024-01-02 10:00", "Inf", "FR"},
	))
	require.NoError(t, err)
	require.Len(t, res.Transactions, 3)
	require.NotEqual(t, res.Transactions[0].CustomerID, res.Transactions[1].CustomerID)
	require.False(t, res.Transactions[2].HasCustomer())
	require.Equal(t, 1, res.Report.Anonymous)
}
