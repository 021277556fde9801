package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"retail-analytics/pkg/cleaner"
	"retail-analytics/pkg/models"

	"github.com/stretchr/testify/require"
)

const onlineRetail = "\ufeffInvoiceNo,StockCode,Description,Quantity,InvoiceDate,UnitPrice,CustomerID,Country\n" +
	"536365,85123A,WHITE HANGING HEART T-LIGHT HOLDER,6,12/1/2010 8:26,2.55,17850.0,United Kingdom\n" +
	"536365,71053,WHITE METAL LANTERN,6,12/1/2010 8:26,3.39,17850.0,United Kingdom\n" +
	"C536379,D,Discount,-1,12/1/2010 9:41,27.5,14527.0,United Kingdom\n" +
	"536380,22961,\"JAM MAKING SET, PRINTED\",1,12/1/2010 9:41,1.45,,United Kingdom\n"

func TestReadCSV_AliasesHeaders(t *testing.T) {
	raw, err := ReadCSV(strings.NewReader(onlineRetail))
	require.NoError(t, err)
	require.ElementsMatch(t, models.RequiredColumns, raw.Columns)
	require.Len(t, raw.Rows, 4)
	require.Equal(t, "JAM MAKING SET, PRINTED", raw.Rows[3][2])

	res, err := cleaner.Clean(raw)
	require.NoError(t, err)
	require.Len(t, res.Transactions, 3)
	require.Len(t, res.Returns, 1)
	require.Equal(t, "17850", res.Transactions[0].CustomerID)
	require.False(t, res.Transactions[2].HasCustomer())
}

func TestReadCSV_SkipsMalformedRows(t *testing.T) {
	data := "Invoice,Customer ID,Price\n1,2,3\n4,5\n6,7,8\n"
	raw, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, []string{"invoice_id", "customer_id", "unit_price"}, raw.Columns)
	require.Len(t, raw.Rows, 2)
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))
	require.Error(t, err)
}

func TestReadCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "retail.csv")
	require.NoError(t, os.WriteFile(path, []byte(onlineRetail), 0o600))
	raw, err := ReadCSVFile(path)
	require.NoError(t, err)
	require.Len(t, raw.Rows, 4)

	_, err = ReadCSVFile(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}

func TestCanonicalColumn(t *testing.T) {
	cases := []struct{ in, want string }{
		{"InvoiceNo", "invoice_id"},
		{" Customer ID ", "customer_id"},
		{"unit-price", "unit_price"},
		{"Extra Column", "extra_column"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, canonicalColumn(c.in), c.in)
	}
}
