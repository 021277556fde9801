// Package ingest lit un export CSV de transactions et le convertit en table brute.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"retail-analytics/pkg/models"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("retail")

// headerAliases : en-tête normalisé (minuscules, sans espaces ni séparateurs) → colonne canonique.
var headerAliases = map[string]string{
	"invoiceno":   "invoice_id",
	"invoice":     "invoice_id",
	"invoiceid":   "invoice_id",
	"stockcode":   "product_code",
	"productcode": "product_code",
	"sku":         "product_code",
	"description": "description",
	"quantity":    "quantity",
	"unitprice":   "unit_price",
	"price":       "unit_price",
	"invoicedate": "timestamp",
	"timestamp":   "timestamp",
	"customerid":  "customer_id",
	"customer":    "customer_id",
	"country":     "country",
}

// ReadCSV lit un CSV avec en-tête. Les cellules restent des chaînes : le typage est fait par le cleaner.
// Les lignes mal formées (nombre de champs, guillemets) sont ignorées et comptées dans les logs.
func ReadCSV(r io.Reader) (models.RawTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return models.RawTable{}, fmt.Errorf("failed to read CSV headers: %w", err)
	}

	raw := models.RawTable{Columns: make([]string, len(headers))}
	for i, h := range headers {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		raw.Columns[i] = canonicalColumn(h)
	}

	skipped := 0
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped++
				continue
			}
			return models.RawTable{}, fmt.Errorf("failed to read CSV: %w", err)
		}
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v
		}
		raw.Rows = append(raw.Rows, cells)
	}

	if skipped > 0 {
		log.Warningf("ingest: %d lignes CSV mal formées ignorées", skipped)
	}
	log.Debugf("ingest: %d lignes lues, colonnes=%v", len(raw.Rows), raw.Columns)
	return raw, nil
}

// ReadCSVFile ouvre path et délègue à ReadCSV.
func ReadCSVFile(path string) (models.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.RawTable{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

func canonicalColumn(h string) string {
	key := toSnakeCase(strings.TrimSpace(h))
	if canon, ok := headerAliases[strings.ReplaceAll(key, "_", "")]; ok {
		return canon
	}
	return key
}

// toSnakeCase convertit "Column Name" → "column_name".
func toSnakeCase(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}
