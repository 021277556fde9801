package cleaner

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"retail-analytics/pkg/models"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("retail")

const source = "cleaner"

// Formats de date acceptés, dans l'ordre d'essai.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"1/2/2006 15:04",
	"01/02/2006 15:04",
	"1/2/2006 15:04:05",
}

// Report résume ce que le cleaner a écarté ou signalé.
type Report struct {
	RowsRead        int            `json:"rows_read"`
	RowsKept        int            `json:"rows_kept"`
	BadTimestamp    int            `json:"bad_timestamp"`
	MalformedNumber int            `json:"malformed_number"`
	Returns         int            `json:"returns"`
	Anonymous       int            `json:"anonymous"`
	Issues          []models.Issue `json:"issues,omitempty"`
}

// Result contient la table nettoyée et les retours/annulations mis de côté.
type Result struct {
	Transactions []models.Transaction
	Returns      []models.Transaction
	Report       Report
}

// Clean valide le schéma puis normalise chaque ligne.
// Seule l'absence de colonnes obligatoires est fatale ; les problèmes ligne à ligne sont filtrés.
func Clean(raw models.RawTable) (Result, error) {
	idx, err := columnIndexes(raw.Columns)
	if err != nil {
		return Result{}, err
	}

	res := Result{Transactions: make([]models.Transaction, 0, len(raw.Rows))}
	rep := &res.Report
	rep.RowsRead = len(raw.Rows)

	for _, row := range raw.Rows {
		ts, ok := parseTimestamp(cell(row, idx["timestamp"]))
		if !ok {
			rep.BadTimestamp++
			continue
		}
		qty, okQty := parseQuantity(cell(row, idx["quantity"]))
		price, okPrice := parseFloat(cell(row, idx["unit_price"]))
		if !okQty || !okPrice {
			rep.MalformedNumber++
			continue
		}

		tx := models.Transaction{
			InvoiceID:   strings.TrimSpace(toString(cell(row, idx["invoice_id"]))),
			ProductCode: strings.ToUpper(strings.TrimSpace(toString(cell(row, idx["product_code"])))),
			Description: collapseSpaces(toString(cell(row, idx["description"]))),
			Quantity:    qty,
			UnitPrice:   price,
			Timestamp:   ts,
			CustomerID:  normalizeCustomerID(cell(row, idx["customer_id"])),
			Country:     collapseSpaces(toString(cell(row, idx["country"]))),
		}

		if isReturn(tx) {
			rep.Returns++
			res.Returns = append(res.Returns, tx)
			continue
		}
		if !tx.HasCustomer() {
			rep.Anonymous++
		}
		res.Transactions = append(res.Transactions, tx)
	}
	rep.RowsKept = len(res.Transactions)
	rep.Issues = buildIssues(*rep)

	log.Debugf("cleaner: %d lignes lues, %d conservées, %d retours, %d dates invalides, %d nombres invalides",
		rep.RowsRead, rep.RowsKept, rep.Returns, rep.BadTimestamp, rep.MalformedNumber)
	return res, nil
}

// ToRawTable reconvertit une table nettoyée au format brut ; Clean(ToRawTable(x)) est idempotent.
func ToRawTable(txs []models.Transaction) models.RawTable {
	rows := make([][]any, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, []any{
			tx.InvoiceID,
			tx.ProductCode,
			tx.Description,
			tx.Quantity,
			tx.UnitPrice,
			tx.Timestamp,
			tx.CustomerID,
			tx.Country,
		})
	}
	cols := make([]string, len(models.RequiredColumns))
	copy(cols, models.RequiredColumns)
	return models.RawTable{Columns: cols, Rows: rows}
}

func columnIndexes(columns []string) (map[string]int, error) {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		key := strings.ToLower(strings.TrimSpace(c))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	var missing []string
	for _, req := range models.RequiredColumns {
		if _, ok := idx[req]; !ok {
			missing = append(missing, req)
		}
	}
	if len(missing) > 0 {
		return nil, &models.ValidationError{Missing: missing}
	}
	return idx, nil
}

// Une quantité ≤ 0, un prix négatif ou une facture "C..." est un retour / une annulation.
func isReturn(tx models.Transaction) bool {
	if tx.Quantity <= 0 || tx.UnitPrice < 0 {
		return true
	}
	return strings.HasPrefix(strings.ToUpper(tx.InvoiceID), "C")
}

func buildIssues(rep Report) []models.Issue {
	var issues []models.Issue
	if rep.BadTimestamp > 0 {
		issues = append(issues, models.Warning(source, "bad_timestamp", rep.BadTimestamp,
			"%d rows dropped: unparseable timestamp", rep.BadTimestamp))
	}
	if rep.MalformedNumber > 0 {
		issues = append(issues, models.Warning(source, "malformed_number", rep.MalformedNumber,
			"%d rows dropped: non-numeric quantity or unit price", rep.MalformedNumber))
	}
	if rep.Returns > 0 {
		issues = append(issues, models.Warning(source, "returns", rep.Returns,
			"%d rows excluded as returns or cancellations", rep.Returns))
	}
	if rep.Anonymous > 0 {
		issues = append(issues, models.Warning(source, "anonymous_customer", rep.Anonymous,
			"%d rows without customer id kept for product-level analyses only", rep.Anonymous))
	}
	return issues
}

func cell(row []any, i int) any {
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func parseTimestamp(v any) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		if x.IsZero() {
			return time.Time{}, false
		}
		return x.UTC(), true
	case *time.Time:
		if x == nil || x.IsZero() {
			return time.Time{}, false
		}
		return x.UTC(), true
	}
	s := strings.TrimSpace(toString(v))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint64:
		f = float64(x)
	default:
		s := strings.TrimSpace(toString(v))
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Les quantités sont entières ; "6.0" est accepté, "2.5" ne l'est pas.
func parseQuantity(v any) (int, bool) {
	f, ok := parseFloat(v)
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

// Un identifiant numérique exporté en flottant ("17850.0") : seule la partie décimale nulle est retirée.
var integralDecimalRe = regexp.MustCompile(`^(\d+)\.0+$`)

// normalizeCustomerID ramène les identifiants à une forme texte canonique :
// 17850, 17850.0 et "17850.0" donnent tous "17850".
// Les entiers et les chaînes ne passent jamais par float64.
func normalizeCustomerID(v any) string {
	switch x := v.(type) {
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ""
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return normalizeCustomerID(float64(x))
	}
	s := strings.TrimSpace(toString(v))
	switch strings.ToLower(s) {
	case "", "nan", "null", "none", "<nil>", "inf", "+inf", "-inf", "infinity", "+infinity", "-infinity":
		return ""
	}
	if m := integralDecimalRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}
