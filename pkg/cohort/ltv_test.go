package cohort

import (
	"math"
	"testing"
	"time"

	"retail-analytics/pkg/models"
)

func TestParseMonth_Valid(t *testing.T) {
	got, err := parseMonth("032025")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestParseMonth_InvalidLength(t *testing.T) {
	_, err := parseMonth("32025") // 5 chars
	if err == nil {
		t.Fatal("expected error for invalid length, got nil")
	}
}

func TestParseMonth_InvalidMonth(t *testing.T) {
	_, err := parseMonth("132025") // 13th month
	if err == nil {
		t.Fatal("expected error for invalid month, got nil")
	}
}

func TestParseMonth_NotDigits(t *testing.T) {
	if _, err := parseMonth("0a2025"); err == nil {
		t.Fatal("expected error for non-digit input, got nil")
	}
}

func TestMonthsBetweenInclusive(t *testing.T) {
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	got := monthsBetweenInclusive(start, end)
	if len(got) != 4 {
		t.Fatalf("got %d months, want 4", len(got))
	}
	// spot-check
	if got[0].Month() != time.March || got[3].Month() != time.June {
		t.Fatalf("unexpected months: %v", got)
	}
}

func TestFormatMonth(t *testing.T) {
	d := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	if fm := formatMonth(d); fm != "11/2025" {
		t.Fatalf("got %q, want %q", fm, "11/2025")
	}
}

func TestLTV(t *testing.T) {
	at := func(m time.Month, d int) time.Time { return time.Date(2025, m, d, 10, 0, 0, 0, time.UTC) }
	txs := []models.Transaction{
		{InvoiceID: "1", CustomerID: "a", Quantity: 2, UnitPrice: 10, Timestamp: at(1, 3)},
		{InvoiceID: "2", CustomerID: "b", Quantity: 1, UnitPrice: 30, Timestamp: at(1, 20)},
		{InvoiceID: "3", CustomerID: "a", Quantity: 1, UnitPrice: 40, Timestamp: at(2, 5)},
		{InvoiceID: "4", CustomerID: "c", Quantity: 1, UnitPrice: 5, Timestamp: at(2, 6)},
		{InvoiceID: "5", CustomerID: "a", Quantity: 1, UnitPrice: 100, Timestamp: at(3, 1)},
		{InvoiceID: "6", CustomerID: "", Quantity: 1, UnitPrice: 999, Timestamp: at(1, 4)},
	}
	res, err := LTV(txs, models.LTVConfig{
		StartMonthInclusive: "012025",
		EndMonthInclusive:   "022025",
		Observation:         time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res) != 2 {
		t.Fatalf("got %d cohorts, want 2", len(res))
	}
	// janvier : a=20+40, b=30 → (60+30)/2 ; la facture de mars est hors période
	jan := res[0]
	if jan.MonthYear != "01/2025" || jan.CohortClients != 2 || jan.EventsRead != 3 || math.Abs(jan.LTVAvg-45) > 1e-9 {
		t.Fatalf("unexpected january cohort: %+v", jan)
	}
	feb := res[1]
	if feb.CohortClients != 1 || math.Abs(feb.LTVAvg-5) > 1e-9 {
		t.Fatalf("unexpected february cohort: %+v", feb)
	}
}

func TestLTV_InvalidRange(t *testing.T) {
	if _, err := LTV(nil, models.LTVConfig{StartMonthInclusive: "032025", EndMonthInclusive: "012025"}); err == nil {
		t.Fatal("expected error for end < start, got nil")
	}
}
