// Package aggregator calcule les tables agrégées (produit, pays, mois, heure, jour de semaine)
// et les indicateurs globaux à partir de la table nettoyée.
package aggregator

import (
	"fmt"
	"sort"
	"time"

	"retail-analytics/pkg/idset"
	"retail-analytics/pkg/models"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("retail")

// Overview regroupe les KPI globaux.
type Overview struct {
	TotalRevenue   float64   `json:"total_revenue"`
	OrderCount     int       `json:"order_count"`
	CustomerCount  int       `json:"customer_count"`
	ProductCount   int       `json:"product_count"`
	Quantity       int       `json:"quantity"`
	AvgOrderValue  float64   `json:"avg_order_value"`
	FirstTimestamp time.Time `json:"first_timestamp"`
	LastTimestamp  time.Time `json:"last_timestamp"`
	AnonymousLines int       `json:"anonymous_lines"`
}

// SpanDays retourne la durée couverte par les données, en jours.
func (o Overview) SpanDays() float64 {
	if o.FirstTimestamp.IsZero() || o.LastTimestamp.IsZero() {
		return 0
	}
	return o.LastTimestamp.Sub(o.FirstTimestamp).Hours() / 24
}

// GroupMetric est une ligne d'une table agrégée.
type GroupMetric struct {
	Key           string  `json:"key"`
	Label         string  `json:"label"`
	Revenue       float64 `json:"revenue"`
	OrderCount    int     `json:"order_count"`
	Quantity      int     `json:"quantity"`
	CustomerCount int     `json:"customer_count"`
	AvgOrderValue float64 `json:"avg_order_value"`
	RevenueShare  float64 `json:"revenue_share"`
}

// Summary contient toutes les tables produites par Summarize.
type Summary struct {
	Overview  Overview               `json:"overview"`
	Products  []GroupMetric          `json:"products"`
	Countries []GroupMetric          `json:"countries"`
	Months    []models.MonthlyMetric `json:"months"`
	Hours     []GroupMetric          `json:"hours"`
	Weekdays  []GroupMetric          `json:"weekdays"`
}

type bucket struct {
	key       string
	label     string
	order     int
	month     time.Time
	revenue   float64
	quantity  int
	invoices  idset.Set
	customers idset.Set
}

func (b *bucket) add(tx models.Transaction, invoiceID uint32, customerID uint32, hasCustomer bool) {
	b.revenue += tx.Revenue()
	b.quantity += tx.Quantity
	b.invoices.Add(invoiceID)
	if hasCustomer {
		b.customers.Add(customerID)
	}
}

type grouping struct {
	buckets map[string]*bucket
}

func newGrouping() *grouping {
	return &grouping{buckets: make(map[string]*bucket)}
}

func (g *grouping) get(key string, init func(*bucket)) *bucket {
	b, ok := g.buckets[key]
	if !ok {
		b = &bucket{key: key}
		if init != nil {
			init(b)
		}
		g.buckets[key] = b
	}
	return b
}

// Summarize agrège la table nettoyée. Fonction pure : même entrée, même sortie.
func Summarize(txs []models.Transaction) Summary {
	invoices := idset.NewDictionary()
	customers := idset.NewDictionary()
	var allInvoices, allCustomers idset.Set
	products := newGrouping()
	countries := newGrouping()
	months := newGrouping()
	hours := newGrouping()
	weekdays := newGrouping()

	var ov Overview
	for _, tx := range txs {
		inv := invoices.ID(tx.InvoiceID)
		var cust uint32
		if tx.HasCustomer() {
			cust = customers.ID(tx.CustomerID)
			allCustomers.Add(cust)
		} else {
			ov.AnonymousLines++
		}
		allInvoices.Add(inv)
		ov.TotalRevenue += tx.Revenue()
		ov.Quantity += tx.Quantity
		if ov.FirstTimestamp.IsZero() || tx.Timestamp.Before(ov.FirstTimestamp) {
			ov.FirstTimestamp = tx.Timestamp
		}
		if tx.Timestamp.After(ov.LastTimestamp) {
			ov.LastTimestamp = tx.Timestamp
		}

		p := products.get(tx.ProductCode, nil)
		if p.label == "" {
			p.label = tx.Description
		}
		p.add(tx, inv, cust, tx.HasCustomer())

		countries.get(tx.Country, func(b *bucket) { b.label = tx.Country }).add(tx, inv, cust, tx.HasCustomer())

		m := MonthStart(tx.Timestamp)
		months.get(m.Format("2006-01"), func(b *bucket) { b.month = m }).add(tx, inv, cust, tx.HasCustomer())

		h := tx.Timestamp.Hour()
		hours.get(fmt.Sprintf("%02d", h), func(b *bucket) {
			b.order = h
			b.label = fmt.Sprintf("%02d:00", h)
		}).add(tx, inv, cust, tx.HasCustomer())

		wd := isoWeekday(tx.Timestamp.Weekday())
		weekdays.get(tx.Timestamp.Weekday().String(), func(b *bucket) {
			b.order = wd
			b.label = tx.Timestamp.Weekday().String()
		}).add(tx, inv, cust, tx.HasCustomer())
	}

	ov.OrderCount = allInvoices.Len()
	ov.CustomerCount = allCustomers.Len()
	ov.ProductCount = len(products.buckets)
	if ov.OrderCount > 0 {
		ov.AvgOrderValue = ov.TotalRevenue / float64(ov.OrderCount)
	}

	s := Summary{
		Overview:  ov,
		Products:  ranked(products, ov.TotalRevenue),
		Countries: ranked(countries, ov.TotalRevenue),
		Months:    monthly(months),
		Hours:     ordered(hours, ov.TotalRevenue),
		Weekdays:  ordered(weekdays, ov.TotalRevenue),
	}
	log.Debugf("aggregator: %d produits, %d pays, %d mois, CA=%.2f",
		len(s.Products), len(s.Countries), len(s.Months), ov.TotalRevenue)
	return s
}

// MonthlyTable retourne uniquement la table mensuelle, dans l'ordre chronologique.
func MonthlyTable(txs []models.Transaction) []models.MonthlyMetric {
	invoices := idset.NewDictionary()
	customers := idset.NewDictionary()
	months := newGrouping()
	for _, tx := range txs {
		var cust uint32
		if tx.HasCustomer() {
			cust = customers.ID(tx.CustomerID)
		}
		m := MonthStart(tx.Timestamp)
		months.get(m.Format("2006-01"), func(b *bucket) { b.month = m }).
			add(tx, invoices.ID(tx.InvoiceID), cust, tx.HasCustomer())
	}
	return monthly(months)
}

// MonthStart retourne le 1er jour du mois de t, en UTC.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Lundi = 0 ... dimanche = 6.
func isoWeekday(d time.Weekday) int {
	return (int(d) + 6) % 7
}

func (b *bucket) metric(total float64) GroupMetric {
	g := GroupMetric{
		Key:           b.key,
		Label:         b.label,
		Revenue:       b.revenue,
		OrderCount:    b.invoices.Len(),
		Quantity:      b.quantity,
		CustomerCount: b.customers.Len(),
	}
	if g.OrderCount > 0 {
		g.AvgOrderValue = g.Revenue / float64(g.OrderCount)
	}
	if total > 0 {
		g.RevenueShare = g.Revenue / total
	}
	return g
}

// rankedBefore : CA décroissant, puis nombre de commandes décroissant, puis clé croissante.
func rankedBefore(a, b GroupMetric) bool {
	if a.Revenue != b.Revenue {
		return a.Revenue > b.Revenue
	}
	if a.OrderCount != b.OrderCount {
		return a.OrderCount > b.OrderCount
	}
	return a.Key < b.Key
}

func ranked(g *grouping, total float64) []GroupMetric {
	out := make([]GroupMetric, 0, len(g.buckets))
	for _, b := range g.buckets {
		out = append(out, b.metric(total))
	}
	sort.Slice(out, func(i, j int) bool { return rankedBefore(out[i], out[j]) })
	return out
}

func ordered(g *grouping, total float64) []GroupMetric {
	bs := make([]*bucket, 0, len(g.buckets))
	for _, b := range g.buckets {
		bs = append(bs, b)
	}
	sort.Slice(bs, func(i, j int) bool { return bs[i].order < bs[j].order })
	out := make([]GroupMetric, 0, len(bs))
	for _, b := range bs {
		out = append(out, b.metric(total))
	}
	return out
}

func monthly(g *grouping) []models.MonthlyMetric {
	out := make([]models.MonthlyMetric, 0, len(g.buckets))
	for _, b := range g.buckets {
		out = append(out, models.MonthlyMetric{
			YearMonth:     b.key,
			Month:         b.month,
			Revenue:       b.revenue,
			OrderCount:    b.invoices.Len(),
			CustomerCount: b.customers.Len(),
			Quantity:      b.quantity,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month.Before(out[j].Month) })
	return out
}
