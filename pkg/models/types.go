package models

import (
	"time"
)

/*
LOAD → table brute telle que fournie par une source (CSV, base de données, API).
*/

// RequiredColumns est le jeu de colonnes obligatoire du flux de transactions.
var RequiredColumns = []string{
	"invoice_id",
	"product_code",
	"description",
	"quantity",
	"unit_price",
	"timestamp",
	"customer_id",
	"country",
}

// RawTable représente un flux tabulaire brut : noms de colonnes + lignes de valeurs non typées.
type RawTable struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

/*
CLEAN → transaction canonique produite par le cleaner.
*/

// Transaction est une ligne de facture nettoyée.
type Transaction struct {
	InvoiceID   string    `json:"invoice_id"`
	ProductCode string    `json:"product_code"`
	Description string    `json:"description"`
	Quantity    int       `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	Timestamp   time.Time `json:"timestamp"`
	CustomerID  string    `json:"customer_id"` // vide = client anonyme
	Country     string    `json:"country"`
}

// Revenue retourne le chiffre d'affaires de la ligne (quantité × prix unitaire).
func (t Transaction) Revenue() float64 {
	return float64(t.Quantity) * t.UnitPrice
}

// HasCustomer indique si la ligne est rattachée à un client identifié.
func (t Transaction) HasCustomer() bool {
	return t.CustomerID != ""
}

/*
COMPUTE → tables dérivées exposées à la couche de présentation.
*/

// MonthlyMetric contient les agrégats d'un mois calendaire.
type MonthlyMetric struct {
	YearMonth     string    `json:"year_month"` // "2006-01"
	Month         time.Time `json:"month"`      // 1er jour du mois, UTC
	Revenue       float64   `json:"revenue"`
	OrderCount    int       `json:"order_count"`
	CustomerCount int       `json:"customer_count"`
	Quantity      int       `json:"quantity"`
}

// CustomerProfile est la ligne RFM d'un client.
type CustomerProfile struct {
	CustomerID     string    `json:"customer_id"`
	Country        string    `json:"country"`
	FirstPurchase  time.Time `json:"first_purchase"`
	LastPurchase   time.Time `json:"last_purchase"`
	RecencyDays    int       `json:"recency_days"`
	Frequency      int       `json:"frequency_count"`
	Monetary       float64   `json:"monetary_total"`
	RecencyScore   int       `json:"recency_score"`
	FrequencyScore int       `json:"frequency_score"`
	MonetaryScore  int       `json:"monetary_score"`
	RFMCode        string    `json:"rfm_code"`  // ex: "545"
	RFMScore       int       `json:"rfm_score"` // somme des trois scores
	Segment        string    `json:"segment_label"`
}

// AssociationRule est une règle antécédent → conséquent.
type AssociationRule struct {
	Antecedent []string `json:"antecedent_set"`
	Consequent []string `json:"consequent_set"`
	Support    float64  `json:"support"`
	Confidence float64  `json:"confidence"`
	Lift       float64  `json:"lift"`
	Count      int      `json:"count"` // nombre de factures contenant antécédent ∪ conséquent
}

// CohortCell est une cellule (cohorte × période) de la matrice de rétention.
type CohortCell struct {
	CohortMonth       string  `json:"cohort_month"`
	PeriodIndex       int     `json:"period_index"`
	RetainedCustomers int     `json:"retained_customer_count"`
	RetentionRate     float64 `json:"retention_rate"`
	Revenue           float64 `json:"revenue"`
	CumulativeLTV     float64 `json:"cumulative_ltv"`
}

// CohortLTV contient la LTV moyenne d'une cohorte mensuelle.
type CohortLTV struct {
	MonthYear     string  `json:"month_year"` // "MM/YYYY"
	LTVAvg        float64 `json:"ltv_avg"`
	CohortClients int     `json:"cohort_clients"`
	EventsRead    int     `json:"events_read"`
}

// LTVConfig paramètre le calcul de LTV mensuelle par cohorte.
type LTVConfig struct {
	StartMonthInclusive string    // MMYYYY
	EndMonthInclusive   string    // MMYYYY
	Observation         time.Time // borne exclusive de la période observée ; zéro = mois suivant la dernière transaction
	Verbose             bool
}

// ForecastPoint est une projection mensuelle de chiffre d'affaires.
type ForecastPoint struct {
	YearMonth        string    `json:"year_month"`
	Month            time.Time `json:"month"`
	Horizon          int       `json:"horizon"` // 1 = premier mois après le dernier mois observé
	PredictedRevenue float64   `json:"predicted_revenue"`
	LowerBound       float64   `json:"lower_bound"`
	UpperBound       float64   `json:"upper_bound"`
}

// ChurnScore est le score CLV / churn d'un client.
type ChurnScore struct {
	CustomerID           string  `json:"customer_id"`
	PredictedCLV         float64 `json:"predicted_clv"`
	ChurnProbability     float64 `json:"churn_probability"`
	RiskTier             string  `json:"risk_tier"`
	ValueTier            string  `json:"value_tier"`
	ExpectedIntervalDays float64 `json:"expected_interval_days"`
	RelativeRecency      float64 `json:"relative_recency"`
	Action               string  `json:"action"`
}

/*
EXPORT → tables nommées remises aux exporteurs.
*/

// Artifact est une table nommée, ordonnée, prête à être sérialisée.
type Artifact struct {
	Name    string `json:"name"`
	Records any    `json:"records"`
}
