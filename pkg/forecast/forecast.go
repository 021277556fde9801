// Package forecast projette le chiffre d'affaires mensuel : tendance linéaire × indice saisonnier,
// avec un intervalle qui s'élargit avec l'horizon.
package forecast

import (
	"errors"
	"fmt"
	"math"
	"time"

	"retail-analytics/pkg/models"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("retail")

const (
	source = "forecast"
	// Nombre minimal de mois pour projeter.
	MinHistory = 3
	// Nombre de mois nécessaire pour estimer les indices saisonniers.
	SeasonalPeriods = 12
)

var (
	ErrInsufficientHistory = errors.New("insufficient history")
	ErrInvalidOptions      = errors.New("invalid forecast options")
	ErrInvalidHistory      = errors.New("invalid forecast history")
)

// Options paramètre la projection.
type Options struct {
	HorizonMonths int
	MinPeriods    int
	BandFraction  float64
	Z             float64
}

func DefaultOptions() Options {
	return Options{HorizonMonths: 12, MinPeriods: 12, BandFraction: 0.15, Z: 1.28}
}

func (o Options) validate() error {
	switch {
	case o.HorizonMonths < 1:
		return fmt.Errorf("%w: horizon must be >= 1, got %d", ErrInvalidOptions, o.HorizonMonths)
	case o.MinPeriods < MinHistory:
		return fmt.Errorf("%w: min periods must be >= %d, got %d", ErrInvalidOptions, MinHistory, o.MinPeriods)
	case o.BandFraction < 0 || o.Z < 0:
		return fmt.Errorf("%w: band fraction and z must be >= 0", ErrInvalidOptions)
	}
	return nil
}

// Trend est la droite des moindres carrés, x = rang du mois (0 = premier mois).
type Trend struct {
	Intercept float64 `json:"intercept"`
	Slope     float64 `json:"slope"`
}

func (t Trend) At(x float64) float64 {
	return t.Intercept + t.Slope*x
}

// Summary compare historique et projection.
type Summary struct {
	HistoricalAvg float64 `json:"historical_avg"`
	ForecastAvg   float64 `json:"forecast_avg"`
	GrowthPct     float64 `json:"growth_pct"`
	ForecastTotal float64 `json:"forecast_total"`
	PeakMonth     string  `json:"peak_month"`
	PeakRevenue   float64 `json:"peak_revenue"`
}

// SeasonalPoint est le CA moyen observé pour un mois calendaire.
type SeasonalPoint struct {
	Month      int     `json:"month"`
	Label      string  `json:"label"`
	AvgRevenue float64 `json:"avg_revenue"`
	Index      float64 `json:"seasonal_index"`
}

// Result contient la projection et son contexte.
type Result struct {
	Points   []models.ForecastPoint `json:"points"`
	History  []models.MonthlyMetric `json:"history"` // série complétée (mois manquants à zéro)
	Trend    Trend                  `json:"trend"`
	Indices  [12]float64            `json:"seasonal_indices"`
	Sigma    float64                `json:"sigma"`
	Summary  Summary                `json:"summary"`
	Seasonal []SeasonalPoint        `json:"seasonal_profile"`
	Issues   []models.Issue         `json:"issues,omitempty"`
}

// Project projette HorizonMonths mois après le dernier mois observé.
func Project(history []models.MonthlyMetric, opts Options) (Result, error) {
	if err := opts.validate(); err != nil {
		return Result{}, err
	}
	series, err := fillGaps(history)
	if err != nil {
		return Result{}, err
	}
	n := len(series)
	if n < MinHistory {
		return Result{}, fmt.Errorf("%w: %d months, need at least %d", ErrInsufficientHistory, n, MinHistory)
	}

	res := Result{History: series}
	y := make([]float64, n)
	for i, m := range series {
		y[i] = m.Revenue
	}
	res.Trend = fitTrend(y)
	mean := average(y)

	if n >= SeasonalPeriods {
		res.Indices = seasonalIndices(series, res.Trend)
	} else {
		for i := range res.Indices {
			res.Indices[i] = 1
		}
		res.Issues = append(res.Issues, models.Degraded(source, "no_seasonality",
			"%d months of history, seasonal indices need %d; using 1.0", n, SeasonalPeriods))
	}

	ss := 0.0
	for i, m := range series {
		fitted := res.Trend.At(float64(i)) * res.Indices[m.Month.Month()-1]
		ss += (y[i] - fitted) * (y[i] - fitted)
	}
	res.Sigma = math.Sqrt(ss / float64(n-2))

	widen := 1.0
	if n < opts.MinPeriods {
		widen = math.Sqrt(float64(opts.MinPeriods) / float64(n))
		res.Issues = append(res.Issues,
			models.Warning(source, "short_history", n, "%d months of history, %d recommended", n, opts.MinPeriods),
			models.Degraded(source, "widened_interval", "confidence band widened by %.3f", widen))
	}

	last := series[n-1].Month
	for h := 1; h <= opts.HorizonMonths; h++ {
		month := last.AddDate(0, h, 0)
		pred := math.Max(0, res.Trend.At(float64(n-1+h))*res.Indices[month.Month()-1])
		hw := widen * (opts.Z*res.Sigma + opts.BandFraction*mean) * math.Sqrt(float64(h))
		lower, upper := pred-hw, pred+hw
		if lower < 0 {
			upper -= lower
			lower = 0
		}
		res.Points = append(res.Points, models.ForecastPoint{
			YearMonth:        month.Format("2006-01"),
			Month:            month,
			Horizon:          h,
			PredictedRevenue: pred,
			LowerBound:       lower,
			UpperBound:       upper,
		})
	}
	res.Summary = summarize(mean, res.Points)
	res.Seasonal = seasonalProfile(series, res.Indices)

	log.Debugf("forecast: %d mois d'historique, %d mois projetés, sigma=%.2f", n, len(res.Points), res.Sigma)
	return res, nil
}

// fillGaps trie l'historique et insère un mois à zéro pour chaque mois manquant.
// Une ligne dont le mois ne peut être déterminé invalide tout l'historique.
func fillGaps(history []models.MonthlyMetric) ([]models.MonthlyMetric, error) {
	if len(history) == 0 {
		return nil, nil
	}
	byMonth := make(map[string]models.MonthlyMetric, len(history))
	var first, last time.Time
	for i, m := range history {
		start, err := monthOf(m)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrInvalidHistory, i, err)
		}
		if i == 0 {
			first, last = start, start
		}
		m.Month = start
		m.YearMonth = start.Format("2006-01")
		if prev, ok := byMonth[m.YearMonth]; ok {
			m.Revenue += prev.Revenue
			m.OrderCount += prev.OrderCount
			m.CustomerCount += prev.CustomerCount
			m.Quantity += prev.Quantity
		}
		byMonth[m.YearMonth] = m
		if start.Before(first) {
			first = start
		}
		if start.After(last) {
			last = start
		}
	}
	var out []models.MonthlyMetric
	for cur := first; !cur.After(last); cur = cur.AddDate(0, 1, 0) {
		key := cur.Format("2006-01")
		m, ok := byMonth[key]
		if !ok {
			m = models.MonthlyMetric{YearMonth: key, Month: cur}
		}
		out = append(out, m)
	}
	return out, nil
}

// monthOf retourne le premier jour du mois de m, depuis Month ou à défaut YearMonth ("2006-01").
func monthOf(m models.MonthlyMetric) (time.Time, error) {
	t := m.Month.UTC()
	if t.IsZero() {
		parsed, err := time.Parse("2006-01", m.YearMonth)
		if err != nil {
			return time.Time{}, fmt.Errorf("unresolvable month %q", m.YearMonth)
		}
		t = parsed
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
}

func fitTrend(y []float64) Trend {
	n := float64(len(y))
	xMean := (n - 1) / 2
	yMean := average(y)
	num, den := 0.0, 0.0
	for i, v := range y {
		dx := float64(i) - xMean
		num += dx * (v - yMean)
		den += dx * dx
	}
	slope := 0.0
	if den > 0 {
		slope = num / den
	}
	return Trend{Intercept: yMean - slope*xMean, Slope: slope}
}

// seasonalIndices : moyenne de réel/tendance par mois calendaire, normalisée à une moyenne de 1.
func seasonalIndices(series []models.MonthlyMetric, trend Trend) [12]float64 {
	var sum [12]float64
	var count [12]int
	for i, m := range series {
		tv := trend.At(float64(i))
		if tv <= 0 {
			continue
		}
		k := m.Month.Month() - 1
		sum[k] += m.Revenue / tv
		count[k]++
	}
	var idx [12]float64
	total := 0.0
	for k := range idx {
		idx[k] = 1
		if count[k] > 0 {
			idx[k] = sum[k] / float64(count[k])
		}
		total += idx[k]
	}
	if total > 0 {
		for k := range idx {
			idx[k] *= 12 / total
		}
	}
	return idx
}

func summarize(histAvg float64, points []models.ForecastPoint) Summary {
	s := Summary{HistoricalAvg: histAvg}
	for _, p := range points {
		s.ForecastTotal += p.PredictedRevenue
		if s.PeakMonth == "" || p.PredictedRevenue > s.PeakRevenue {
			s.PeakMonth = p.YearMonth
			s.PeakRevenue = p.PredictedRevenue
		}
	}
	if len(points) > 0 {
		s.ForecastAvg = s.ForecastTotal / float64(len(points))
	}
	if histAvg > 0 {
		s.GrowthPct = (s.ForecastAvg - histAvg) / histAvg * 100
	}
	return s
}

func seasonalProfile(series []models.MonthlyMetric, idx [12]float64) []SeasonalPoint {
	var sum [12]float64
	var count [12]int
	for _, m := range series {
		k := m.Month.Month() - 1
		sum[k] += m.Revenue
		count[k]++
	}
	var out []SeasonalPoint
	for k := 0; k < 12; k++ {
		if count[k] == 0 {
			continue
		}
		out = append(out, SeasonalPoint{
			Month:      k + 1,
			Label:      time.Month(k + 1).String()[:3],
			AvgRevenue: sum[k] / float64(count[k]),
			Index:      idx[k],
		})
	}
	return out
}

func average(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}
