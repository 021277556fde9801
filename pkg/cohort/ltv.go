package cohort

import (
	"fmt"
	"time"

	"retail-analytics/pkg/models"

	"github.com/schollz/progressbar/v3"
)

// LTV calcule, pour chaque mois de cohorte entre start et end (MMYYYY, inclus),
// le CA moyen par client de la cohorte, du mois de cohorte jusqu'au mois d'observation (exclu).
// Montant = quantité × prix unitaire, sur les transactions nettoyées.
func LTV(txs []models.Transaction, cfg models.LTVConfig) ([]models.CohortLTV, error) {
	start, err := parseMonth(cfg.StartMonthInclusive)
	if err != nil {
		return nil, fmt.Errorf("start_month: %w", err)
	}
	end, err := parseMonth(cfg.EndMonthInclusive)
	if err != nil {
		return nil, fmt.Errorf("end_month: %w", err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("end_month < start_month")
	}

	// Premier achat par client identifié
	first := make(map[string]time.Time)
	var last time.Time
	for _, tx := range txs {
		if tx.Timestamp.After(last) {
			last = tx.Timestamp
		}
		if !tx.HasCustomer() {
			continue
		}
		if f, ok := first[tx.CustomerID]; !ok || tx.Timestamp.Before(f) {
			first[tx.CustomerID] = tx.Timestamp
		}
	}
	obs := cfg.Observation
	if obs.IsZero() {
		obs = monthStart(last).AddDate(0, 1, 0)
	}
	periodEnd := monthStart(obs)

	months := monthsBetweenInclusive(start, end)
	var bar *progressbar.ProgressBar
	if cfg.Verbose {
		bar = progressbar.Default(int64(len(months)), "ltv")
	}

	results := make([]models.CohortLTV, 0, len(months))
	for _, m := range months {
		cohortStart := m
		cohortEnd := cohortStart.AddDate(0, 1, 0)

		cohortClients := 0
		for _, f := range first {
			if !f.Before(cohortStart) && f.Before(cohortEnd) {
				cohortClients++
			}
		}

		// Lignes des clients de la cohorte dans [cohortStart ; periodEnd)
		eventsRead := 0
		sumByClient := map[string]float64{}
		for _, tx := range txs {
			if !tx.HasCustomer() || tx.Timestamp.Before(cohortStart) || !tx.Timestamp.Before(periodEnd) {
				continue
			}
			f := first[tx.CustomerID]
			if f.Before(cohortStart) || !f.Before(cohortEnd) {
				continue
			}
			eventsRead++
			sumByClient[tx.CustomerID] += tx.Revenue()
		}

		ltv := 0.0
		if len(sumByClient) > 0 {
			total := 0.0
			for _, v := range sumByClient {
				total += v
			}
			ltv = total / float64(len(sumByClient))
		}
		results = append(results, models.CohortLTV{
			MonthYear:     formatMonth(cohortStart),
			LTVAvg:        ltv,
			CohortClients: cohortClients,
			EventsRead:    eventsRead,
		})

		if bar != nil {
			_ = bar.Add(1)
		}
		if cfg.Verbose {
			log.Infof("%s -> LTV=%.6f | clients=%d events=%d",
				formatMonth(cohortStart), ltv, cohortClients, eventsRead)
		}
	}
	return results, nil
}

// parseMonth("MMYYYY") -> 1er jour du mois UTC
func parseMonth(mmyyyy string) (time.Time, error) {
	if len(mmyyyy) != 6 {
		return time.Time{}, fmt.Errorf("format attendu MMYYYY (ex: 012025)")
	}
	for _, c := range mmyyyy {
		if c < '0' || c > '9' {
			return time.Time{}, fmt.Errorf("format attendu MMYYYY (ex: 012025)")
		}
	}
	month := int(mmyyyy[0]-'0')*10 + int(mmyyyy[1]-'0')
	year := int(mmyyyy[2]-'0')*1000 + int(mmyyyy[3]-'0')*100 + int(mmyyyy[4]-'0')*10 + int(mmyyyy[5]-'0')
	if month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("mois invalide")
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

func monthsBetweenInclusive(start, end time.Time) []time.Time {
	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC)
	var out []time.Time
	for !cur.After(last) {
		out = append(out, cur)
		cur = cur.AddDate(0, 1, 0)
	}
	return out
}

func formatMonth(t time.Time) string {
	return fmt.Sprintf("%02d/%04d", int(t.Month()), t.Year())
}
