// Package filter applique les filtres globaux (pays, clients, période) à la table nettoyée.
package filter

import (
	"strings"
	"time"

	"retail-analytics/pkg/models"
)

// Criteria regroupe les filtres globaux. Un champ vide ne filtre rien.
// La période est [Start ; End) en UTC.
type Criteria struct {
	Countries   []string
	CustomerIDs []string
	Start       time.Time
	End         time.Time
}

// IsZero indique qu'aucun filtre n'est actif.
func (c Criteria) IsZero() bool {
	return len(c.Countries) == 0 && len(c.CustomerIDs) == 0 && c.Start.IsZero() && c.End.IsZero()
}

// Apply retourne une nouvelle table contenant les lignes retenues ; l'entrée n'est pas modifiée.
func Apply(txs []models.Transaction, c Criteria) []models.Transaction {
	if c.IsZero() {
		out := make([]models.Transaction, len(txs))
		copy(out, txs)
		return out
	}
	countries := toSet(c.Countries, strings.ToLower)
	customers := toSet(c.CustomerIDs, nil)

	out := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if len(countries) > 0 {
			if _, ok := countries[strings.ToLower(tx.Country)]; !ok {
				continue
			}
		}
		if len(customers) > 0 {
			if _, ok := customers[tx.CustomerID]; !ok {
				continue
			}
		}
		if !c.Start.IsZero() && tx.Timestamp.Before(c.Start) {
			continue
		}
		if !c.End.IsZero() && !tx.Timestamp.Before(c.End) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

func toSet(values []string, norm func(string) string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if norm != nil {
			v = norm(v)
		}
		set[v] = struct{}{}
	}
	return set
}
