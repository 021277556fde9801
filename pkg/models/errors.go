package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrValidation est la sentinelle de toutes les erreurs de schéma.
var ErrValidation = errors.New("validation error")

// ValidationError signale un schéma d'entrée invalide (colonnes obligatoires absentes).
// C'est la seule erreur fatale d'un run.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: missing required columns: %s", strings.Join(e.Missing, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IssueKind classe les anomalies non fatales.
type IssueKind string

const (
	// DataQualityWarning : lignes écartées, échantillon trop petit, historique insuffisant.
	DataQualityWarning IssueKind = "data_quality_warning"
	// ComputationDegraded : moins de classes que demandé, intervalle de confiance élargi.
	ComputationDegraded IssueKind = "computation_degraded"
)

// Issue est une anomalie non fatale, transmise à côté du résultat.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Source  string    `json:"source"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Count   int       `json:"count,omitempty"`
}

// Warning construit une Issue de qualité de données.
func Warning(source, code string, count int, format string, args ...any) Issue {
	return Issue{Kind: DataQualityWarning, Source: source, Code: code, Count: count, Message: fmt.Sprintf(format, args...)}
}

// Degraded construit une Issue de calcul dégradé.
func Degraded(source, code string, format string, args ...any) Issue {
	return Issue{Kind: ComputationDegraded, Source: source, Code: code, Message: fmt.Sprintf(format, args...)}
}
