package rfm

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// OthersSegment est le segment par défaut pour toute combinaison non couverte.
const OthersSegment = "Others"

// Range est un intervalle fermé de scores [Min ; Max] sur l'échelle des règles.
// Un Range nul accepte tous les scores.
type Range struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

func (r Range) contains(score int) bool {
	if r.Min == 0 && r.Max == 0 {
		return true
	}
	return score >= r.Min && score <= r.Max
}

// SegmentRule associe un nom de segment à des intervalles R/F/M.
type SegmentRule struct {
	Name      string `yaml:"name" json:"name"`
	Recency   Range  `yaml:"recency" json:"recency"`
	Frequency Range  `yaml:"frequency" json:"frequency"`
	Monetary  Range  `yaml:"monetary" json:"monetary"`
	Priority  string `yaml:"priority" json:"priority"`
	Action    string `yaml:"action" json:"action"`
}

// SegmentRules est la définition ordonnée des segments : la première règle qui correspond gagne.
type SegmentRules struct {
	Scale   int           `yaml:"scale" json:"scale"`
	Default SegmentRule   `yaml:"default" json:"default"`
	Rules   []SegmentRule `yaml:"rules" json:"rules"`
}

var ErrInvalidRules = errors.New("invalid segment rules")

// DefaultSegmentRules retourne le schéma par défaut, écrit sur une échelle de 5.
func DefaultSegmentRules() SegmentRules {
	return SegmentRules{
		Scale: 5,
		Default: SegmentRule{
			Name: OthersSegment, Priority: "LOW",
			Action: "Monitor behavior patterns and run general campaigns",
		},
		Rules: []SegmentRule{
			{
				Name: "Champions", Recency: Range{4, 5}, Frequency: Range{4, 5}, Monetary: Range{4, 5},
				Priority: "HIGHEST", Action: "Reward with VIP programs and early access",
			},
			{
				Name: "Loyal Customers", Recency: Range{3, 5}, Frequency: Range{3, 5}, Monetary: Range{3, 5},
				Priority: "HIGH", Action: "Upsell premium products and cross-sell",
			},
			{
				Name: "New Customers", Recency: Range{5, 5}, Frequency: Range{1, 1},
				Priority: "HIGH", Action: "Welcome series and second purchase incentive",
			},
			{
				Name: "Potential Loyalists", Recency: Range{4, 5}, Frequency: Range{2, 3},
				Priority: "MEDIUM", Action: "Nurture with personalized recommendations",
			},
			{
				Name: "Promising", Recency: Range{4, 4}, Frequency: Range{1, 1},
				Priority: "MEDIUM", Action: "Limited-time offers and bundles",
			},
			// doit précéder At Risk, qui couvre aussi F4–5 M3–5
			{
				Name: "Can't Lose Them", Recency: Range{1, 2}, Frequency: Range{4, 5},
				Priority: "URGENT", Action: "Personal outreach before they churn",
			},
			{
				Name: "At Risk", Recency: Range{1, 2}, Frequency: Range{3, 5}, Monetary: Range{3, 5},
				Priority: "URGENT", Action: "Win-back campaigns and reactivation discounts",
			},
			{
				Name: "Hibernating", Recency: Range{2, 3}, Frequency: Range{1, 2},
				Priority: "HIGH", Action: "Deep discount win-back offers",
			},
			{
				Name: "Lost", Recency: Range{1, 1}, Frequency: Range{1, 2},
				Priority: "LOW", Action: "Final win-back attempt, then stop spending",
			},
		},
	}
}

// LoadSegmentRules lit un fichier YAML de règles. Un chemin vide retourne le schéma par défaut.
func LoadSegmentRules(path string) (SegmentRules, error) {
	if path == "" {
		return DefaultSegmentRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return SegmentRules{}, fmt.Errorf("read segment rules: %w", err)
	}
	var rules SegmentRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return SegmentRules{}, fmt.Errorf("parse segment rules %s: %w", path, err)
	}
	if err := rules.Validate(); err != nil {
		return SegmentRules{}, err
	}
	return rules, nil
}

// Validate vérifie l'échelle, les noms et les intervalles.
func (s SegmentRules) Validate() error {
	if s.Scale < 1 {
		return fmt.Errorf("%w: scale must be >= 1, got %d", ErrInvalidRules, s.Scale)
	}
	for i, r := range s.Rules {
		if r.Name == "" {
			return fmt.Errorf("%w: rule %d has no name", ErrInvalidRules, i)
		}
		for _, rg := range []Range{r.Recency, r.Frequency, r.Monetary} {
			if rg.Min == 0 && rg.Max == 0 {
				continue
			}
			if rg.Min < 1 || rg.Max > s.Scale || rg.Min > rg.Max {
				return fmt.Errorf("%w: rule %q has range [%d;%d] outside 1..%d",
					ErrInvalidRules, r.Name, rg.Min, rg.Max, s.Scale)
			}
		}
	}
	return nil
}

// SegmentTable est la table exhaustive (R, F, M) → segment pour un nombre de classes donné.
type SegmentTable struct {
	binCount int
	cells    []int // index dans rules, -1 pour le défaut
	rules    []SegmentRule
	fallback SegmentRule
}

// NewSegmentTable développe les règles sur chaque triplet de scores 1..binCount.
// Chaque score est projeté sur l'échelle des règles par ceil(score*scale/binCount).
func NewSegmentTable(rules SegmentRules, binCount int) (*SegmentTable, error) {
	if binCount < 1 {
		return nil, fmt.Errorf("%w: bin count must be >= 1, got %d", ErrInvalidRules, binCount)
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	fallback := rules.Default
	if fallback.Name == "" {
		fallback.Name = OthersSegment
	}
	t := &SegmentTable{
		binCount: binCount,
		cells:    make([]int, binCount*binCount*binCount),
		rules:    rules.Rules,
		fallback: fallback,
	}
	project := func(score int) int {
		return (score*rules.Scale + binCount - 1) / binCount
	}
	for r := 1; r <= binCount; r++ {
		for f := 1; f <= binCount; f++ {
			for m := 1; m <= binCount; m++ {
				pr, pf, pm := project(r), project(f), project(m)
				match := -1
				for i, rule := range rules.Rules {
					if rule.Recency.contains(pr) && rule.Frequency.contains(pf) && rule.Monetary.contains(pm) {
						match = i
						break
					}
				}
				t.cells[t.index(r, f, m)] = match
			}
		}
	}
	return t, nil
}

func (t *SegmentTable) index(r, f, m int) int {
	k := t.binCount
	return ((r-1)*k+(f-1))*k + (m - 1)
}

// Lookup retourne le segment d'un triplet de scores ; hors bornes → segment par défaut.
func (t *SegmentTable) Lookup(r, f, m int) SegmentRule {
	k := t.binCount
	if r < 1 || r > k || f < 1 || f > k || m < 1 || m > k {
		return t.fallback
	}
	if i := t.cells[t.index(r, f, m)]; i >= 0 {
		return t.rules[i]
	}
	return t.fallback
}

// Rule retourne la définition d'un segment par son nom.
func (t *SegmentTable) Rule(name string) (SegmentRule, bool) {
	if name == t.fallback.Name {
		return t.fallback, true
	}
	for _, r := range t.rules {
		if r.Name == name {
			return r, true
		}
	}
	return SegmentRule{}, false
}

// BinCount retourne le nombre de classes pour lequel la table a été développée.
func (t *SegmentTable) BinCount() int {
	return t.binCount
}
