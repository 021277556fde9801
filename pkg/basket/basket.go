// Package basket extrait les ensembles fréquents et les règles d'association
// à partir des paniers (facture → produits).
package basket

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"retail-analytics/pkg/idset"
	"retail-analytics/pkg/models"

	"github.com/RoaringBitmap/roaring"
	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("retail")

const source = "basket"

var ErrInvalidOptions = errors.New("invalid basket options")

// Options paramètre la recherche. MaxRules = 0 ne limite pas le nombre de règles.
type Options struct {
	MinSupport     float64
	MinConfidence  float64
	MinLift        float64
	MaxItemsetSize int
	MaxRules       int
}

// DefaultOptions retourne les seuils par défaut.
func DefaultOptions() Options {
	return Options{
		MinSupport:     0.01,
		MinConfidence:  0.2,
		MinLift:        0,
		MaxItemsetSize: 3,
	}
}

func (o Options) validate() error {
	switch {
	case o.MinSupport <= 0 || o.MinSupport > 1:
		return fmt.Errorf("%w: min support must be in (0;1], got %v", ErrInvalidOptions, o.MinSupport)
	case o.MinConfidence < 0 || o.MinConfidence > 1:
		return fmt.Errorf("%w: min confidence must be in [0;1], got %v", ErrInvalidOptions, o.MinConfidence)
	case o.MinLift < 0:
		return fmt.Errorf("%w: min lift must be >= 0, got %v", ErrInvalidOptions, o.MinLift)
	case o.MaxItemsetSize < 2:
		return fmt.Errorf("%w: max itemset size must be >= 2, got %d", ErrInvalidOptions, o.MaxItemsetSize)
	case o.MaxRules < 0:
		return fmt.Errorf("%w: max rules must be >= 0, got %d", ErrInvalidOptions, o.MaxRules)
	}
	return nil
}

// Itemset est un ensemble fréquent.
type Itemset struct {
	Items   []string `json:"items"`
	Support float64  `json:"support"`
	Count   int      `json:"count"`
}

// Stats décrit les paniers.
type Stats struct {
	Products         int     `json:"product_count"`
	Invoices         int     `json:"invoice_count"`
	AvgBasketSize    float64 `json:"avg_basket_size"`
	MaxBasketSize    int     `json:"max_basket_size"`
	AvgDistinctItems float64 `json:"avg_distinct_items"`
}

// Result contient les ensembles fréquents (taille ≥ 1), les règles triées et les statistiques.
type Result struct {
	Itemsets []Itemset                `json:"itemsets"`
	Rules    []models.AssociationRule `json:"rules"`
	Stats    Stats                    `json:"stats"`
	Issues   []models.Issue           `json:"issues,omitempty"`
}

// Mine construit les paniers puis lance la recherche par niveaux.
func Mine(txs []models.Transaction, opts Options) (Result, error) {
	if err := opts.validate(); err != nil {
		return Result{}, err
	}
	b := newBaskets(txs)
	res := Result{Stats: b.stats()}
	if b.invoices == 0 {
		res.Issues = append(res.Issues, models.Warning(source, "no_baskets", 0, "no invoice to mine"))
		return res, nil
	}

	a := newArena(b, opts)
	a.search()
	res.Itemsets = a.itemsets()
	res.Rules = a.rules()

	if a.maxLevel < 2 {
		res.Issues = append(res.Issues, models.Warning(source, "no_frequent_pairs", 0,
			"no product pair reaches min support %.4f over %d invoices", opts.MinSupport, b.invoices))
	} else if len(res.Rules) == 0 {
		res.Issues = append(res.Issues, models.Warning(source, "no_rules", 0,
			"no rule passes min confidence %.2f and min lift %.2f", opts.MinConfidence, opts.MinLift))
	}
	log.Debugf("basket: %d factures, %d ensembles fréquents, %d règles", b.invoices, len(res.Itemsets), len(res.Rules))
	return res, nil
}

// baskets indexe les produits (identifiants attribués dans l'ordre des codes) et leurs factures.
type baskets struct {
	codes    []string
	tids     []*roaring.Bitmap // par produit
	invoices int
	sizes    map[uint32]int // quantité totale par facture
	distinct map[uint32]int // nombre de produits distincts par facture
}

func newBaskets(txs []models.Transaction) *baskets {
	seen := make(map[string]struct{})
	for _, tx := range txs {
		if tx.ProductCode != "" {
			seen[tx.ProductCode] = struct{}{}
		}
	}
	codes := make([]string, 0, len(seen))
	for c := range seen {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	productID := make(map[string]int, len(codes))
	for i, c := range codes {
		productID[c] = i
	}

	b := &baskets{
		codes:    codes,
		tids:     make([]*roaring.Bitmap, len(codes)),
		sizes:    make(map[uint32]int),
		distinct: make(map[uint32]int),
	}
	for i := range b.tids {
		b.tids[i] = roaring.New()
	}
	invoices := idset.NewDictionary()
	for _, tx := range txs {
		if tx.ProductCode == "" {
			continue
		}
		tid := invoices.ID(tx.InvoiceID)
		bm := b.tids[productID[tx.ProductCode]]
		if bm.CheckedAdd(tid) {
			b.distinct[tid]++
		}
		b.sizes[tid] += tx.Quantity
	}
	b.invoices = invoices.Len()
	return b
}

func (b *baskets) stats() Stats {
	s := Stats{Products: len(b.codes), Invoices: b.invoices}
	if b.invoices == 0 {
		return s
	}
	total, distinct := 0, 0
	for tid, q := range b.sizes {
		total += q
		distinct += b.distinct[tid]
		if q > s.MaxBasketSize {
			s.MaxBasketSize = q
		}
	}
	s.AvgBasketSize = float64(total) / float64(b.invoices)
	s.AvgDistinctItems = float64(distinct) / float64(b.invoices)
	return s
}

func (b *baskets) names(items []int) []string {
	out := make([]string, len(items))
	for i, id := range items {
		out[i] = b.codes[id]
	}
	return out
}

// node est un ensemble de l'arène : items triés + liste des factures qui le contiennent.
type node struct {
	items []int
	tids  *roaring.Bitmap
	count int
}

// arena stocke chaque ensemble fréquent une seule fois, indexé par son tuple canonique.
type arena struct {
	b        *baskets
	opts     Options
	minCount int
	byKey    map[string]*node
	levels   [][]*node
	maxLevel int
}

func newArena(b *baskets, opts Options) *arena {
	minCount := int(math.Ceil(opts.MinSupport*float64(b.invoices) - 1e-9))
	if minCount < 1 {
		minCount = 1
	}
	return &arena{b: b, opts: opts, minCount: minCount, byKey: make(map[string]*node)}
}

func key(items []int) string {
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", it)
	}
	return sb.String()
}

func (a *arena) add(n *node) {
	a.byKey[key(n.items)] = n
	k := len(n.items)
	for len(a.levels) < k {
		a.levels = append(a.levels, nil)
	}
	a.levels[k-1] = append(a.levels[k-1], n)
	if k > a.maxLevel {
		a.maxLevel = k
	}
}

// search élargit la frontière niveau par niveau jusqu'à MaxItemsetSize.
func (a *arena) search() {
	for id, bm := range a.b.tids {
		if c := int(bm.GetCardinality()); c >= a.minCount {
			a.add(&node{items: []int{id}, tids: bm, count: c})
		}
	}
	for k := 1; k < a.opts.MaxItemsetSize && k <= len(a.levels) && len(a.levels[k-1]) > 1; k++ {
		a.expand(a.levels[k-1])
	}
}

// expand joint les ensembles de taille k partageant le même préfixe de taille k-1.
// Un candidat n'est compté que si tous ses sous-ensembles de taille k sont fréquents.
func (a *arena) expand(level []*node) {
	for i := 0; i < len(level); i++ {
		left := level[i]
		for j := i + 1; j < len(level); j++ {
			right := level[j]
			if !samePrefix(left.items, right.items) {
				break
			}
			cand := make([]int, len(left.items)+1)
			copy(cand, left.items)
			cand[len(cand)-1] = right.items[len(right.items)-1]
			if !a.subsetsFrequent(cand) {
				continue
			}
			tids := roaring.And(left.tids, right.tids)
			if c := int(tids.GetCardinality()); c >= a.minCount {
				a.add(&node{items: cand, tids: tids, count: c})
			}
		}
	}
}

func samePrefix(x, y []int) bool {
	for i := 0; i < len(x)-1; i++ {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func (a *arena) subsetsFrequent(cand []int) bool {
	if len(cand) <= 2 {
		return true
	}
	sub := make([]int, 0, len(cand)-1)
	for skip := range cand {
		sub = sub[:0]
		for i, it := range cand {
			if i != skip {
				sub = append(sub, it)
			}
		}
		if _, ok := a.byKey[key(sub)]; !ok {
			return false
		}
	}
	return true
}

func (a *arena) support(count int) float64 {
	return float64(count) / float64(a.b.invoices)
}

func (a *arena) itemsets() []Itemset {
	var out []Itemset
	for _, level := range a.levels {
		start := len(out)
		for _, n := range level {
			out = append(out, Itemset{Items: a.b.names(n.items), Support: a.support(n.count), Count: n.count})
		}
		part := out[start:]
		sort.SliceStable(part, func(i, j int) bool { return part[i].Count > part[j].Count })
	}
	return out
}

// rules dérive antécédent → conséquent pour chaque partition non triviale d'un ensemble fréquent.
func (a *arena) rules() []models.AssociationRule {
	var out []models.AssociationRule
	for k := 2; k <= len(a.levels); k++ {
		for _, n := range a.levels[k-1] {
			full := 1<<k - 1
			for mask := 1; mask < full; mask++ {
				var ante, cons []int
				for i, it := range n.items {
					if mask&(1<<i) != 0 {
						ante = append(ante, it)
					} else {
						cons = append(cons, it)
					}
				}
				an, cn := a.byKey[key(ante)], a.byKey[key(cons)]
				if an == nil || cn == nil {
					continue
				}
				support := a.support(n.count)
				confidence := float64(n.count) / float64(an.count)
				lift := confidence / a.support(cn.count)
				if confidence < a.opts.MinConfidence || lift < a.opts.MinLift {
					continue
				}
				out = append(out, models.AssociationRule{
					Antecedent: a.b.names(ante),
					Consequent: a.b.names(cons),
					Support:    support,
					Confidence: confidence,
					Lift:       lift,
					Count:      n.count,
				})
			}
		}
	}
	SortRules(out)
	if a.opts.MaxRules > 0 && len(out) > a.opts.MaxRules {
		out = out[:a.opts.MaxRules]
	}
	return out
}

// SortRules trie par lift, confiance puis support décroissants ; égalité départagée par la règle elle-même.
func SortRules(rules []models.AssociationRule) {
	sort.Slice(rules, func(i, j int) bool {
		x, y := rules[i], rules[j]
		if x.Lift != y.Lift {
			return x.Lift > y.Lift
		}
		if x.Confidence != y.Confidence {
			return x.Confidence > y.Confidence
		}
		if x.Support != y.Support {
			return x.Support > y.Support
		}
		return ruleKey(x) < ruleKey(y)
	})
}

func ruleKey(r models.AssociationRule) string {
	return strings.Join(r.Antecedent, ",") + "=>" + strings.Join(r.Consequent, ",")
}
