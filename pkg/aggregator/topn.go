package aggregator

import (
	"container/heap"
	"sort"
)

// entryHeap garde en racine le pire élément retenu, pour pouvoir l'évincer.
type entryHeap[T any] struct {
	items  []T
	better func(a, b T) bool
}

func (h entryHeap[T]) Len() int           { return len(h.items) }
func (h entryHeap[T]) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h entryHeap[T]) Less(i, j int) bool { return h.better(h.items[j], h.items[i]) }
func (h *entryHeap[T]) Push(x any)        { h.items = append(h.items, x.(T)) }
func (h *entryHeap[T]) Pop() any {
	old := h.items
	n := len(old)
	x := old[n-1]
	h.items = old[:n-1]
	return x
}

// TopN retient les capacity meilleurs éléments selon better (ordre strict total).
type TopN[T any] struct {
	h        *entryHeap[T]
	capacity int
}

func NewTopN[T any](capacity int, better func(a, b T) bool) *TopN[T] {
	if capacity <= 0 {
		capacity = 1
	}
	h := &entryHeap[T]{items: make([]T, 0, capacity), better: better}
	heap.Init(h)
	return &TopN[T]{h: h, capacity: capacity}
}

func (t *TopN[T]) Insert(e T) {
	if t.h.Len() < t.capacity {
		heap.Push(t.h, e)
		return
	}
	if t.h.better(e, t.h.items[0]) {
		t.h.items[0] = e
		heap.Fix(t.h, 0)
	}
}

// Values retourne les éléments retenus, du meilleur au moins bon.
func (t *TopN[T]) Values() []T {
	out := make([]T, len(t.h.items))
	copy(out, t.h.items)
	sort.Slice(out, func(i, j int) bool { return t.h.better(out[i], out[j]) })
	return out
}

// TopGroups retourne les n premiers groupes selon l'ordre de classement du chiffre d'affaires.
func TopGroups(groups []GroupMetric, n int) []GroupMetric {
	if n <= 0 {
		return nil
	}
	top := NewTopN(n, rankedBefore)
	for _, g := range groups {
		top.Insert(g)
	}
	return top.Values()
}
