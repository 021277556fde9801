// Package idset attribue des identifiants uint32 denses à des clés texte
// (factures, clients, produits) pour les stocker dans des bitmaps roaring.
package idset

import (
	"github.com/RoaringBitmap/roaring"
)

// Dictionary associe chaque clé à un identifiant stable, dans l'ordre d'insertion.
type Dictionary struct {
	ids  map[string]uint32
	keys []string
}

func NewDictionary() *Dictionary {
	return &Dictionary{ids: make(map[string]uint32)}
}

// ID retourne l'identifiant de key, en l'allouant au premier appel.
func (d *Dictionary) ID(key string) uint32 {
	if id, ok := d.ids[key]; ok {
		return id
	}
	id := uint32(len(d.keys))
	d.ids[key] = id
	d.keys = append(d.keys, key)
	return id
}

// Lookup retourne l'identifiant de key sans l'allouer.
func (d *Dictionary) Lookup(key string) (uint32, bool) {
	id, ok := d.ids[key]
	return id, ok
}

// Key retourne la clé d'un identifiant déjà alloué.
func (d *Dictionary) Key(id uint32) string {
	return d.keys[id]
}

func (d *Dictionary) Len() int {
	return len(d.keys)
}

// Set est un ensemble d'identifiants, avec création paresseuse du bitmap.
type Set struct {
	bm *roaring.Bitmap
}

func (s *Set) Add(id uint32) {
	if s.bm == nil {
		s.bm = roaring.New()
	}
	s.bm.Add(id)
}

// Len retourne la cardinalité (0 pour un ensemble vide).
func (s *Set) Len() int {
	if s.bm == nil {
		return 0
	}
	return int(s.bm.GetCardinality())
}

// Bitmap expose le bitmap sous-jacent (nil si vide).
func (s *Set) Bitmap() *roaring.Bitmap {
	return s.bm
}
