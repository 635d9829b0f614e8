// Package cart owns the shopping cart: an ordered set of line entries
// keyed by item ID, mutated in memory and persisted through the bridge.
package cart

import (
	"sync"

	"ShopFront/internal/catalog"
)

// Line is one cart row: a snapshot of the item as it was when first
// added, plus a quantity that is always at least 1.
type Line struct {
	Item     catalog.Item `json:"item"`
	Quantity int          `json:"quantity"`
}

// Store is the single source of truth for cart contents. Mutations are
// total: an absent ID is a no-op, never an error. Every mutation
// notifies subscribers with a snapshot of the full cart, tagged with a
// sequence number taken under the store lock: a higher seq always
// describes a newer cart state, even when concurrent notifications are
// delivered out of order.
type Store struct {
	mu      sync.Mutex
	seq     uint64
	lines   []Line
	subs    map[int]func(uint64, []Line)
	nextSub int
}

func NewStore() *Store {
	return &Store{subs: map[int]func(uint64, []Line){}}
}

// Add inserts item with quantity 1, or bumps the quantity when the item
// is already in the cart.
func (s *Store) Add(item catalog.Item) {
	s.mu.Lock()
	if i := s.find(item.ID); i >= 0 {
		s.lines[i].Quantity++
	} else {
		s.lines = append(s.lines, Line{Item: item, Quantity: 1})
	}
	s.notifyLocked()
}

// Remove deletes the line for id regardless of its quantity.
func (s *Store) Remove(id int) {
	s.mu.Lock()
	if i := s.find(id); i >= 0 {
		s.lines = append(s.lines[:i], s.lines[i+1:]...)
	}
	s.notifyLocked()
}

func (s *Store) Increase(id int) {
	s.mu.Lock()
	if i := s.find(id); i >= 0 {
		s.lines[i].Quantity++
	}
	s.notifyLocked()
}

// Decrease lowers the quantity by 1. At quantity 1 the line is removed
// entirely; a zero-quantity line is never kept.
func (s *Store) Decrease(id int) {
	s.mu.Lock()
	if i := s.find(id); i >= 0 {
		if s.lines[i].Quantity > 1 {
			s.lines[i].Quantity--
		} else {
			s.lines = append(s.lines[:i], s.lines[i+1:]...)
		}
	}
	s.notifyLocked()
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.lines = nil
	s.notifyLocked()
}

// Replace swaps in hydrated lines wholesale. Lines with a quantity
// below 1 and duplicate IDs are dropped so persisted garbage can never
// violate the cart invariants. Subscribers are not notified; Replace is
// for startup hydration, not user mutation.
func (s *Store) Replace(lines []Line) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[int]bool, len(lines))
	clean := make([]Line, 0, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 || seen[l.Item.ID] {
			continue
		}
		seen[l.Item.ID] = true
		clean = append(clean, l)
	}
	s.lines = clean
}

// Lines returns the cart contents in insertion order.
func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// TotalPrice is the sum of price times quantity over all lines.
func (s *Store) TotalPrice() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum float64
	for _, l := range s.lines {
		sum += l.Item.Price * float64(l.Quantity)
	}
	return sum
}

// TotalQuantity is the number of units across all lines.
func (s *Store) TotalQuantity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

// Subscribe registers fn to run synchronously after every mutation with
// a snapshot of the new cart and its sequence number. Consumers that
// persist or mirror the cart must drop a snapshot whose seq is lower
// than one already seen. The returned cancel removes fn.
func (s *Store) Subscribe(fn func(seq uint64, lines []Line)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) find(id int) int {
	for i, l := range s.lines {
		if l.Item.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) snapshotLocked() []Line {
	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

// notifyLocked stamps the snapshot under the lock, then releases it
// before invoking subscribers so they may call back into the store.
// Delivery order across concurrent mutations is not guaranteed; the
// seq stamp is what lets consumers reconstruct it.
func (s *Store) notifyLocked() {
	s.seq++
	seq := s.seq
	snap := s.snapshotLocked()
	subs := make([]func(uint64, []Line), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(seq, snap)
	}
}
