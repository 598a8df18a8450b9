package inventory

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/kshitij406/VendingMachine/internal/domain"
	"github.com/kshitij406/VendingMachine/internal/repository"
)

// Snapshot is the shared in-memory mirror of the catalog store. Reads are
// served from memory; reservations decrement visible availability without
// touching durable stock. Settlement happens against the store at checkout.
type Snapshot struct {
	store repository.CatalogStore
	sfg   singleflight.Group // collapses concurrent refreshes

	mu       sync.RWMutex
	products map[int64]domain.Product // durable stock as last loaded
	reserved map[int64]int            // quantity held in carts, all sessions
}

func NewSnapshot(store repository.CatalogStore) *Snapshot {
	return &Snapshot{
		store:    store,
		products: make(map[int64]domain.Product),
		reserved: make(map[int64]int),
	}
}

// Refresh reloads durable stock from the store. Reservation counters
// survive a refresh; only the loaded totals are replaced. Concurrent
// callers share one store round trip.
func (s *Snapshot) Refresh(ctx context.Context) error {
	_, err, _ := s.sfg.Do("refresh", func() (interface{}, error) {
		products, err := s.store.LoadAll(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.products = products
		// Drop reservations for products that no longer exist.
		for id := range s.reserved {
			if _, ok := products[id]; !ok {
				delete(s.reserved, id)
			}
		}
		s.mu.Unlock()
		return nil, nil
	})
	return err
}

// Get returns the product with stock net of reservations.
func (s *Snapshot) Get(productID int64) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[productID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	p.Stock = s.available(p)
	return p, nil
}

// List returns all products sorted by id, stock net of reservations.
func (s *Snapshot) List() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		p.Stock = s.available(p)
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products
}

// TryReserve holds quantity against the snapshot so other sessions see
// reduced availability immediately. Durable stock is untouched.
func (s *Snapshot) TryReserve(productID int64, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if s.available(p) < quantity {
		return domain.ErrInsufficientStock
	}
	s.reserved[productID] += quantity
	return nil
}

// Release returns reserved quantity to the pool, clamped so that a stray
// double-release can never inflate availability past the store's view.
func (s *Snapshot) Release(productID int64, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held := s.reserved[productID]
	if quantity > held {
		quantity = held
	}
	if quantity == held {
		delete(s.reserved, productID)
	} else {
		s.reserved[productID] = held - quantity
	}
}

// SetStock overwrites the snapshot's durable total after a CHANGE_STOCK,
// so sessions see the edit without waiting for the next refresh.
func (s *Snapshot) SetStock(productID int64, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[productID]
	if !ok {
		return
	}
	p.Stock = stock
	s.products[productID] = p
}

func (s *Snapshot) available(p domain.Product) int {
	n := p.Stock - s.reserved[p.ID]
	if n < 0 {
		return 0
	}
	return n
}
