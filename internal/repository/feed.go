package repository

import (
	"sync"

	model "charity-auction/internal/models"
)

// Feed fans inserted bids out to per-item subscribers inside one process.
// Each handler runs on its own goroutine, so a slow subscriber never blocks
// the inserting caller.
type Feed struct {
	mu     sync.RWMutex
	subs   map[string]map[uint64]func(model.Bid) // key: itemID -> subscription id -> handler
	nextID uint64
}

// NewFeed creates an empty feed
func NewFeed() *Feed {
	return &Feed{subs: make(map[string]map[uint64]func(model.Bid))}
}

// Subscribe registers fn for bids on itemID. The returned func removes it and
// is safe to call more than once.
func (f *Feed) Subscribe(itemID string, fn func(model.Bid)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID
	if f.subs[itemID] == nil {
		f.subs[itemID] = make(map[uint64]func(model.Bid))
	}
	f.subs[itemID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs[itemID], id)
			if len(f.subs[itemID]) == 0 {
				delete(f.subs, itemID)
			}
		})
	}
}

// Publish delivers bid to every current subscriber of its item
func (f *Feed) Publish(bid model.Bid) {
	f.mu.RLock()
	handlers := make([]func(model.Bid), 0, len(f.subs[bid.ItemID]))
	for _, fn := range f.subs[bid.ItemID] {
		handlers = append(handlers, fn)
	}
	f.mu.RUnlock()

	for _, fn := range handlers {
		go fn(bid)
	}
}

// Subscribers returns the number of live subscriptions for itemID
func (f *Feed) Subscribers(itemID string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs[itemID])
}
