package session

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// PairKey returns the canonical key for a pair of names: both names sorted
// and joined with "|".
func PairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}

// CountStore tracks how many messages each pair has exchanged.
type CountStore interface {
	Increment(a, b string) (int, error)
	Count(a, b string) int
	Reset() error
}

// CountPersister loads and saves pair counts keyed by PairKey.
type CountPersister interface {
	LoadCounts() (map[string]int, error)
	SaveCounts(counts map[string]int) error
}

// Counter is a CountStore that writes through to an optional persister.
type Counter struct {
	store CountPersister

	mu     sync.Mutex
	counts map[string]int
}

// NewCounter creates a Counter restored from store. A nil store keeps counts
// in memory only.
func NewCounter(store CountPersister) (*Counter, error) {
	c := &Counter{store: store, counts: make(map[string]int)}
	if store == nil {
		return c, nil
	}
	loaded, err := store.LoadCounts()
	if err != nil {
		return nil, fmt.Errorf("loading message counts: %w", err)
	}
	for k, v := range loaded {
		c.counts[k] = v
	}
	return c, nil
}

func (c *Counter) Increment(a, b string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := PairKey(a, b)
	c.counts[key]++
	return c.counts[key], c.save()
}

func (c *Counter) Count(a, b string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[PairKey(a, b)]
}

func (c *Counter) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = make(map[string]int)
	return c.save()
}

// save expects c.mu to be held.
func (c *Counter) save() error {
	if c.store == nil {
		return nil
	}
	cp := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		cp[k] = v
	}
	if err := c.store.SaveCounts(cp); err != nil {
		return fmt.Errorf("saving message counts: %w", err)
	}
	return nil
}
