package chat

import "sync"

// Filler is what a FakeUser says once its script is exhausted.
const Filler = "..."

// FakeUser is a scripted stand-in that answers with canned replies in order.
type FakeUser struct {
	mu      sync.Mutex
	replies []string
	next    int
}

// NewFakeUser creates a FakeUser that will say replies in order.
func NewFakeUser(replies ...string) *FakeUser {
	return &FakeUser{replies: append([]string(nil), replies...)}
}

// Reply returns the next canned line, or Filler when none are left.
func (f *FakeUser) Reply() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next >= len(f.replies) {
		return Filler
	}
	r := f.replies[f.next]
	f.next++
	return r
}

// Remaining reports how many canned lines have not been used.
func (f *FakeUser) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.replies) - f.next
}
