package session

import "sync"

type ChangeKind int

const (
	SignedIn ChangeKind = iota + 1
	SignedOut
	Registered
)

func (k ChangeKind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SignedOut:
		return "signed_out"
	case Registered:
		return "registered"
	default:
		return "unknown"
	}
}

// Change is published whenever an account's session state changes.
type Change struct {
	Kind     ChangeKind
	Identity Identity
}

// Broker fans session changes out to subscribers. Subscribers run
// synchronously on the publishing goroutine, in subscription order.
type Broker struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Change)
	ids  []int
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[int]func(Change))}
}

// Subscribe registers fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (b *Broker) Subscribe(fn func(Change)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.ids = append(b.ids, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			for i, v := range b.ids {
				if v == id {
					b.ids = append(b.ids[:i], b.ids[i+1:]...)
					break
				}
			}
		})
	}
}

func (b *Broker) Publish(c Change) {
	b.mu.Lock()
	fns := make([]func(Change), 0, len(b.ids))
	for _, id := range b.ids {
		fns = append(fns, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
