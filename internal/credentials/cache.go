package credentials

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// pruneEvery controls how many stores happen between sweeps for expired slots.
const pruneEvery = 256

// tokenCache maps a key to a slot. Each slot has its own lock so exchanges for
// different keys never wait on each other.
type tokenCache struct {
	slots  sync.Map // string -> *slot
	stores atomic.Uint64
}

type slot struct {
	sem   chan struct{}
	token atomic.Pointer[DelegatedToken]
}

func (c *tokenCache) slot(key string) *slot {
	if s, ok := c.slots.Load(key); ok {
		return s.(*slot)
	}
	s, _ := c.slots.LoadOrStore(key, &slot{sem: make(chan struct{}, 1)})
	return s.(*slot)
}

// lookup returns a valid token for key without taking the slot lock.
func (c *tokenCache) lookup(key string, now time.Time, skew time.Duration) *DelegatedToken {
	s, ok := c.slots.Load(key)
	if !ok {
		return nil
	}
	if tok := s.(*slot).token.Load(); tok.Valid(now, skew) {
		return tok
	}
	return nil
}

// store publishes tok and occasionally drops slots whose token has expired.
func (c *tokenCache) store(s *slot, tok *DelegatedToken, now time.Time) {
	s.token.Store(tok)
	if c.stores.Add(1)%pruneEvery == 0 {
		c.prune(now)
	}
}

// prune removes expired slots that nobody is currently filling.
func (c *tokenCache) prune(now time.Time) {
	c.slots.Range(func(key, value any) bool {
		s := value.(*slot)
		if s.token.Load().Valid(now, 0) {
			return true
		}
		select {
		case s.sem <- struct{}{}:
			c.slots.CompareAndDelete(key, s)
			<-s.sem
		default:
		}
		return true
	})
}

func (c *tokenCache) len() int {
	n := 0
	c.slots.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (s *slot) lock(ctx context.Context) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *slot) unlock() {
	<-s.sem
}
