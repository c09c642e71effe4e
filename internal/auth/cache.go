package auth

import (
	"context"
	"sync/atomic"
	"time"
)

// Cache keeps the most recently obtained token in a single shared slot and
// refreshes it lazily. Concurrent callers that observe an expired token may
// each refresh; the last one to finish wins the slot.
type Cache struct {
	exchanger Exchanger
	slot      atomic.Pointer[Token]
	now       func() time.Time
}

func NewCache(exchanger Exchanger) *Cache {
	return &Cache{exchanger: exchanger, now: time.Now}
}

func (c *Cache) Token(ctx context.Context) (Token, error) {
	if t := c.slot.Load(); t != nil && t.Valid(c.now()) {
		return *t, nil
	}
	t, err := c.exchanger.Exchange(ctx)
	if err != nil {
		return Token{}, err
	}
	c.slot.Store(&t)
	return t, nil
}

// Invalidate drops the cached token so the next call performs an exchange.
func (c *Cache) Invalidate() {
	c.slot.Store(nil)
}
