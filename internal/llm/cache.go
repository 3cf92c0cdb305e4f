package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedCompleter memoizes successful completions for a short TTL.
type CachedCompleter struct {
	next  Completer
	cache *expirable.LRU[string, string]
}

// NewCachedCompleter wraps next with an expiring LRU of the given size. A zero ttl keeps
// entries until they are evicted by size.
func NewCachedCompleter(next Completer, size int, ttl time.Duration) *CachedCompleter {
	if size <= 0 {
		size = 32
	}
	return &CachedCompleter{
		next:  next,
		cache: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

// Complete returns a cached answer when one exists; errors are never cached.
func (c *CachedCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	key := cacheKey(req)
	if text, ok := c.cache.Get(key); ok {
		return text, nil
	}
	text, err := c.next.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, text)
	return text, nil
}

// Len reports the number of live entries.
func (c *CachedCompleter) Len() int { return c.cache.Len() }

func cacheKey(req CompletionRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Prompt))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(req.Temperature, 'f', -1, 64)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(req.MaxTokens)))
	if req.JSON {
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}
