package codec

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize bounds the number of distinct move tokens kept per direction.
// Real games use only a few thousand distinct UCI tokens.
const DefaultCacheSize = 4096

// moveCache memoizes token<->Move conversions in both directions.
// It is safe for concurrent use.
type moveCache struct {
	packed *lru.Cache[string, Move]
	tokens *lru.Cache[Move, string]
}

func newMoveCache(size int) *moveCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	// lru.New only fails for a non-positive size.
	packed, _ := lru.New[string, Move](size)
	tokens, _ := lru.New[Move, string](size)
	return &moveCache{packed: packed, tokens: tokens}
}

func (c *moveCache) pack(token string) (Move, error) {
	if m, ok := c.packed.Get(token); ok {
		return m, nil
	}
	m, err := MoveFromUCI(token)
	if err != nil {
		return 0, err
	}
	c.packed.Add(token, m)
	c.tokens.Add(m, token)
	return m, nil
}

func (c *moveCache) unpack(m Move) (string, error) {
	if tok, ok := c.tokens.Get(m); ok {
		return tok, nil
	}
	tok, err := m.ToUCI()
	if err != nil {
		return "", err
	}
	c.tokens.Add(m, tok)
	c.packed.Add(tok, m)
	return tok, nil
}

// CacheStats reports the number of cached tokens per direction.
func (c *Codec) CacheStats() (packed, tokens int) {
	return c.cache.packed.Len(), c.cache.tokens.Len()
}
