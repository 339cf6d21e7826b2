package embedclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// CachingClient wraps a Client with a content-addressed cache keyed by
// sha256(text)+model, so repeated ingests of identical chunks never
// re-embed.
type CachingClient struct {
	inner Client
	model string

	mu    sync.Mutex
	cache map[string][]float32
}

// NewCachingClient wraps inner, tagging cache entries with model so two
// differently configured clients never share a cache key collision.
func NewCachingClient(inner Client, model string) *CachingClient {
	if model == "" {
		model = DefaultModel
	}
	return &CachingClient{inner: inner, model: model, cache: make(map[string][]float32)}
}

func (c *CachingClient) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (c *CachingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	c.mu.Lock()
	if v, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.cache[key] = v
	c.mu.Unlock()
	return v, nil
}

func (c *CachingClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	c.mu.Lock()
	for i, t := range texts {
		if v, ok := c.cache[c.key(t)]; ok {
			out[i] = v
		} else {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, t)
		}
	}
	c.mu.Unlock()

	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	for j, idx := range missIdx {
		out[idx] = fresh[j]
		c.cache[c.key(missTexts[j])] = fresh[j]
	}
	c.mu.Unlock()
	return out, nil
}
