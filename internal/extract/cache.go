package extract

import (
	"crypto/sha256"
	"fmt"
	"maps"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/phobologic/bdcompanion/internal/model"
)

// DefaultCacheSize is the number of documents Cached remembers.
const DefaultCacheSize = 256

// Cached memoizes a Source by document content. Editors ask for actions on
// every keystroke; unchanged text is answered from the cache.
type Cached struct {
	src   Source
	cache *lru.Cache[[sha256.Size]byte, []model.Action]
}

// NewCached wraps src with an LRU of the given size.
func NewCached(src Source, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[[sha256.Size]byte, []model.Action](size)
	if err != nil {
		return nil, fmt.Errorf("creating extraction cache: %w", err)
	}
	return &Cached{src: src, cache: c}, nil
}

// Extract returns the actions for text, computing them at most once per
// distinct content while it stays cached.
func (c *Cached) Extract(text string) []model.Action {
	key := sha256.Sum256([]byte(text))
	if actions, ok := c.cache.Get(key); ok {
		return cloneActions(actions)
	}
	actions := c.src.Extract(text)
	c.cache.Add(key, cloneActions(actions))
	return actions
}

// Len reports how many documents are cached.
func (c *Cached) Len() int {
	return c.cache.Len()
}

func cloneActions(actions []model.Action) []model.Action {
	if actions == nil {
		return nil
	}
	out := make([]model.Action, len(actions))
	for i, a := range actions {
		a.Query = slices.Clone(a.Query)
		a.Options = maps.Clone(a.Options)
		out[i] = a
	}
	return out
}
