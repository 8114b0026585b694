package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phobologic/bdcompanion/internal/model"
)

type countingSource struct {
	calls int
	src   Source
}

func (c *countingSource) Extract(text string) []model.Action {
	c.calls++
	return c.src.Extract(text)
}

func TestCachedReusesResults(t *testing.T) {
	t.Parallel()

	counter := &countingSource{src: Default()}
	c, err := NewCached(counter, 4)
	require.NoError(t, err)

	text := `getByKeys("a", {x: true})`
	first := c.Extract(text)
	second := c.Extract(text)

	assert.Equal(t, 1, counter.calls)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, c.Len())

	c.Extract(`getByKeys("b")`)
	assert.Equal(t, 2, counter.calls)
}

func TestCachedIsolatesCallers(t *testing.T) {
	t.Parallel()

	c, err := NewCached(Default(), 0)
	require.NoError(t, err)

	text := `getByKeys("a", {x: true})`
	first := c.Extract(text)
	require.Len(t, first, 2)
	first[0].Query[0] = "mutated"
	first[0].Options["x"] = false

	again := c.Extract(text)
	assert.Equal(t, "a", again[0].Query[0])
	assert.Equal(t, true, again[0].Options["x"])
}

func TestCachedEmptyDocument(t *testing.T) {
	t.Parallel()

	c, err := NewCached(Default(), 2)
	require.NoError(t, err)
	assert.Empty(t, c.Extract(""))
	assert.Empty(t, c.Extract(""))
}
