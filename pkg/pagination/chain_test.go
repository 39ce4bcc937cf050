package pagination

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/teamadmin/pkg/client"
)

func TestChain_ConcatenatesInOrder(t *testing.T) {
	first := newFakeSource([]string{"a1", "a2"}, []string{"a3"})
	empty := newFakeSource([]string{})
	last := newFakeSource([]string{"c1"}, []string{}, []string{"c2"})

	items, pages, err := Collect(context.Background(), Chain[string](first, empty, last), Config{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a1", "a2", "a3", "c1", "c2"}, items)
	assert.Equal(t, 6, pages)
	assert.Equal(t, []string{"first", "c1"}, first.calls)
	assert.Equal(t, []string{"first"}, empty.calls)
	assert.Equal(t, []string{"first", "c1", "c2"}, last.calls)
}

func TestChain_Empty(t *testing.T) {
	items, pages, err := Collect(context.Background(), Chain[string](), Config{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 1, pages)
}

func TestChain_InvalidCursor(t *testing.T) {
	c := Chain[string](newFakeSource([]string{"a"}))
	for _, cursor := range []string{"", "x:1", "5:", "-1:abc"} {
		_, err := c.FetchNext(context.Background(), cursor)
		assert.Error(t, err, "cursor %q", cursor)
	}
}

func TestChain_InnerHasMoreWithoutCursor(t *testing.T) {
	bad := &fakeSource{
		pages:    []*Page[string]{{Items: []string{"a"}, HasMore: true}},
		failures: map[string]int{},
	}
	_, _, err := Collect(context.Background(), Chain[string](bad, newFakeSource([]string{"b"})), Config{})
	assert.ErrorIs(t, err, client.ErrParse)
}
