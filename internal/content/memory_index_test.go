package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryIndexPutAndLookup(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex()

	require.NoError(t, index.Put(ctx, Record{
		ID:     "obj-1",
		URL:    "/a/b/image.png",
		Type:   TypeFile,
		Source: map[string]any{"filename": "image.png"},
	}))

	record, ok, err := index.Lookup(ctx, "/a/b/image.png")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "obj-1", record.ID)
	require.True(t, record.IsFile())
	require.False(t, record.CreatedAt.IsZero())

	record.Source["filename"] = "mutated"
	again, _, err := index.Lookup(ctx, "/a/b/image.png")
	require.NoError(t, err)
	require.Equal(t, "image.png", again.Source["filename"])
}

func TestMemoryIndexMiss(t *testing.T) {
	_, ok, err := NewMemoryIndex().Lookup(context.Background(), "/missing.png")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryIndexPutReplacesByURL(t *testing.T) {
	ctx := context.Background()
	index := NewMemoryIndex()
	require.NoError(t, index.Put(ctx, Record{ID: "old", URL: "/x.png", Type: TypeFile}))
	require.NoError(t, index.Put(ctx, Record{ID: "new", URL: "/x.png", Type: "page"}))

	record, ok, err := index.Lookup(ctx, "/x.png")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "new", record.ID)
	require.False(t, record.IsFile())
}

func TestMemoryIndexRejectsInvalidRecord(t *testing.T) {
	err := NewMemoryIndex().Put(context.Background(), Record{URL: "/x.png", Type: TypeFile})
	require.ErrorIs(t, err, ErrInvalidRecord)
}
