package storage_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressgate/pkg/storage"
)

func TestFSStore_Put(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewFSStore(dir)
	require.NoError(t, err)

	locator, err := store.Put(context.Background(), "task-1/login-123.png", []byte("png-bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(locator, "file://"), "locator %q should be a file URL", locator)

	data, err := os.ReadFile(filepath.Join(dir, "task-1", "login-123.png"))
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestMemStore_PutAndGet(t *testing.T) {
	store := storage.NewMemStore()

	locator, err := store.Put(context.Background(), "task-1/publish.png", []byte("shot"))
	require.NoError(t, err)
	assert.Equal(t, "mem://task-1/publish.png", locator)

	data, ok := store.Get("task-1/publish.png")
	assert.True(t, ok)
	assert.Equal(t, []byte("shot"), data)

	_, ok = store.Get("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"task-1/publish.png"}, store.Keys())
}
