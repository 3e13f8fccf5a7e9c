package spool

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpool_PutRemove(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	ctx := context.Background()

	URL, err := s.Put(ctx, "abc", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, s.URL("abc"), URL)

	data, err := os.ReadFile(filepath.Join(dir, "abc.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(data))

	ok, err := s.Exists(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Remove(ctx, "abc"))
	ok, err = s.Exists(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Remove(ctx, "abc"))
}

func TestSpool_DefaultURL(t *testing.T) {
	assert.Equal(t, filepath.Join(os.TempDir(), "resumerag"), New("").baseURL)
}
