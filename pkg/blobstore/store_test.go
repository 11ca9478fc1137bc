package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_PutGet(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := s.Put(ctx, []byte("<html></html>"), "report.html", "text/html", map[string]string{"scanId": "s1"})
	require.NoError(t, err)
	assert.NotEmpty(t, ref.ID)
	assert.Equal(t, "report.html", ref.Filename)
	assert.Equal(t, "text/html", ref.ContentType)
	assert.Equal(t, int64(13), ref.Size)

	rec, data, err := s.Get(ctx, ref.ID)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(data))
	assert.Equal(t, ref, rec.FileRef)
	assert.Equal(t, "s1", rec.Meta["scanId"])
}

func TestFileStore_GetMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, _, err = s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_IndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)
	ref, err := s.Put(context.Background(), []byte("{}"), "findings.json", "application/json", map[string]string{"scanId": "s1"})
	require.NoError(t, err)

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	_, data, err := reopened.Get(context.Background(), ref.ID)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
	assert.Len(t, reopened.List("scanId", "s1"), 1)
	assert.Empty(t, reopened.List("scanId", "s2"))

	_, err = os.Stat(filepath.Join(dir, "index.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestFileStore_SanitizesFilename(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ref, err := s.Put(context.Background(), nil, "../../etc/passwd", "text/plain", nil)
	require.NoError(t, err)
	assert.Equal(t, "passwd", ref.Filename)

	ref, err = s.Put(context.Background(), nil, "", "text/plain", nil)
	require.NoError(t, err)
	assert.Equal(t, "artifact", ref.Filename)
}

func TestFileStore_PutHonoursCancelledContext(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Put(ctx, []byte("x"), "a", "text/plain", nil)
	assert.ErrorIs(t, err, context.Canceled)
}
