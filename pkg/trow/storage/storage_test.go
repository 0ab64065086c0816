package storage_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuxler/ruasec/pkg/errdefs"
	"github.com/wuxler/ruasec/pkg/trow/storage"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newBackend() *storage.Backend {
	return storage.New(afero.NewMemMapFs(), fixedClock{t: time.Unix(0, 1)})
}

func TestBackendPutAndOpen(t *testing.T) {
	ctx := context.Background()
	b := newBackend()

	content := []byte("hello trow")
	dgst := digest.FromBytes(content)

	require.NoError(t, b.Put(ctx, dgst, int64(len(content)), bytes.NewReader(content)))

	exists, err := b.Exists(ctx, dgst)
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := b.Open(ctx, dgst)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestBackendPutIdempotent(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	content := []byte("idempotent")
	dgst := digest.FromBytes(content)

	require.NoError(t, b.Put(ctx, dgst, int64(len(content)), bytes.NewReader(content)))
	require.NoError(t, b.Put(ctx, dgst, int64(len(content)), bytes.NewReader(content)))

	size, err := b.Size(ctx, dgst)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), size)
}

func TestBackendPutDigestMismatch(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	content := []byte("mismatched")
	wrong := digest.FromBytes([]byte("something else"))

	err := b.Put(ctx, wrong, int64(len(content)), bytes.NewReader(content))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidParameter))

	exists, err := b.Exists(ctx, wrong)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBackendOpenNotFound(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	_, err := b.Open(ctx, digest.FromBytes([]byte("missing")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))
}

func TestBackendDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	dgst := digest.FromBytes([]byte("to-delete"))
	require.NoError(t, b.Delete(ctx, dgst))
	require.NoError(t, b.Delete(ctx, dgst))
}

func TestUploadLifecycle(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	sessionID := "session-1"

	require.NoError(t, b.CreateUpload(ctx, sessionID))

	chunk1 := []byte("part-one-")
	n, err := b.AppendUpload(ctx, sessionID, 0, bytes.NewReader(chunk1))
	require.NoError(t, err)
	assert.Equal(t, int64(len(chunk1)), n)

	chunk2 := []byte("part-two")
	n, err = b.AppendUpload(ctx, sessionID, int64(len(chunk1)), bytes.NewReader(chunk2))
	require.NoError(t, err)
	full := append(append([]byte{}, chunk1...), chunk2...)
	assert.Equal(t, int64(len(full)), n)

	dgst := digest.FromBytes(full)
	require.NoError(t, b.CompleteUpload(ctx, sessionID, dgst, int64(len(full)), true))

	exists, err := b.Exists(ctx, dgst)
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = b.UploadSize(ctx, sessionID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))
}

func TestAppendUploadRejectsNonContiguousChunk(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	sessionID := "session-2"
	require.NoError(t, b.CreateUpload(ctx, sessionID))

	_, err := b.AppendUpload(ctx, sessionID, 5, bytes.NewReader([]byte("oops")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidParameter))
}

func TestCancelUpload(t *testing.T) {
	ctx := context.Background()
	b := newBackend()
	sessionID := "session-3"
	require.NoError(t, b.CreateUpload(ctx, sessionID))
	require.NoError(t, b.CancelUpload(ctx, sessionID))

	_, err := b.UploadSize(ctx, sessionID)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))
}

func TestWalkBlobs(t *testing.T) {
	ctx := context.Background()
	b := newBackend()

	contents := [][]byte{[]byte("alpha"), []byte("beta"), []byte("gamma")}
	want := map[digest.Digest]bool{}
	for _, c := range contents {
		dgst := digest.FromBytes(c)
		require.NoError(t, b.Put(ctx, dgst, int64(len(c)), bytes.NewReader(c)))
		want[dgst] = true
	}

	got := map[digest.Digest]bool{}
	require.NoError(t, b.WalkBlobs(ctx, func(d digest.Digest) error {
		got[d] = true
		return nil
	}))
	assert.Equal(t, want, got)
}
