package upload_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuxler/ruasec/pkg/errdefs"
	"github.com/wuxler/ruasec/pkg/trow/upload"
)

type fakeIndex struct {
	mu       sync.Mutex
	sessions map[string]upload.Session
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{sessions: map[string]upload.Session{}}
}

func (f *fakeIndex) CreateUploadSession(ctx context.Context, id, repo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[id] = upload.Session{ID: id, Repo: repo, Offset: 0}
	return nil
}

func (f *fakeIndex) GetUploadSession(ctx context.Context, id string) (upload.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return upload.Session{}, errdefs.Newf(errdefs.ErrNotFound, "upload session %s not found", id)
	}
	return s, nil
}

func (f *fakeIndex) SetUploadOffset(ctx context.Context, id string, offset int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return errdefs.Newf(errdefs.ErrNotFound, "upload session %s not found", id)
	}
	s.Offset = offset
	f.sessions[id] = s
	return nil
}

func (f *fakeIndex) DeleteUploadSession(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	return nil
}

type fakeStorage struct {
	mu        sync.Mutex
	data      map[string]*bytes.Buffer
	completed map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{data: map[string]*bytes.Buffer{}, completed: map[string][]byte{}}
}

func (f *fakeStorage) CreateUpload(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[sessionID] = &bytes.Buffer{}
	return nil
}

func (f *fakeStorage) UploadSize(ctx context.Context, sessionID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf, ok := f.data[sessionID]
	if !ok {
		return 0, errdefs.Newf(errdefs.ErrNotFound, "not found")
	}
	return int64(buf.Len()), nil
}

func (f *fakeStorage) AppendUpload(ctx context.Context, sessionID string, start int64, r io.Reader) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf, ok := f.data[sessionID]
	if !ok {
		return 0, errdefs.Newf(errdefs.ErrNotFound, "not found")
	}
	if int64(buf.Len()) != start {
		return 0, errdefs.Newf(errdefs.ErrInvalidParameter, "offset mismatch")
	}
	n, err := io.Copy(buf, r)
	if err != nil {
		return 0, err
	}
	return start + n, nil
}

func (f *fakeStorage) CompleteUpload(ctx context.Context, sessionID string, expected digest.Digest, size int64, verify bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf, ok := f.data[sessionID]
	if !ok {
		return errdefs.Newf(errdefs.ErrNotFound, "not found")
	}
	content := buf.Bytes()
	if digest.FromBytes(content) != expected {
		return errdefs.Newf(errdefs.ErrInvalidParameter, "digest mismatch")
	}
	f.completed[sessionID] = content
	delete(f.data, sessionID)
	return nil
}

func (f *fakeStorage) CancelUpload(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, sessionID)
	return nil
}

func TestUploadLifecycle(t *testing.T) {
	ctx := context.Background()
	idx := newFakeIndex()
	st := newFakeStorage()
	m := upload.New(idx, st)

	id, err := m.Start(ctx, "library/app")
	require.NoError(t, err)

	offset, err := m.Append(ctx, "library/app", id, 0, bytes.NewReader([]byte("hello-")))
	require.NoError(t, err)
	assert.Equal(t, int64(6), offset)

	offset, err = m.Append(ctx, "library/app", id, 6, bytes.NewReader([]byte("world")))
	require.NoError(t, err)
	assert.Equal(t, int64(11), offset)

	full := []byte("hello-world")
	require.NoError(t, m.Complete(ctx, "library/app", id, digest.FromBytes(full), nil))

	assert.Equal(t, full, st.completed[id])
	_, err = idx.GetUploadSession(ctx, id)
	require.Error(t, err)
}

func TestAppendWrongOffsetFails(t *testing.T) {
	ctx := context.Background()
	idx := newFakeIndex()
	st := newFakeStorage()
	m := upload.New(idx, st)

	id, err := m.Start(ctx, "library/app")
	require.NoError(t, err)

	_, err = m.Append(ctx, "library/app", id, 5, bytes.NewReader([]byte("oops")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidParameter))
}

func TestSessionRejectsCrossRepoUse(t *testing.T) {
	ctx := context.Background()
	idx := newFakeIndex()
	st := newFakeStorage()
	m := upload.New(idx, st)

	id, err := m.Start(ctx, "library/app")
	require.NoError(t, err)

	_, err = m.Append(ctx, "library/other", id, 0, bytes.NewReader([]byte("x")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrForbidden))
}

func TestCancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := newFakeIndex()
	st := newFakeStorage()
	m := upload.New(idx, st)

	id, err := m.Start(ctx, "library/app")
	require.NoError(t, err)
	require.NoError(t, m.Cancel(ctx, "library/app", id))
	require.NoError(t, m.Cancel(ctx, "library/app", id))
}
