package index_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuxler/ruasec/pkg/errdefs"
	"github.com/wuxler/ruasec/pkg/trow/index"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newIndex(t *testing.T) *index.Index {
	t.Helper()
	idx, err := index.Open(context.Background(), "file::memory:?cache=shared", fixedClock{t: time.Unix(1700000000, 0)})
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestPutAndResolveTag(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)

	digest := "sha256:" + sampleHex
	require.NoError(t, idx.PutManifest(ctx, "library/app", digest, 42, []byte(`{}`), `{}`, "latest"))

	got, err := idx.ResolveTag(ctx, "library/app", "latest")
	require.NoError(t, err)
	assert.Equal(t, digest, got)
}

func TestResolveTagNotFound(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	_, err := idx.ResolveTag(ctx, "library/app", "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))
}

func TestTagUpdateRecordsHistory(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)

	d1 := "sha256:" + sampleHex
	d2 := "sha256:" + sampleHex2
	require.NoError(t, idx.PutManifest(ctx, "library/app", d1, 1, []byte(`{}`), `{}`, "latest"))
	require.NoError(t, idx.PutManifest(ctx, "library/app", d2, 2, []byte(`{}`), `{}`, "latest"))

	got, err := idx.ResolveTag(ctx, "library/app", "latest")
	require.NoError(t, err)
	assert.Equal(t, d2, got)

	history, err := idx.TagHistory(ctx, "library/app", "latest")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, d1, history[0].ManifestDigest)
	assert.Equal(t, d2, history[1].ManifestDigest)
}

func TestAssociateBlobAndCheck(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)

	digest := "sha256:" + sampleHex
	require.NoError(t, idx.AssociateBlob(ctx, "library/app", digest, 100))

	associated, err := idx.BlobAssociated(ctx, "library/app", digest)
	require.NoError(t, err)
	assert.True(t, associated)

	associated, err = idx.BlobAssociated(ctx, "library/other", digest)
	require.NoError(t, err)
	assert.False(t, associated)
}

func TestDeleteBlobNotFound(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)
	err := idx.DeleteBlob(ctx, "sha256:"+sampleHex)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))
}

func TestListRepositoriesAndTags(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)

	require.NoError(t, idx.AssociateBlob(ctx, "a/app", "sha256:"+sampleHex, 1))
	require.NoError(t, idx.AssociateBlob(ctx, "b/app", "sha256:"+sampleHex2, 1))
	require.NoError(t, idx.PutManifest(ctx, "a/app", "sha256:"+sampleHex, 1, []byte(`{}`), `{}`, "v1"))
	require.NoError(t, idx.PutManifest(ctx, "a/app", "sha256:"+sampleHex, 1, []byte(`{}`), `{}`, "v2"))

	repos, err := idx.ListRepositories(ctx, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/app", "b/app"}, repos)

	tags, err := idx.ListTags(ctx, "a/app", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, tags)
}

func TestReferrers(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)

	subjectDigest := "sha256:" + sampleHex
	referrerJSON := `{"subject":{"digest":"` + subjectDigest + `"},"artifactType":"application/vnd.example"}`
	referrerDigest := "sha256:" + sampleHex2
	require.NoError(t, idx.PutManifest(ctx, "a/app", referrerDigest, 10, []byte(referrerJSON), referrerJSON, ""))

	refs, err := idx.Referrers(ctx, "a/app", subjectDigest, "")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, referrerDigest, refs[0].Digest)

	refs, err = idx.Referrers(ctx, "a/app", subjectDigest, "application/vnd.other")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestUploadSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	idx := newIndex(t)

	require.NoError(t, idx.CreateUploadSession(ctx, "sess-1", "a/app"))
	rec, err := idx.GetUploadSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), rec.Offset)
	assert.Equal(t, "a/app", rec.Repo)

	require.NoError(t, idx.SetUploadOffset(ctx, "sess-1", 128))
	rec, err = idx.GetUploadSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(128), rec.Offset)

	require.NoError(t, idx.DeleteUploadSession(ctx, "sess-1"))
	_, err = idx.GetUploadSession(ctx, "sess-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))
}

const (
	sampleHex  = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	sampleHex2 = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)
