package registry_test

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuxler/ruasec/pkg/errdefs"
	"github.com/wuxler/ruasec/pkg/trow/admission"
	"github.com/wuxler/ruasec/pkg/trow/index"
	"github.com/wuxler/ruasec/pkg/trow/registry"
	"github.com/wuxler/ruasec/pkg/trow/storage"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	clock := fixedClock{t: time.Unix(1700000000, 0)}
	backend := storage.New(afero.NewMemMapFs(), clock)
	idx, err := index.Open(context.Background(), "file::memory:?cache=shared", clock)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return registry.New(backend, idx, nil, admission.Policy{Default: admission.Allow})
}

func putBlob(t *testing.T, r *registry.Registry, repo string, content []byte) digest.Digest {
	t.Helper()
	dgst := digest.FromBytes(content)
	require.NoError(t, r.PutBlob(context.Background(), repo, dgst, int64(len(content)), bytes.NewReader(content)))
	return dgst
}

func manifestJSON(configDigest digest.Digest, configSize int, extra string) []byte {
	return []byte(`{"schemaVersion":2,"mediaType":"application/vnd.oci.image.manifest.v1+json","config":{"mediaType":"application/vnd.oci.image.config.v1+json","digest":"` +
		configDigest.String() + `","size":` + strconv.Itoa(configSize) + `}` + extra + `}`)
}

func TestPutAndGetManifestRoundTripsBytesVerbatim(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	layer := []byte("layer contents")
	layerDigest := putBlob(t, r, "library/app", layer)

	config := []byte(`{}`)
	configDigest := putBlob(t, r, "library/app", config)

	raw := manifestJSON(configDigest, len(config), `,"layers":[{"mediaType":"application/vnd.oci.image.layer.v1.tar","digest":"`+
		layerDigest.String()+`","size":`+strconv.Itoa(len(layer))+`}]`)

	dgst, err := r.PutManifest(ctx, "library/app", "v1", "application/vnd.oci.image.manifest.v1+json", raw)
	require.NoError(t, err)
	assert.Equal(t, digest.FromBytes(raw), dgst)

	got, err := r.GetManifest(ctx, "library/app", "v1")
	require.NoError(t, err)
	assert.Equal(t, raw, got.Raw, "manifest bytes must round-trip verbatim")
	assert.Equal(t, dgst, got.Digest)

	byDigest, err := r.GetManifest(ctx, "library/app", dgst.String())
	require.NoError(t, err)
	assert.Equal(t, raw, byDigest.Raw)
}

func TestPutManifestRejectsMissingBlob(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	missing := digest.FromBytes([]byte("never uploaded"))
	raw := manifestJSON(missing, 5, "")

	_, err := r.PutManifest(ctx, "library/app", "v1", "application/vnd.oci.image.manifest.v1+json", raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidParameter))
}

func TestGetBlobRequiresAssociationWithRepo(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	content := []byte("scoped to library/app")
	dgst := putBlob(t, r, "library/app", content)

	_, err := r.GetBlob(ctx, "library/other", dgst)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrNotFound))

	blob, err := r.GetBlob(ctx, "library/app", dgst)
	require.NoError(t, err)
	defer blob.Body.Close()
	assert.Equal(t, int64(len(content)), blob.Size)
}

func TestDeleteBlobIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	content := []byte("to be deleted")
	dgst := putBlob(t, r, "library/app", content)

	require.NoError(t, r.DeleteBlob(ctx, dgst))
	require.NoError(t, r.DeleteBlob(ctx, dgst), "deleting twice must not error")

	exists, err := r.Storage.Exists(ctx, dgst)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBlobUploadLifecycleAssociatesRepo(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	sessionID, err := r.Upload.Start(ctx, "library/app")
	require.NoError(t, err)

	content := []byte("uploaded in chunks")
	_, err = r.Upload.Append(ctx, "library/app", sessionID, 0, bytes.NewReader(content))
	require.NoError(t, err)

	dgst := digest.FromBytes(content)
	require.NoError(t, r.CompleteBlobUpload(ctx, "library/app", sessionID, dgst, nil))

	blob, err := r.GetBlob(ctx, "library/app", dgst)
	require.NoError(t, err)
	defer blob.Body.Close()
	assert.Equal(t, int64(len(content)), blob.Size)
}

func TestEvaluateAdmissionUsesConfiguredPolicy(t *testing.T) {
	r := newRegistry(t)
	result := r.EvaluateAdmission("docker.io/library/app:latest")
	assert.True(t, result.Allowed)
}

func TestReferrersListsManifestsReferencingSubject(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	config := []byte(`{}`)
	configDigest := putBlob(t, r, "library/app", config)
	subjectRaw := manifestJSON(configDigest, len(config), "")
	subjectDigest, err := r.PutManifest(ctx, "library/app", "subject", "application/vnd.oci.image.manifest.v1+json", subjectRaw)
	require.NoError(t, err)

	sigExtra := `,"artifactType":"application/vnd.example.sig","subject":{"mediaType":"application/vnd.oci.image.manifest.v1+json","digest":"` +
		subjectDigest.String() + `","size":` + strconv.Itoa(len(subjectRaw)) + `}`
	sigRaw := manifestJSON(configDigest, len(config), sigExtra)
	_, err = r.PutManifest(ctx, "library/app", "sig", "application/vnd.oci.image.manifest.v1+json", sigRaw)
	require.NoError(t, err)

	referrers, err := r.Referrers(ctx, "library/app", subjectDigest, "")
	require.NoError(t, err)
	require.Len(t, referrers, 1)
	assert.Contains(t, referrers[0].JSON, "application/vnd.example.sig")
}
