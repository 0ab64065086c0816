package proxy_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuxler/ruasec/pkg/errdefs"
	"github.com/wuxler/ruasec/pkg/trow/proxy"
)

func TestSplitProxiedRepo(t *testing.T) {
	alias, upstream, ok := proxy.SplitProxiedRepo("f/dockerhub/library/nginx")
	require.True(t, ok)
	assert.Equal(t, "dockerhub", alias)
	assert.Equal(t, "library/nginx", upstream)

	_, _, ok = proxy.SplitProxiedRepo("library/nginx")
	assert.False(t, ok)

	_, _, ok = proxy.SplitProxiedRepo("f/dockerhub")
	assert.False(t, ok)
}

type fakeStorage struct {
	mu      sync.Mutex
	content map[digest.Digest][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{content: map[digest.Digest][]byte{}}
}

func (s *fakeStorage) Exists(ctx context.Context, dgst digest.Digest) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.content[dgst]
	return ok, nil
}

func (s *fakeStorage) Put(ctx context.Context, expected digest.Digest, size int64, r io.Reader) error {
	buf, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content[expected] = buf
	return nil
}

type fakeIndex struct {
	mu         sync.Mutex
	tags       map[string]digest.Digest
	blobAssoc  map[string]bool
	manifests  map[string][]byte
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{tags: map[string]digest.Digest{}, blobAssoc: map[string]bool{}, manifests: map[string][]byte{}}
}

func (i *fakeIndex) ResolveTag(ctx context.Context, repo, tag string) (digest.Digest, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	d, ok := i.tags[repo+":"+tag]
	if !ok {
		return "", errdefs.Newf(errdefs.ErrNotFound, "tag %s:%s not found", repo, tag)
	}
	return d, nil
}

func (i *fakeIndex) BlobAssociated(ctx context.Context, repo string, dgst digest.Digest) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.blobAssoc[repo+"@"+dgst.String()], nil
}

func (i *fakeIndex) AssociateBlob(ctx context.Context, repo string, dgst digest.Digest, size int64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.blobAssoc[repo+"@"+dgst.String()] = true
	return nil
}

func (i *fakeIndex) PutManifest(ctx context.Context, repo string, dgst digest.Digest, size int64, raw []byte, tag string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.manifests[repo+"@"+dgst.String()] = raw
	i.blobAssoc[repo+"@"+dgst.String()] = true
	if tag != "" {
		i.tags[repo+":"+tag] = dgst
	}
	return nil
}

func TestResolveDownloadsTaggedManifestAndBlob(t *testing.T) {
	layerContent := []byte("layer-bytes")
	layerDigest := digest.FromBytes(layerContent)

	configContent := []byte("{}")
	configDigest := digest.FromBytes(configContent)

	manifestJSON := `{
		"schemaVersion": 2,
		"mediaType": "application/vnd.oci.image.manifest.v1+json",
		"config": {"mediaType": "application/vnd.oci.image.config.v1+json", "digest": "` + configDigest.String() + `", "size": ` + itoa(len(configContent)) + `},
		"layers": [
			{"mediaType": "application/vnd.oci.image.layer.v1.tar+gzip", "digest": "` + layerDigest.String() + `", "size": ` + itoa(len(layerContent)) + `}
		]
	}`
	manifestDigest := digest.FromBytes([]byte(manifestJSON))

	mux := http.NewServeMux()
	manifestHandler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.oci.image.manifest.v1+json")
		w.Header().Set("Docker-Content-Digest", manifestDigest.String())
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", itoa(len(manifestJSON)))
			w.WriteHeader(http.StatusOK)
			return
		}
		_, _ = w.Write([]byte(manifestJSON))
	}
	// The engine resolves "latest" via an upstream HEAD first, then fetches
	// the manifest by the resolved digest, so both reference forms route here.
	mux.HandleFunc("/v2/myrepo/manifests/latest", manifestHandler)
	mux.HandleFunc("/v2/myrepo/manifests/"+manifestDigest.String(), manifestHandler)
	mux.HandleFunc("/v2/myrepo/blobs/"+configDigest.String(), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.oci.image.config.v1+json")
		w.Header().Set("Docker-Content-Digest", configDigest.String())
		_, _ = w.Write(configContent)
	})
	mux.HandleFunc("/v2/myrepo/blobs/"+layerDigest.String(), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.oci.image.layer.v1.tar+gzip")
		w.Header().Set("Docker-Content-Digest", layerDigest.String())
		_, _ = w.Write(layerContent)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	storage := newFakeStorage()
	index := newFakeIndex()
	engine := proxy.New([]proxy.AliasConfig{
		{Alias: "upstream", Host: srv.Listener.Addr().String(), Insecure: true},
	}, storage, index)

	dgst, err := engine.Resolve(context.Background(), "f/upstream/myrepo", "latest")
	require.NoError(t, err)
	assert.Equal(t, manifestDigest, dgst)

	assert.Equal(t, configContent, storage.content[configDigest])
	assert.Equal(t, layerContent, storage.content[layerDigest])

	resolved, err := index.ResolveTag(context.Background(), "f/upstream/myrepo", "latest")
	require.NoError(t, err)
	assert.Equal(t, manifestDigest, resolved)
}

func TestResolveOfflineServesOnlyCached(t *testing.T) {
	storage := newFakeStorage()
	index := newFakeIndex()
	manifestDigest := digest.FromBytes([]byte("cached"))
	index.tags["f/upstream/myrepo:latest"] = manifestDigest
	index.blobAssoc["f/upstream/myrepo@"+manifestDigest.String()] = true

	engine := proxy.New([]proxy.AliasConfig{
		{Alias: "upstream", Host: "unreachable.invalid", Insecure: true},
	}, storage, index)
	engine.Offline = true

	dgst, err := engine.Resolve(context.Background(), "f/upstream/myrepo", "latest")
	require.NoError(t, err)
	assert.Equal(t, manifestDigest, dgst)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for n > 0 {
		pos--
		buf[pos] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[pos:])
}
