package frontend_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuxler/ruasec/pkg/trow/admission"
	"github.com/wuxler/ruasec/pkg/trow/frontend"
	"github.com/wuxler/ruasec/pkg/trow/index"
	"github.com/wuxler/ruasec/pkg/trow/registry"
	"github.com/wuxler/ruasec/pkg/trow/storage"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func newTestServer(t *testing.T, policy admission.Policy) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clock := fixedClock{t: time.Unix(1700000000, 0)}
	backend := storage.New(afero.NewMemMapFs(), clock)
	idx, err := index.Open(context.Background(), "file::memory:?cache=shared", clock)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	reg := registry.New(backend, idx, nil, policy)
	s := frontend.New(reg, "trow_registry", "registry.example.com")
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestPingReturnsEmptyObject(t *testing.T) {
	srv := newTestServer(t, admission.Policy{Default: admission.Allow})

	resp, err := http.Get(srv.URL + "/v2/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "registry/2.0", resp.Header.Get("Docker-Distribution-API-Version"))
}

func TestMonolithicBlobUploadThenFetch(t *testing.T) {
	srv := newTestServer(t, admission.Policy{Default: admission.Allow})
	content := []byte("hello blob")
	dgst := digest.FromBytes(content)

	req, err := http.NewRequest(http.MethodPost,
		srv.URL+"/v2/library/app/blobs/uploads/?digest="+dgst.String(), bytes.NewReader(content))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, dgst.String(), resp.Header.Get("Docker-Content-Digest"))

	get, err := http.Get(srv.URL + "/v2/library/app/blobs/" + dgst.String())
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusOK, get.StatusCode)
	body, err := io.ReadAll(get.Body)
	require.NoError(t, err)
	assert.Equal(t, content, body)
}

func TestChunkedBlobUploadLifecycle(t *testing.T) {
	srv := newTestServer(t, admission.Policy{Default: admission.Allow})
	content := []byte("uploaded across two chunks")
	first, second := content[:10], content[10:]

	start, err := http.Post(srv.URL+"/v2/library/app/blobs/uploads/", "", nil)
	require.NoError(t, err)
	start.Body.Close()
	require.Equal(t, http.StatusAccepted, start.StatusCode)
	location := start.Header.Get("Location")
	require.NotEmpty(t, location)

	patch := func(body []byte, rng string) *http.Response {
		req, err := http.NewRequest(http.MethodPatch, srv.URL+location, bytes.NewReader(body))
		require.NoError(t, err)
		if rng != "" {
			req.Header.Set("Content-Range", rng)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	r1 := patch(first, "0-9")
	r1.Body.Close()
	assert.Equal(t, http.StatusAccepted, r1.StatusCode)
	location = r1.Header.Get("Location")

	r2 := patch(second, "10-"+itoa(len(content)-1))
	r2.Body.Close()
	assert.Equal(t, http.StatusAccepted, r2.StatusCode)
	location = r2.Header.Get("Location")

	dgst := digest.FromBytes(content)
	req, err := http.NewRequest(http.MethodPut, srv.URL+location+"?digest="+dgst.String(), nil)
	require.NoError(t, err)
	complete, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	complete.Body.Close()
	assert.Equal(t, http.StatusCreated, complete.StatusCode)
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

func TestManifestRoundTripAndMediaType(t *testing.T) {
	srv := newTestServer(t, admission.Policy{Default: admission.Allow})

	config := []byte(`{}`)
	configDigest := digest.FromBytes(config)
	req, err := http.NewRequest(http.MethodPost,
		srv.URL+"/v2/library/app/blobs/uploads/?digest="+configDigest.String(), bytes.NewReader(config))
	require.NoError(t, err)
	up, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	up.Body.Close()
	require.Equal(t, http.StatusCreated, up.StatusCode)

	raw := []byte(`{"schemaVersion":2,"mediaType":"application/vnd.oci.image.manifest.v1+json","config":{"mediaType":"application/vnd.oci.image.config.v1+json","digest":"` +
		configDigest.String() + `","size":2}}`)

	put, err := http.NewRequest(http.MethodPut, srv.URL+"/v2/library/app/manifests/v1", bytes.NewReader(raw))
	require.NoError(t, err)
	put.Header.Set("Content-Type", "application/vnd.oci.image.manifest.v1+json")
	putResp, err := http.DefaultClient.Do(put)
	require.NoError(t, err)
	putResp.Body.Close()
	assert.Equal(t, http.StatusCreated, putResp.StatusCode)

	get, err := http.Get(srv.URL + "/v2/library/app/manifests/v1")
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusOK, get.StatusCode)
	assert.Equal(t, "application/vnd.oci.image.manifest.v1+json", get.Header.Get("Content-Type"))
	body, err := io.ReadAll(get.Body)
	require.NoError(t, err)
	assert.Equal(t, raw, body)
}

func TestDeniedImageFailsValidatingWebhook(t *testing.T) {
	srv := newTestServer(t, admission.Policy{Default: admission.Deny, Allow: []string{"docker.io/library/"}})

	review := map[string]any{
		"apiVersion": "admission.k8s.io/v1",
		"kind":       "AdmissionReview",
		"request": map[string]any{
			"uid": "abc-123",
			"object": map[string]any{
				"spec": map[string]any{
					"containers": []map[string]any{{"image": "evil.example.com/malware:latest"}},
				},
			},
		},
	}
	raw, err := json.Marshal(review)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/validate-image", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	response := decoded["response"].(map[string]any)
	assert.Equal(t, "abc-123", response["uid"])
	assert.Equal(t, false, response["allowed"])
}

func TestAllowedImagePassesValidatingWebhook(t *testing.T) {
	srv := newTestServer(t, admission.Policy{Default: admission.Allow})

	review := map[string]any{
		"apiVersion": "admission.k8s.io/v1",
		"kind":       "AdmissionReview",
		"request": map[string]any{
			"uid": "def-456",
			"object": map[string]any{
				"spec": map[string]any{
					"containers": []map[string]any{{"image": "docker.io/library/nginx:latest"}},
				},
			},
		},
	}
	raw, err := json.Marshal(review)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/validate-image", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	response := decoded["response"].(map[string]any)
	assert.Equal(t, true, response["allowed"])
}

func TestReadinessReportsOK(t *testing.T) {
	srv := newTestServer(t, admission.Policy{Default: admission.Allow})

	resp, err := http.Get(srv.URL + "/readiness")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestUnrecognizedPathReturnsNotFound(t *testing.T) {
	srv := newTestServer(t, admission.Policy{Default: admission.Allow})

	resp, err := http.Get(srv.URL + "/v2/library/app/not-a-real-endpoint")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
