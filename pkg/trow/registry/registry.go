// Package registry orchestrates the storage backend, metadata index,
// manifest parser, upload state machine, proxy engine, and admission policy
// behind the set of operations the HTTP front-end calls, generalizing the
// teacher's remote-registry-client `Registry`/`Repository` abstraction
// (pkg/registry/registry.go) into a local-registry server implementation of
// the same shape.
package registry

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/opencontainers/go-digest"

	"github.com/wuxler/ruasec/pkg/errdefs"
	"github.com/wuxler/ruasec/pkg/trow/admission"
	trowdigest "github.com/wuxler/ruasec/pkg/trow/digest"
	"github.com/wuxler/ruasec/pkg/trow/index"
	"github.com/wuxler/ruasec/pkg/trow/manifest"
	"github.com/wuxler/ruasec/pkg/trow/proxy"
	"github.com/wuxler/ruasec/pkg/trow/storage"
	"github.com/wuxler/ruasec/pkg/trow/upload"
)

// Registry is the server's single point of entry for every distribution
// operation, wired from a storage backend, an index, and configuration.
type Registry struct {
	Storage *storage.Backend
	Index   *index.Index
	Upload  *upload.Machine
	Proxy   *proxy.Engine
	Policy  admission.Policy
}

// New wires a Registry from its components. proxyAliases may be empty if no
// registry_proxies are configured.
func New(backend *storage.Backend, idx *index.Index, proxyAliases []proxy.AliasConfig, policy admission.Policy) *Registry {
	return &Registry{
		Storage: backend,
		Index:   idx,
		Upload:  upload.New(&uploadIndex{idx: idx}, backend),
		Proxy:   proxy.New(proxyAliases, backend, &proxyIndex{idx: idx}),
		Policy:  policy,
	}
}

// Manifest is a resolved manifest ready to be written to an HTTP response.
type Manifest struct {
	Digest    digest.Digest
	MediaType string
	Raw       []byte
}

// GetManifest resolves repo/reference (a tag or digest) to its stored bytes.
// Proxied repositories ("f/<alias>/...") are downloaded on a cache miss via
// the Proxy engine; ordinary repositories are served from the Index only.
func (r *Registry) GetManifest(ctx context.Context, repo, reference string) (Manifest, error) {
	dgst, err := r.resolve(ctx, repo, reference)
	if err != nil {
		return Manifest{}, err
	}
	rec, err := r.Index.GetManifest(ctx, dgst.String())
	if err != nil {
		return Manifest{}, err
	}
	parsed, err := manifest.Parse("", rec.Blob)
	if err != nil {
		return Manifest{}, err
	}
	return Manifest{Digest: dgst, MediaType: parsed.MediaType(), Raw: rec.Blob}, nil
}

func (r *Registry) resolve(ctx context.Context, repo, reference string) (digest.Digest, error) {
	if _, _, ok := proxy.SplitProxiedRepo(repo); ok {
		return r.Proxy.Resolve(ctx, repo, reference)
	}
	if dgst, err := digest.Parse(reference); err == nil {
		return dgst, nil
	}
	dgstStr, err := r.Index.ResolveTag(ctx, repo, reference)
	if err != nil {
		return "", err
	}
	return digest.Digest(dgstStr), nil
}

// PutManifest validates and stores a manifest's verbatim bytes under repo,
// tagging it if reference is not itself a digest. Per the registry's byte
// identity guarantee, raw is stored and digested unmodified — parsing is
// only ever used to inspect a copy.
func (r *Registry) PutManifest(ctx context.Context, repo, reference, declaredMediaType string, raw []byte) (digest.Digest, error) {
	parsed, err := manifest.Parse(declaredMediaType, raw)
	if err != nil {
		return "", err
	}

	for _, dgstStr := range parsed.LocalBlobDigests() {
		dgst, err := trowdigest.Parse(dgstStr)
		if err != nil {
			return "", errdefs.Newf(errdefs.ErrInvalidParameter, "manifest: %v", err)
		}
		if exists, err := r.Storage.Exists(ctx, dgst); err != nil {
			return "", err
		} else if !exists {
			return "", errdefs.Newf(errdefs.ErrInvalidParameter, "manifest references missing blob %s", dgst)
		}
	}

	dgst := digest.FromBytes(raw)
	if err := r.Storage.Put(ctx, dgst, int64(len(raw)), bytes.NewReader(raw)); err != nil {
		return "", err
	}

	tag := ""
	if _, err := digest.Parse(reference); err != nil {
		tag = reference
	}
	if err := r.Index.PutManifest(ctx, repo, dgst.String(), int64(len(raw)), raw, string(raw), tag); err != nil {
		return "", err
	}
	for _, dgstStr := range parsed.LocalBlobDigests() {
		if err := r.Index.AssociateBlob(ctx, repo, dgstStr, 0); err != nil {
			return "", err
		}
	}
	return dgst, nil
}

// DeleteManifest removes a manifest by digest. Tags pointing at it are left
// dangling, per the index's deliberate no-cascade policy.
func (r *Registry) DeleteManifest(ctx context.Context, dgst digest.Digest) error {
	return r.Index.DeleteManifest(ctx, dgst.String())
}

// Blob is a resolved blob ready to stream to an HTTP response.
type Blob struct {
	Digest digest.Digest
	Size   int64
	Body   io.ReadCloser
}

// GetBlob serves a blob only if repo is associated with it, per the
// association invariant: existence of the content is not enough.
func (r *Registry) GetBlob(ctx context.Context, repo string, dgst digest.Digest) (Blob, error) {
	if ok, err := r.Index.BlobAssociated(ctx, repo, dgst.String()); err != nil {
		return Blob{}, err
	} else if !ok {
		return Blob{}, errdefs.Newf(errdefs.ErrNotFound, "blob %s not associated with %s", dgst, repo)
	}
	size, err := r.Storage.Size(ctx, dgst)
	if err != nil {
		return Blob{}, err
	}
	body, err := r.Storage.Open(ctx, dgst)
	if err != nil {
		return Blob{}, err
	}
	return Blob{Digest: dgst, Size: size, Body: body}, nil
}

// GetBlobRange serves a blob starting at offset bytes in, for HTTP Range
// requests on blob downloads; offset must be within [0, size).
func (r *Registry) GetBlobRange(ctx context.Context, repo string, dgst digest.Digest, offset int64) (Blob, error) {
	if ok, err := r.Index.BlobAssociated(ctx, repo, dgst.String()); err != nil {
		return Blob{}, err
	} else if !ok {
		return Blob{}, errdefs.Newf(errdefs.ErrNotFound, "blob %s not associated with %s", dgst, repo)
	}
	size, err := r.Storage.Size(ctx, dgst)
	if err != nil {
		return Blob{}, err
	}
	if offset < 0 || offset >= size {
		return Blob{}, errdefs.Newf(errdefs.ErrInvalidParameter, "range offset %d out of bounds for blob of size %d", offset, size)
	}
	body, err := r.Storage.OpenRange(ctx, dgst, offset)
	if err != nil {
		return Blob{}, err
	}
	return Blob{Digest: dgst, Size: size - offset, Body: body}, nil
}

// StatBlob reports a blob's size without opening it, for HEAD requests.
func (r *Registry) StatBlob(ctx context.Context, repo string, dgst digest.Digest) (int64, error) {
	if ok, err := r.Index.BlobAssociated(ctx, repo, dgst.String()); err != nil {
		return 0, err
	} else if !ok {
		return 0, errdefs.Newf(errdefs.ErrNotFound, "blob %s not associated with %s", dgst, repo)
	}
	return r.Storage.Size(ctx, dgst)
}

// DeleteBlob removes a blob entirely (all repository associations included),
// per end-10 of the distribution spec. Idempotent.
func (r *Registry) DeleteBlob(ctx context.Context, dgst digest.Digest) error {
	if err := r.Index.DeleteBlob(ctx, dgst.String()); err != nil && !isNotFound(err) {
		return err
	}
	return r.Storage.Delete(ctx, dgst)
}

// PutBlob performs a monolithic blob push, verifying expected against the
// streamed content before it is associated with repo.
func (r *Registry) PutBlob(ctx context.Context, repo string, expected digest.Digest, size int64, body io.Reader) error {
	if err := r.Storage.Put(ctx, expected, size, body); err != nil {
		return err
	}
	actualSize, err := r.Storage.Size(ctx, expected)
	if err != nil {
		return err
	}
	return r.Index.AssociateBlob(ctx, repo, expected.String(), actualSize)
}

// CompleteBlobUpload finalizes a resumable upload session and associates the
// resulting blob with repo, per PUT /v2/<name>/blobs/uploads/<uuid>.
func (r *Registry) CompleteBlobUpload(ctx context.Context, repo, sessionID string, expected digest.Digest, trailing io.Reader) error {
	if err := r.Upload.Complete(ctx, repo, sessionID, expected, trailing); err != nil {
		return err
	}
	size, err := r.Storage.Size(ctx, expected)
	if err != nil {
		return err
	}
	return r.Index.AssociateBlob(ctx, repo, expected.String(), size)
}

// ListRepositories paginates the catalog, at most limit names strictly
// greater than last, ascending.
func (r *Registry) ListRepositories(ctx context.Context, last string, limit int) ([]string, error) {
	return r.Index.ListRepositories(ctx, last, limit)
}

// ListTags paginates a repository's tags, case-insensitive ascending order.
func (r *Registry) ListTags(ctx context.Context, repo, last string, limit int) ([]string, error) {
	return r.Index.ListTags(ctx, repo, last, limit)
}

// Referrer is one entry of an OCI 1.1 referrers response.
type Referrer = index.Referrer

// Referrers lists manifests in repo whose subject points at target.
func (r *Registry) Referrers(ctx context.Context, repo string, target digest.Digest, artifactType string) ([]Referrer, error) {
	return r.Index.Referrers(ctx, repo, target.String(), artifactType)
}

// EvaluateAdmission checks a raw image reference against the configured
// image validation policy.
func (r *Registry) EvaluateAdmission(rawImageRef string) admission.Result {
	return admission.Evaluate(rawImageRef, r.Policy)
}

func isNotFound(err error) bool {
	return errors.Is(err, errdefs.ErrNotFound)
}
