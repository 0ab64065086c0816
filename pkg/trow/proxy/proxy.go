// Package proxy implements pull-through caching of a repository namespaced
// under "f/<alias>/...": reads resolve <alias> to a configured upstream
// registry, authenticate against it (Basic, Bearer, or the AWS ECR special
// case), and recursively download a manifest and its blobs into local
// Storage and the Index, so that repeat reads are served entirely locally.
//
// Authentication and challenge/token negotiation are delegated to
// pkg/ocispec/distribution/remote.Client, which already implements the
// Basic/Bearer www-authenticate dance; this package supplies the
// per-alias credentials (including the derived ECR bearer password) and
// the download/dedup orchestration on top.
package proxy

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/samber/lo"

	"github.com/wuxler/ruasec/pkg/errdefs"
	"github.com/wuxler/ruasec/pkg/ocispec/authn"
	remoteclient "github.com/wuxler/ruasec/pkg/ocispec/distribution/remote"
	ocispecname "github.com/wuxler/ruasec/pkg/ocispec/name"
	"github.com/wuxler/ruasec/pkg/trow/manifest"
	"github.com/wuxler/ruasec/pkg/util/xcache"
	"github.com/wuxler/ruasec/pkg/xlog"
)

// connectTimeout bounds how long dialing an upstream registry may take;
// once connected, ordinary response deadlines come from the request context.
const connectTimeout = 1 * time.Second

var upstreamTransport = &http.Transport{
	DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
}

// RepoPrefix is the reserved repository path prefix that marks a proxied
// repository, "f/<alias>/<upstream-repo>".
const RepoPrefix = "f/"

// AliasConfig names one upstream registry a proxied repository may resolve to.
type AliasConfig struct {
	Alias    string
	Host     string
	Insecure bool
	Username string
	Password string
}

// Storage is the subset of pkg/trow/storage.Backend the proxy engine needs
// to land downloaded content.
type Storage interface {
	Exists(ctx context.Context, dgst digest.Digest) (bool, error)
	Put(ctx context.Context, expected digest.Digest, size int64, r io.Reader) error
}

// Index is the subset of pkg/trow/index.Index the proxy engine needs to
// read and record repo-scoped state.
type Index interface {
	ResolveTag(ctx context.Context, repo, tag string) (digest.Digest, error)
	BlobAssociated(ctx context.Context, repo string, dgst digest.Digest) (bool, error)
	AssociateBlob(ctx context.Context, repo string, dgst digest.Digest, size int64) error
	PutManifest(ctx context.Context, repo string, dgst digest.Digest, size int64, raw []byte, tag string) error
}

// Engine resolves proxied repository reads against configured upstream
// aliases, with an Offline mode that serves only already-cached content.
type Engine struct {
	Aliases map[string]AliasConfig
	Storage Storage
	Index   Index
	Offline bool

	tokenCache xcache.Cache[string]
}

// New returns an Engine over the given aliases, storage, and index.
func New(aliases []AliasConfig, storage Storage, index Index) *Engine {
	byAlias := make(map[string]AliasConfig, len(aliases))
	for _, a := range aliases {
		byAlias[a.Alias] = a
	}
	return &Engine{
		Aliases:    byAlias,
		Storage:    storage,
		Index:      index,
		tokenCache: xcache.NewMemory[string](),
	}
}

// SplitProxiedRepo splits a "f/<alias>/<upstream-repo>" repository name into
// its alias and upstream repository path. ok is false if repo is not a
// proxied repository name.
func SplitProxiedRepo(repo string) (alias, upstream string, ok bool) {
	if !strings.HasPrefix(repo, RepoPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(repo, RepoPrefix)
	i := strings.IndexByte(rest, '/')
	if i < 0 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

func (e *Engine) authConfig(ctx context.Context, a AliasConfig) authn.AuthConfig {
	if a.Username == "AWS" && a.Password == "" && isECRHost(a.Host) {
		password, ok := e.tokenCache.Get(ctx, a.Host, xcache.WithLoader(func(ctx context.Context, key string) (string, bool) {
			password, err := ecrBasicPassword(ctx, key)
			if err != nil {
				xlog.FromContext(ctx).Errorf("derive ECR credentials for %s: %v", key, err)
				return "", false
			}
			return password, true
		}))
		if ok {
			return authn.AuthConfig{Username: "AWS", Password: password}
		}
		return authn.EmptyAuthConfig
	}
	return authn.AuthConfig{Username: a.Username, Password: a.Password}
}

func (e *Engine) registryClient(alias AliasConfig) *remoteclient.Client {
	c := remoteclient.NewClient()
	c.Client = &http.Client{Transport: upstreamTransport}
	c.AuthProvider = func(ctx context.Context, host string) authn.AuthConfig {
		return e.authConfig(ctx, alias)
	}
	return c
}

func (e *Engine) scheme(alias AliasConfig) string {
	if alias.Insecure {
		return "http"
	}
	return "https"
}

func (e *Engine) registry(ctx context.Context, alias AliasConfig) (*remoteclient.Registry, error) {
	regName, err := ocispecname.NewRegistry(alias.Host)
	if err != nil {
		return nil, err
	}
	regName = regName.WithScheme(e.scheme(alias))
	return e.registryClient(alias).NewRegistry(ctx, regName)
}

// Resolve finds the best local digest to serve for a proxied read of
// (repo, reference), downloading it (and its dependent blobs/manifests) from
// upstream as needed. reference may be a tag or a digest.
//
// Per the digest resolution rule: if reference parses as a digest, that is
// the only candidate; otherwise the local tag pointer and a best-effort
// upstream HEAD are both consulted, remote taking priority, and the first
// candidate that downloads successfully is recorded as the new tag pointer.
func (e *Engine) Resolve(ctx context.Context, repo, reference string) (digest.Digest, error) {
	alias, upstreamRepo, ok := SplitProxiedRepo(repo)
	if !ok {
		return "", errdefs.Newf(errdefs.ErrInvalidParameter, "not a proxied repository: %q", repo)
	}
	aliasCfg, ok := e.Aliases[alias]
	if !ok {
		return "", errdefs.Newf(errdefs.ErrNotFound, "no proxy alias configured for %q", alias)
	}

	if dgst, err := digest.Parse(reference); err == nil {
		return e.resolveCandidates(ctx, repo, upstreamRepo, aliasCfg, reference, []digest.Digest{dgst})
	}

	var candidates []digest.Digest
	if !e.Offline {
		if remoteDgst, err := e.headManifestDigest(ctx, upstreamRepo, aliasCfg, reference); err == nil {
			candidates = append(candidates, remoteDgst)
		} else {
			xlog.FromContext(ctx).Debugf("proxy: upstream HEAD for %s/%s failed, falling back to local tag: %v", repo, reference, err)
		}
	}
	if localDgst, err := e.Index.ResolveTag(ctx, repo, reference); err == nil {
		candidates = append(candidates, localDgst)
	}
	candidates = lo.Uniq(candidates)

	if len(candidates) == 0 {
		return "", errdefs.Newf(errdefs.ErrNotFound, "no candidate digest for %s:%s", repo, reference)
	}
	return e.resolveCandidates(ctx, repo, upstreamRepo, aliasCfg, reference, candidates)
}

func (e *Engine) resolveCandidates(ctx context.Context, repo, upstreamRepo string, alias AliasConfig, reference string, candidates []digest.Digest) (digest.Digest, error) {
	_, referenceIsDigest := digestOrNone(reference)

	var lastErr error
	for _, dgst := range candidates {
		associated, err := e.Index.BlobAssociated(ctx, repo, dgst)
		if err == nil && associated {
			return dgst, nil
		}
		if e.Offline {
			lastErr = errdefs.Newf(errdefs.ErrNotFound, "offline: %s@%s not cached", repo, dgst)
			continue
		}
		raw, err := e.download(ctx, repo, upstreamRepo, alias, dgst.String())
		if err != nil {
			lastErr = err
			continue
		}
		if !referenceIsDigest {
			if err := e.Index.PutManifest(ctx, repo, dgst, int64(len(raw)), raw, reference); err != nil {
				return "", err
			}
		}
		return dgst, nil
	}
	if lastErr == nil {
		lastErr = errdefs.Newf(errdefs.ErrNotFound, "%s:%s not found", repo, reference)
	}
	return "", lastErr
}

func digestOrNone(reference string) (digest.Digest, bool) {
	dgst, err := digest.Parse(reference)
	if err != nil {
		return "", false
	}
	return dgst, true
}

func (e *Engine) headManifestDigest(ctx context.Context, upstreamRepo string, alias AliasConfig, reference string) (digest.Digest, error) {
	reg, err := e.registry(ctx, alias)
	if err != nil {
		return "", err
	}
	desc, err := reg.StatManifest(ctx, upstreamRepo, reference)
	if err != nil {
		return "", err
	}
	return desc.Digest, nil
}

// MaxRecursionDepth bounds how many levels of nested image index references
// download follows before giving up, guarding against a pathologically deep
// index from a misbehaving or malicious upstream.
const MaxRecursionDepth = 8

// download recursively fetches manifest targetRef (a digest string) and
// everything it references, landing blobs and manifests in Storage/Index,
// and returns the fetched manifest's raw bytes. Each top-level call gets its
// own visited set, so an index that (directly or transitively) references a
// digest already seen in this fetch is rejected rather than re-walked.
func (e *Engine) download(ctx context.Context, repo, upstreamRepo string, alias AliasConfig, targetRef string) ([]byte, error) {
	visited := make(map[digest.Digest]struct{})
	return e.downloadManifest(ctx, repo, upstreamRepo, alias, targetRef, 0, visited)
}

func (e *Engine) downloadManifest(ctx context.Context, repo, upstreamRepo string, alias AliasConfig, targetRef string, depth int, visited map[digest.Digest]struct{}) ([]byte, error) {
	if depth > MaxRecursionDepth {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "proxy: %s exceeds max index recursion depth %d", repo, MaxRecursionDepth)
	}
	if dgst, err := digest.Parse(targetRef); err == nil {
		if _, seen := visited[dgst]; seen {
			return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "proxy: cyclic manifest reference %s@%s", repo, dgst)
		}
		visited[dgst] = struct{}{}
	}

	raw, err := e.fetchManifestBytes(ctx, upstreamRepo, targetRef, alias)
	if err != nil {
		return nil, err
	}

	parsed, err := manifest.Parse("", raw)
	if err != nil {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "proxy: invalid upstream manifest %s@%s: %v", repo, targetRef, err)
	}

	if parsed.IsIndex() {
		for _, child := range parsed.Manifests() {
			if _, err := e.downloadManifest(ctx, repo, upstreamRepo, alias, child.Digest.String(), depth+1, visited); err != nil {
				return nil, err
			}
		}
	} else {
		for _, dgstStr := range parsed.LocalBlobDigests() {
			if err := e.downloadBlob(ctx, repo, upstreamRepo, alias, digest.Digest(dgstStr)); err != nil {
				return nil, err
			}
		}
	}

	dgst := digest.FromBytes(raw)
	if err := e.Storage.Put(ctx, dgst, int64(len(raw)), bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	if err := e.Index.PutManifest(ctx, repo, dgst, int64(len(raw)), raw, ""); err != nil {
		return nil, err
	}
	return raw, nil
}

func (e *Engine) downloadBlob(ctx context.Context, repo, upstreamRepo string, alias AliasConfig, dgst digest.Digest) error {
	exists, err := e.Storage.Exists(ctx, dgst)
	if err != nil {
		return err
	}
	if exists {
		return e.Index.AssociateBlob(ctx, repo, dgst, 0)
	}

	reg, err := e.registry(ctx, alias)
	if err != nil {
		return err
	}
	rc, err := reg.GetBlob(ctx, upstreamRepo, dgst)
	if err != nil {
		return err
	}
	defer rc.Close()

	size := rc.Descriptor().Size
	if err := e.Storage.Put(ctx, dgst, size, rc); err != nil {
		return err
	}
	return e.Index.AssociateBlob(ctx, repo, dgst, size)
}

// fetchManifestBytes reads the full manifest body for ref from upstreamRepo.
func (e *Engine) fetchManifestBytes(ctx context.Context, upstreamRepo, ref string, alias AliasConfig) ([]byte, error) {
	reg, err := e.registry(ctx, alias)
	if err != nil {
		return nil, err
	}
	rc, err := reg.GetManifest(ctx, upstreamRepo, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
