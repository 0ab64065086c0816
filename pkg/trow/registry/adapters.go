package registry

import (
	"context"

	"github.com/opencontainers/go-digest"

	"github.com/wuxler/ruasec/pkg/trow/index"
	"github.com/wuxler/ruasec/pkg/trow/proxy"
	"github.com/wuxler/ruasec/pkg/trow/upload"
)

// proxyIndex adapts *index.Index (string digests, six-argument PutManifest)
// to the narrower proxy.Index interface (digest.Digest, no parsed-JSON
// column): the proxy always stores a manifest's raw bytes as both its blob
// and its queryable JSON, since the two are identical for anything the proxy
// itself ever downloads.
type proxyIndex struct {
	idx *index.Index
}

func (a *proxyIndex) ResolveTag(ctx context.Context, repo, tag string) (digest.Digest, error) {
	d, err := a.idx.ResolveTag(ctx, repo, tag)
	return digest.Digest(d), err
}

func (a *proxyIndex) BlobAssociated(ctx context.Context, repo string, dgst digest.Digest) (bool, error) {
	return a.idx.BlobAssociated(ctx, repo, dgst.String())
}

func (a *proxyIndex) AssociateBlob(ctx context.Context, repo string, dgst digest.Digest, size int64) error {
	return a.idx.AssociateBlob(ctx, repo, dgst.String(), size)
}

func (a *proxyIndex) PutManifest(ctx context.Context, repo string, dgst digest.Digest, size int64, raw []byte, tag string) error {
	return a.idx.PutManifest(ctx, repo, dgst.String(), size, raw, string(raw), tag)
}

// uploadIndex adapts *index.Index to the upload.Index interface, converting
// between its index.UploadSessionRecord and upload's local Session shape.
type uploadIndex struct {
	idx *index.Index
}

func (a *uploadIndex) CreateUploadSession(ctx context.Context, id, repo string) error {
	return a.idx.CreateUploadSession(ctx, id, repo)
}

func (a *uploadIndex) GetUploadSession(ctx context.Context, id string) (upload.Session, error) {
	rec, err := a.idx.GetUploadSession(ctx, id)
	if err != nil {
		return upload.Session{}, err
	}
	return upload.Session{ID: rec.ID, Repo: rec.Repo, Offset: rec.Offset}, nil
}

func (a *uploadIndex) SetUploadOffset(ctx context.Context, id string, offset int64) error {
	return a.idx.SetUploadOffset(ctx, id, offset)
}

func (a *uploadIndex) DeleteUploadSession(ctx context.Context, id string) error {
	return a.idx.DeleteUploadSession(ctx, id)
}
