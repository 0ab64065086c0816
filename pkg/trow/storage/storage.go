// Package storage implements the content-addressed filesystem backend that
// durably holds blob and manifest bytes on behalf of the registry.
//
// Layout on the backing [afero.Fs]:
//
//	blobs/<algo>/<first-two-hex>/<digest-hex>
//	uploads/<session-id>/data
//	uploads/<session-id>/startedat
//
// Every write lands in a temp path and is renamed into place once complete,
// so a crash mid-write never leaves a half-written blob visible under its
// final digest path.
package storage

import (
	"context"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"

	"github.com/wuxler/ruasec/pkg/errdefs"
	trowdigest "github.com/wuxler/ruasec/pkg/trow/digest"
	"github.com/wuxler/ruasec/pkg/util/xio"
	"github.com/wuxler/ruasec/pkg/xlog"
)

const (
	blobsDir   = "blobs"
	uploadsDir = "uploads"
	uploadData = "data"
)

// Backend is the content-addressed storage engine described by the registry
// storage model: blobs are keyed by digest, uploads are staged under a
// session id before being promoted into the blob set.
type Backend struct {
	fs    afero.Fs
	clock Clock
}

// Clock abstracts time.Now so tests can control upload timestamps; production
// code uses RealClock.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the standard library.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }

// New returns a Backend rooted at fs. fs is typically an
// afero.NewBasePathFs(afero.NewOsFs(), root) so all paths stay confined
// under a configured data directory.
func New(fs afero.Fs, clock Clock) *Backend {
	if clock == nil {
		clock = RealClock{}
	}
	return &Backend{fs: fs, clock: clock}
}

func blobPath(dgst digest.Digest) string {
	algo := string(dgst.Algorithm())
	hex := dgst.Encoded()
	prefix := hex
	if len(hex) >= 2 {
		prefix = hex[:2]
	}
	return path.Join(blobsDir, algo, prefix, hex)
}

func uploadDir(sessionID string) string {
	return path.Join(uploadsDir, sessionID)
}

// fetchTempPath is the single path every writer of dgst stages under,
// shared rather than per-call, so concurrent writers of the same digest
// (most commonly two racing proxy fetches) coordinate through one file
// instead of each downloading a full independent copy.
func fetchTempPath(dgst digest.Digest) string {
	return path.Join(uploadsDir, "fetch", string(dgst.Algorithm())+"-"+dgst.Encoded())
}

const (
	// fetchPollInterval is how often a waiting writer re-checks whether the
	// in-progress writer promoted or abandoned the shared temp file.
	fetchPollInterval = 50 * time.Millisecond
	// fetchPollTimeout bounds how long a writer waits for another writer's
	// in-flight fetch of the same digest before giving up.
	fetchPollTimeout = 30 * time.Second
)

// Exists reports whether a blob identified by dgst has been fully written.
func (b *Backend) Exists(ctx context.Context, dgst digest.Digest) (bool, error) {
	_, err := b.fs.Stat(blobPath(dgst))
	if err == nil {
		return true, nil
	}
	if isNotExist(err) {
		return false, nil
	}
	return false, err
}

// Size returns the size in bytes of a stored blob.
func (b *Backend) Size(ctx context.Context, dgst digest.Digest) (int64, error) {
	info, err := b.fs.Stat(blobPath(dgst))
	if err != nil {
		if isNotExist(err) {
			return 0, errdefs.Newf(errdefs.ErrNotFound, "blob %s not found", dgst)
		}
		return 0, err
	}
	return info.Size(), nil
}

// Open returns a reader over the full contents of a stored blob.
func (b *Backend) Open(ctx context.Context, dgst digest.Digest) (io.ReadCloser, error) {
	f, err := b.fs.Open(blobPath(dgst))
	if err != nil {
		if isNotExist(err) {
			return nil, errdefs.Newf(errdefs.ErrNotFound, "blob %s not found", dgst)
		}
		return nil, err
	}
	return f, nil
}

// OpenRange returns a reader starting at offset bytes into the stored blob,
// used to serve HTTP Range requests on blob downloads.
func (b *Backend) OpenRange(ctx context.Context, dgst digest.Digest, offset int64) (io.ReadCloser, error) {
	f, err := b.fs.Open(blobPath(dgst))
	if err != nil {
		if isNotExist(err) {
			return nil, errdefs.Newf(errdefs.ErrNotFound, "blob %s not found", dgst)
		}
		return nil, err
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			xio.CloseAndSkipError(f)
			return nil, err
		}
	}
	return f, nil
}

// Put writes the full contents of r as a single blob, verifying it matches
// expected before making it visible under its final digest path. If a blob
// already exists at that digest the write is skipped and the call succeeds,
// matching an idempotent push.
//
// Concurrent Puts of the same digest (typically two proxied fetches racing
// each other) coordinate through a single shared uploads/fetch/<digest> temp
// file: whichever caller creates it downloads and promotes the blob, while
// every other caller polls for that promotion rather than staging its own
// redundant copy. A caller that polls until the temp file disappears without
// the blob ever showing up under its final path concludes the writer failed
// and returns ErrNotFound.
func (b *Backend) Put(ctx context.Context, expected digest.Digest, size int64, r io.Reader) error {
	if exists, err := b.Exists(ctx, expected); err != nil {
		return err
	} else if exists {
		// Drain so callers that assumed the write happened don't leave the
		// upstream reader dangling mid-stream.
		_, _ = io.Copy(io.Discard, r)
		return nil
	}

	finalPath := blobPath(expected)
	if err := b.fs.MkdirAll(path.Dir(finalPath), 0o755); err != nil {
		return err
	}

	tmpPath := fetchTempPath(expected)
	if err := b.fs.MkdirAll(path.Dir(tmpPath), 0o755); err != nil {
		return err
	}

	tmp, err := b.fs.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			// Drain so callers that assumed the write happened don't leave
			// the upstream reader dangling mid-stream.
			_, _ = io.Copy(io.Discard, r)
			return b.waitForFetch(ctx, expected, tmpPath)
		}
		return err
	}

	verifier := trowdigest.NewVerifier(expected.Algorithm())
	n, copyErr := trowdigest.TeeVerify(tmp, r, verifier)
	closeErr := tmp.Close()
	if copyErr != nil {
		_ = b.fs.Remove(tmpPath)
		return copyErr
	}
	if closeErr != nil {
		_ = b.fs.Remove(tmpPath)
		return closeErr
	}
	if size >= 0 && n != size {
		_ = b.fs.Remove(tmpPath)
		return errdefs.Newf(errdefs.ErrInvalidParameter, "blob size mismatch: got %d, want %d", n, size)
	}
	if err := verifier.Verify(expected, size); err != nil {
		_ = b.fs.Remove(tmpPath)
		return err
	}

	if err := b.fs.Rename(tmpPath, finalPath); err != nil {
		// Another writer may have raced us to the same digest; that is fine,
		// the content is identical by definition of content addressing.
		if exists, existsErr := b.Exists(ctx, expected); existsErr == nil && exists {
			_ = b.fs.Remove(tmpPath)
			return nil
		}
		return err
	}
	return nil
}

// waitForFetch polls until dgst either appears under its final blob path
// (the in-progress writer promoted it) or tmpPath disappears without that
// happening (the in-progress writer failed), bounded by fetchPollTimeout.
func (b *Backend) waitForFetch(ctx context.Context, dgst digest.Digest, tmpPath string) error {
	deadline := b.clock.Now().Add(fetchPollTimeout)
	for {
		if exists, err := b.Exists(ctx, dgst); err != nil {
			return err
		} else if exists {
			return nil
		}
		if _, err := b.fs.Stat(tmpPath); err != nil && isNotExist(err) {
			// The writer removed its temp file without ever promoting it;
			// check once more in case it was promoted between the two stats.
			if exists, err := b.Exists(ctx, dgst); err != nil {
				return err
			} else if exists {
				return nil
			}
			return errdefs.Newf(errdefs.ErrNotFound, "blob %s not found", dgst)
		}
		if b.clock.Now().After(deadline) {
			return errdefs.Newf(errdefs.ErrNotFound, "blob %s not found: timed out waiting for concurrent fetch", dgst)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(fetchPollInterval):
		}
	}
}

// Delete removes a blob. Deleting a blob that does not exist is a no-op.
func (b *Backend) Delete(ctx context.Context, dgst digest.Digest) error {
	err := b.fs.Remove(blobPath(dgst))
	if err != nil && !isNotExist(err) {
		return err
	}
	return nil
}

// CreateUpload stages a new upload session directory and returns its id.
func (b *Backend) CreateUpload(ctx context.Context, sessionID string) error {
	dir := uploadDir(sessionID)
	if err := b.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := b.fs.Create(path.Join(dir, uploadData))
	if err != nil {
		return err
	}
	return f.Close()
}

// UploadSize returns the number of bytes written to an upload session so far,
// used to answer the Range header on a status check.
func (b *Backend) UploadSize(ctx context.Context, sessionID string) (int64, error) {
	info, err := b.fs.Stat(path.Join(uploadDir(sessionID), uploadData))
	if err != nil {
		if isNotExist(err) {
			return 0, errdefs.Newf(errdefs.ErrNotFound, "upload session %s not found", sessionID)
		}
		return 0, err
	}
	return info.Size(), nil
}

// AppendUpload appends a chunk to an upload session, enforcing that start
// matches the current size of the in-progress data (a contiguous,
// non-overlapping write), and returns the new total size.
func (b *Backend) AppendUpload(ctx context.Context, sessionID string, start int64, r io.Reader) (int64, error) {
	dataPath := path.Join(uploadDir(sessionID), uploadData)
	info, err := b.fs.Stat(dataPath)
	if err != nil {
		if isNotExist(err) {
			return 0, errdefs.Newf(errdefs.ErrNotFound, "upload session %s not found", sessionID)
		}
		return 0, err
	}
	if start != info.Size() {
		return 0, errdefs.Newf(errdefs.ErrInvalidParameter,
			"upload %s: chunk start %d does not match current size %d", sessionID, start, info.Size())
	}

	f, err := b.fs.OpenFile(dataPath, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	defer xio.CloseAndLogError(f, "storage: close upload data file")

	n, err := io.Copy(f, r)
	if err != nil {
		return info.Size() + n, err
	}
	return info.Size() + n, nil
}

// CompleteUpload validates the staged upload data against expected and, on
// success, promotes it into the blob set under its digest, then removes the
// session directory. When verify is false, the assembled bytes are trusted
// to already match expected (the incremental per-chunk digest the upload
// state machine can choose to track) and only their length against size is
// checked; when true the digest is recomputed from the staged file.
func (b *Backend) CompleteUpload(ctx context.Context, sessionID string, expected digest.Digest, size int64, verify bool) error {
	dataPath := path.Join(uploadDir(sessionID), uploadData)
	f, err := b.fs.Open(dataPath)
	if err != nil {
		if isNotExist(err) {
			return errdefs.Newf(errdefs.ErrNotFound, "upload session %s not found", sessionID)
		}
		return err
	}

	if exists, existsErr := b.Exists(ctx, expected); existsErr == nil && exists {
		xio.CloseAndSkipError(f)
		return b.removeUploadDir(sessionID)
	}

	finalPath := blobPath(expected)
	if err := b.fs.MkdirAll(path.Dir(finalPath), 0o755); err != nil {
		xio.CloseAndSkipError(f)
		return err
	}

	var n int64
	var copyErr error
	if verify {
		verifier := trowdigest.NewVerifier(expected.Algorithm())
		n, copyErr = io.Copy(verifier, f)
		if copyErr == nil {
			copyErr = verifier.Verify(expected, size)
		}
	} else {
		n, copyErr = io.Copy(io.Discard, f)
	}
	xio.CloseAndSkipError(f)
	if copyErr != nil {
		return copyErr
	}
	if size >= 0 && n != size {
		return errdefs.Newf(errdefs.ErrInvalidParameter, "upload %s size mismatch: got %d, want %d", sessionID, n, size)
	}

	if err := b.fs.Rename(dataPath, finalPath); err != nil {
		return err
	}
	return b.removeUploadDir(sessionID)
}

// CancelUpload discards a staged upload without promoting it.
func (b *Backend) CancelUpload(ctx context.Context, sessionID string) error {
	return b.removeUploadDir(sessionID)
}

func (b *Backend) removeUploadDir(sessionID string) error {
	dir := uploadDir(sessionID)
	if err := b.fs.RemoveAll(dir); err != nil {
		xlog.Warnf("storage: failed to remove upload dir %s: %v", dir, err)
		return err
	}
	return nil
}

// Ready probes the backing filesystem for writability by staging and
// removing a throwaway file under uploads/, used by the readiness endpoint
// to report 503 without crashing the process on a read-only or full disk.
func (b *Backend) Ready(ctx context.Context) error {
	probe := path.Join(uploadsDir, ".readiness-probe")
	if err := b.fs.MkdirAll(uploadsDir, 0o755); err != nil {
		return errdefs.Newf(errdefs.ErrUnavailable, "storage: data directory not writable: %v", err)
	}
	f, err := b.fs.Create(probe)
	if err != nil {
		return errdefs.Newf(errdefs.ErrUnavailable, "storage: data directory not writable: %v", err)
	}
	xio.CloseAndSkipError(f)
	if err := b.fs.Remove(probe); err != nil {
		return errdefs.Newf(errdefs.ErrUnavailable, "storage: failed to remove readiness probe file: %v", err)
	}
	return nil
}

// WalkBlobs visits every stored blob digest, used by garbage collection and
// repository-scoped reconciliation against the index.
func (b *Backend) WalkBlobs(ctx context.Context, fn func(digest.Digest) error) error {
	exists, err := afero.DirExists(b.fs, blobsDir)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	return afero.Walk(b.fs, blobsDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(p, ".tmp") || strings.Contains(p, ".tmp-") {
			return nil
		}
		algo := digest.Algorithm(path.Base(path.Dir(path.Dir(p))))
		hex := path.Base(p)
		dgst := digest.NewDigestFromEncoded(algo, hex)
		if err := dgst.Validate(); err != nil {
			return nil
		}
		return fn(dgst)
	})
}

func isNotExist(err error) bool {
	return err != nil && afero.IsNotExist(err)
}
