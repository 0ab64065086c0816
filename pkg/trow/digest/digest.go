// Package digest provides helpers for computing and validating content
// digests on top of [github.com/opencontainers/go-digest].
package digest

import (
	"fmt"
	"hash"
	"io"

	"github.com/opencontainers/go-digest"

	"github.com/wuxler/ruasec/pkg/errdefs"
)

// DefaultAlgorithm is the digest algorithm used when none is requested
// explicitly, matching the OCI distribution spec's mandatory algorithm.
const DefaultAlgorithm = digest.SHA256

// SupportedAlgorithms lists the algorithms the engine will accept on push
// and is willing to compute on behalf of a caller.
var SupportedAlgorithms = []digest.Algorithm{digest.SHA256, digest.SHA512}

// IsSupported reports whether algo is one the engine accepts.
func IsSupported(algo digest.Algorithm) bool {
	for _, a := range SupportedAlgorithms {
		if a == algo {
			return true
		}
	}
	return false
}

// Parse validates s as a well-formed digest of a supported algorithm.
func Parse(s string) (digest.Digest, error) {
	dgst, err := digest.Parse(s)
	if err != nil {
		return "", errdefs.Newf(errdefs.ErrInvalidParameter, "invalid digest %q: %v", s, err)
	}
	if !IsSupported(dgst.Algorithm()) {
		return "", errdefs.Newf(errdefs.ErrUnsupported, "unsupported digest algorithm %q", dgst.Algorithm())
	}
	return dgst, nil
}

// Verifier wraps a running hash for one algorithm and reports whether the
// accumulated sum matches an expected digest.
type Verifier struct {
	algo   digest.Algorithm
	hasher hash.Hash
	size   int64
}

// NewVerifier returns a Verifier for algo. Panics if algo is not registered
// with go-digest; callers should validate with IsSupported first.
func NewVerifier(algo digest.Algorithm) *Verifier {
	return &Verifier{algo: algo, hasher: algo.Hash()}
}

// Write implements io.Writer, feeding data into the running hash.
func (v *Verifier) Write(p []byte) (int, error) {
	n, err := v.hasher.Write(p)
	v.size += int64(n)
	return n, err
}

// Size returns the number of bytes written so far.
func (v *Verifier) Size() int64 {
	return v.size
}

// Digest returns the digest of everything written so far.
func (v *Verifier) Digest() digest.Digest {
	return digest.NewDigest(v.algo, v.hasher)
}

// Verify compares the accumulated digest and size against expected,
// returning an error describing the mismatch if any.
func (v *Verifier) Verify(expected digest.Digest, expectedSize int64) error {
	if expectedSize >= 0 && v.size != expectedSize {
		return errdefs.Newf(errdefs.ErrInvalidParameter, "size mismatch: got %d, want %d", v.size, expectedSize)
	}
	got := v.Digest()
	if got != expected {
		return errdefs.Newf(errdefs.ErrInvalidParameter, "digest mismatch: got %s, want %s", got, expected)
	}
	return nil
}

// TeeVerify copies from r into w while feeding a Verifier, returning the
// total bytes copied.
func TeeVerify(w io.Writer, r io.Reader, v *Verifier) (int64, error) {
	return io.Copy(io.MultiWriter(w, v), r)
}

// FromReader consumes r fully and returns its digest for algo.
func FromReader(algo digest.Algorithm, r io.Reader) (digest.Digest, int64, error) {
	v := NewVerifier(algo)
	n, err := io.Copy(v, r)
	if err != nil {
		return "", n, fmt.Errorf("digest: %w", err)
	}
	return v.Digest(), n, nil
}
