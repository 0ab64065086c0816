package ocispec

import (
	"github.com/opencontainers/go-digest"
	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// Digest returns the digest of manifest content. Docker v2 schema1 (signed
// or not) is rejected by the manifest parser before this is ever reached, so
// unlike older tooling this never has to strip a JWS envelope first.
func Digest(content []byte) (digest.Digest, error) {
	return digest.FromBytes(content), nil
}

// MatchesDigest returns true if the manifest matches expectedDigest.
// Error may be set if this returns false.
func MatchesDigest(content []byte, expectedDigest digest.Digest) (bool, error) {
	// This should eventually support various digest types.
	actualDigest, err := Digest(content)
	if err != nil {
		return false, err
	}
	return expectedDigest == actualDigest, nil
}

// NewDescriptorFromBytes returns a descriptor, given the content and media type.
// If no media type is specified, "application/octet-stream" will be used.
func NewDescriptorFromBytes(mediaType string, content []byte) imgspecv1.Descriptor {
	if mediaType == "" {
		mediaType = DefaultMediaType
	}
	return imgspecv1.Descriptor{
		MediaType: mediaType,
		Digest:    digest.FromBytes(content),
		Size:      int64(len(content)),
	}
}
