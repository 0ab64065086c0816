// Package manifest parses and inspects OCI/Docker manifests and image
// indexes, the shapes the registry stores and serves. Unlike a generic OCI
// client, the registry never needs to produce a manifest — only to parse one
// well enough to extract the local blob set, the subject/artifactType used by
// the referrers API, and whether it is well-formed at all.
package manifest

import (
	"encoding/json"
	"mime"
	"sync"

	imgspecv1 "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/samber/lo"

	"github.com/wuxler/ruasec/pkg/errdefs"
)

// Manifest is the parsed view of either an image manifest or an image index.
type Manifest interface {
	// MediaType returns the manifest's own media type.
	MediaType() string
	// IsIndex reports whether this is a multi-platform image index.
	IsIndex() bool
	// Config returns the config descriptor, or the zero value for an index.
	Config() imgspecv1.Descriptor
	// Layers returns the layer descriptors in order, or nil for an index.
	Layers() []imgspecv1.Descriptor
	// Manifests returns child manifest descriptors, or nil for an image manifest.
	Manifests() []imgspecv1.Descriptor
	// Subject returns the OCI 1.1 subject descriptor, if any.
	Subject() *imgspecv1.Descriptor
	// ArtifactType returns the OCI 1.1 artifact type, if any.
	ArtifactType() string
	// Annotations returns the manifest's top-level annotations.
	Annotations() map[string]string
	// LocalBlobDigests returns every distributable blob digest this manifest
	// directly references (config plus distributable layers). An image index
	// references further manifests, not blobs, so it returns nil.
	LocalBlobDigests() []string
}

// raw is the JSON shape shared by image manifests and image indexes; which
// fields are populated is what tells them apart.
type raw struct {
	SchemaVersion int                       `json:"schemaVersion"`
	MediaType     string                    `json:"mediaType,omitempty"`
	Config        *imgspecv1.Descriptor     `json:"config,omitempty"`
	Layers        []imgspecv1.Descriptor    `json:"layers,omitempty"`
	Manifests     []imgspecv1.Descriptor    `json:"manifests,omitempty"`
	Subject       *imgspecv1.Descriptor     `json:"subject,omitempty"`
	ArtifactType  string                    `json:"artifactType,omitempty"`
	Annotations   map[string]string         `json:"annotations,omitempty"`
	FSLayers      []json.RawMessage         `json:"fsLayers,omitempty"`
	History       []json.RawMessage         `json:"history,omitempty"`
	Signatures    []json.RawMessage         `json:"signatures,omitempty"`
}

type parsed struct {
	mediaType string
	r         raw
}

func (p *parsed) MediaType() string            { return p.mediaType }
func (p *parsed) IsIndex() bool                 { return len(p.r.Manifests) > 0 || p.mediaType == MediaTypeOCIImageIndex || p.mediaType == MediaTypeDockerManifestList }
func (p *parsed) Manifests() []imgspecv1.Descriptor { return p.r.Manifests }
func (p *parsed) Subject() *imgspecv1.Descriptor    { return p.r.Subject }
func (p *parsed) ArtifactType() string              { return p.r.ArtifactType }
func (p *parsed) Annotations() map[string]string    { return p.r.Annotations }

func (p *parsed) Config() imgspecv1.Descriptor {
	if p.r.Config == nil {
		return imgspecv1.Descriptor{}
	}
	return *p.r.Config
}

func (p *parsed) Layers() []imgspecv1.Descriptor {
	if p.IsIndex() {
		return nil
	}
	return p.r.Layers
}

// LocalBlobDigests returns the config digest plus every distributable layer
// digest, excluding non-distributable/foreign layers, per the registry's
// contract that those are never expected to be fetched or served locally.
func (p *parsed) LocalBlobDigests() []string {
	if p.IsIndex() {
		return nil
	}
	digests := make([]string, 0, len(p.r.Layers)+1)
	if p.r.Config != nil {
		digests = append(digests, p.r.Config.Digest.String())
	}
	distributable := lo.Filter(p.r.Layers, func(d imgspecv1.Descriptor, _ int) bool {
		return !IsNonDistributable(d.MediaType)
	})
	for _, d := range distributable {
		digests = append(digests, d.Digest.String())
	}
	return digests
}

// Parse parses manifest content. A declared mediaType, when present in the
// Content-Type header, is preferred; otherwise the top-level JSON is
// inspected to classify the manifest, defaulting a missing mediaType field to
// the OCI v1 image manifest as required by the protocol.
//
// Docker v2 schema1 manifests (recognized by the legacy fsLayers/history/
// signatures fields) are rejected outright with ErrInvalidManifest: the
// registry does not parse, store, or serve schema1 content.
func Parse(declaredMediaType string, content []byte) (Manifest, error) {
	if declaredMediaType != "" {
		if mt, _, err := mime.ParseMediaType(declaredMediaType); err == nil {
			declaredMediaType = mt
		}
	}

	var r raw
	if err := json.Unmarshal(content, &r); err != nil {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "manifest: invalid json: %v", err)
	}

	if len(r.FSLayers) > 0 || len(r.History) > 0 || len(r.Signatures) > 0 || r.SchemaVersion == 1 {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "manifest: docker schema1 manifests are not supported")
	}

	mt := r.MediaType
	if mt == "" {
		mt = declaredMediaType
	}
	if mt == "" {
		switch {
		case len(r.Manifests) > 0:
			mt = MediaTypeOCIImageIndex
		default:
			mt = MediaTypeOCIImageManifest
		}
	}

	if !IsRecognized(mt) {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "manifest: unrecognized media type %q", mt)
	}

	isIndexType := mt == MediaTypeOCIImageIndex || mt == MediaTypeDockerManifestList
	if isIndexType && len(r.Manifests) == 0 {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "manifest: index %q has no manifests", mt)
	}
	if !isIndexType && r.Config == nil {
		return nil, errdefs.Newf(errdefs.ErrInvalidParameter, "manifest: image manifest %q missing config", mt)
	}

	return &parsed{mediaType: mt, r: r}, nil
}

var (
	once          sync.Once
	recognizedSet map[string]bool
)

func recognized() map[string]bool {
	once.Do(func() {
		recognizedSet = map[string]bool{
			MediaTypeOCIImageManifest:   true,
			MediaTypeOCIImageIndex:      true,
			MediaTypeDockerManifest:     true,
			MediaTypeDockerManifestList: true,
		}
	})
	return recognizedSet
}

// IsRecognized reports whether mt is a manifest media type the registry
// accepts on push.
func IsRecognized(mt string) bool {
	return recognized()[mt]
}
