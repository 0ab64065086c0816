package manifest

// Manifest and index media types the registry recognizes on push, mirroring
// the teacher's pkg/ocispec media type constants (copied verbatim since
// these are fixed OCI/Docker spec strings, not business logic).
const (
	MediaTypeOCIImageManifest = "application/vnd.oci.image.manifest.v1+json"
	MediaTypeOCIImageIndex    = "application/vnd.oci.image.index.v1+json"
	MediaTypeOCIImageConfig   = "application/vnd.oci.image.config.v1+json"
	MediaTypeOCIEmptyJSON     = "application/vnd.oci.empty.v1+json"

	MediaTypeDockerManifest     = "application/vnd.docker.distribution.manifest.v2+json"
	MediaTypeDockerManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"
	MediaTypeDockerImageConfig  = "application/vnd.docker.container.image.v1+json"
)

// Layer media types, including the non-distributable/foreign variants that
// LocalBlobDigests excludes from the locally-fetchable blob set.
const (
	MediaTypeOCILayer     = "application/vnd.oci.image.layer.v1.tar"
	MediaTypeOCILayerGzip = "application/vnd.oci.image.layer.v1.tar+gzip"
	MediaTypeOCILayerZstd = "application/vnd.oci.image.layer.v1.tar+zstd"

	MediaTypeOCILayerNonDistributable     = "application/vnd.oci.image.layer.nondistributable.v1.tar"
	MediaTypeOCILayerNonDistributableGzip = "application/vnd.oci.image.layer.nondistributable.v1.tar+gzip"
	MediaTypeOCILayerNonDistributableZstd = "application/vnd.oci.image.layer.nondistributable.v1.tar+zstd"

	MediaTypeDockerLayer           = "application/vnd.docker.image.rootfs.diff.tar"
	MediaTypeDockerLayerGzip       = "application/vnd.docker.image.rootfs.diff.tar.gzip"
	MediaTypeDockerForeignLayer     = "application/vnd.docker.image.rootfs.foreign.diff.tar"
	MediaTypeDockerForeignLayerGzip = "application/vnd.docker.image.rootfs.foreign.diff.tar.gzip"
)

var nonDistributable = map[string]bool{
	MediaTypeOCILayerNonDistributable:     true,
	MediaTypeOCILayerNonDistributableGzip: true,
	MediaTypeOCILayerNonDistributableZstd: true,
	MediaTypeDockerForeignLayer:           true,
	MediaTypeDockerForeignLayerGzip:       true,
}

// IsNonDistributable reports whether mt identifies a layer that must not be
// fetched or served locally; such layers are excluded from
// Manifest.LocalBlobDigests.
func IsNonDistributable(mt string) bool {
	return nonDistributable[mt]
}
