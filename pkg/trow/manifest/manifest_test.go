package manifest_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuxler/ruasec/pkg/errdefs"
	"github.com/wuxler/ruasec/pkg/trow/manifest"
)

const imageManifestJSON = `{
	"schemaVersion": 2,
	"mediaType": "application/vnd.oci.image.manifest.v1+json",
	"config": {"mediaType": "application/vnd.oci.image.config.v1+json", "digest": "sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", "size": 10},
	"layers": [
		{"mediaType": "application/vnd.oci.image.layer.v1.tar+gzip", "digest": "sha256:bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", "size": 20},
		{"mediaType": "application/vnd.oci.image.layer.nondistributable.v1.tar+gzip", "digest": "sha256:cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc", "size": 30}
	],
	"subject": {"mediaType": "application/vnd.oci.image.manifest.v1+json", "digest": "sha256:dddddddddddddddddddddddddddddddddddddddddddddddddddddddddddddd", "size": 40},
	"artifactType": "application/vnd.example.thing",
	"annotations": {"org.example": "value"}
}`

const indexJSON = `{
	"schemaVersion": 2,
	"mediaType": "application/vnd.oci.image.index.v1+json",
	"manifests": [
		{"mediaType": "application/vnd.oci.image.manifest.v1+json", "digest": "sha256:eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee", "size": 50}
	]
}`

const schema1JSON = `{
	"schemaVersion": 1,
	"name": "library/old",
	"tag": "latest",
	"fsLayers": [{"blobSum": "sha256:ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff"}],
	"history": [{"v1Compatibility": "{}"}]
}`

func TestParseImageManifest(t *testing.T) {
	m, err := manifest.Parse("", []byte(imageManifestJSON))
	require.NoError(t, err)
	assert.False(t, m.IsIndex())
	assert.Equal(t, manifest.MediaTypeOCIImageManifest, m.MediaType())
	require.NotNil(t, m.Subject())
	assert.Equal(t, "application/vnd.example.thing", m.ArtifactType())
	assert.Equal(t, "value", m.Annotations()["org.example"])

	digests := m.LocalBlobDigests()
	assert.Len(t, digests, 2, "config plus one distributable layer; non-distributable layer excluded")
	assert.Contains(t, digests, "sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	assert.Contains(t, digests, "sha256:bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	assert.NotContains(t, digests, "sha256:cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc")
}

func TestParseImageIndex(t *testing.T) {
	m, err := manifest.Parse("", []byte(indexJSON))
	require.NoError(t, err)
	assert.True(t, m.IsIndex())
	assert.Nil(t, m.LocalBlobDigests())
	require.Len(t, m.Manifests(), 1)
}

func TestParseDefaultsMissingMediaTypeToOCIImageManifest(t *testing.T) {
	noMediaType := `{"schemaVersion":2,"config":{"mediaType":"application/vnd.oci.image.config.v1+json","digest":"sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa","size":10},"layers":[]}`
	m, err := manifest.Parse("", []byte(noMediaType))
	require.NoError(t, err)
	assert.Equal(t, manifest.MediaTypeOCIImageManifest, m.MediaType())
}

func TestParseRejectsSchema1(t *testing.T) {
	_, err := manifest.Parse("", []byte(schema1JSON))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidParameter))
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	_, err := manifest.Parse("", []byte("not json"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidParameter))
}

func TestParseRejectsEmptyIndex(t *testing.T) {
	empty := `{"schemaVersion":2,"mediaType":"application/vnd.oci.image.index.v1+json","manifests":[]}`
	_, err := manifest.Parse("", []byte(empty))
	require.Error(t, err)
}
