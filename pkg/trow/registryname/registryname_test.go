package registryname_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuxler/ruasec/pkg/errdefs"
	"github.com/wuxler/ruasec/pkg/trow/registryname"
)

func TestParseDefaultsHostAndLibraryPrefix(t *testing.T) {
	ref, err := registryname.Parse("nginx")
	require.NoError(t, err)
	assert.Equal(t, "docker.io", ref.Host)
	assert.Equal(t, "library/nginx", ref.Repository)
	assert.Equal(t, "latest", ref.Tag)
	assert.False(t, ref.IsDigested())
	assert.Equal(t, "docker.io/library/nginx:latest", ref.Canonical())
}

func TestParseKeepsMultiSegmentRepoUnprefixed(t *testing.T) {
	ref, err := registryname.Parse("myorg/app:v1")
	require.NoError(t, err)
	assert.Equal(t, "docker.io", ref.Host)
	assert.Equal(t, "myorg/app", ref.Repository)
	assert.Equal(t, "v1", ref.Tag)
}

func TestParseExplicitHost(t *testing.T) {
	ref, err := registryname.Parse("registry.example.com:5000/team/app:v2")
	require.NoError(t, err)
	assert.Equal(t, "registry.example.com:5000", ref.Host)
	assert.Equal(t, "team/app", ref.Repository)
	assert.Equal(t, "v2", ref.Tag)
	assert.Equal(t, "registry.example.com:5000/team/app:v2", ref.Canonical())
}

func TestParseNormalizesLegacyDockerHost(t *testing.T) {
	ref, err := registryname.Parse("index.docker.io/library/busybox:latest")
	require.NoError(t, err)
	assert.Equal(t, "docker.io", ref.Host)
}

func TestParseDigestedReference(t *testing.T) {
	dgst := "sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	ref, err := registryname.Parse("ghcr.io/team/app@" + dgst)
	require.NoError(t, err)
	assert.True(t, ref.IsDigested())
	assert.Equal(t, dgst, ref.Digest.String())
	assert.Equal(t, "ghcr.io/team/app@"+dgst, ref.Canonical())
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := registryname.Parse("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidParameter))
}

func TestParseRejectsInvalidRepo(t *testing.T) {
	_, err := registryname.Parse("Not_Valid/UPPER")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errdefs.ErrInvalidParameter))
}

func TestParseLocalhostTreatedAsHost(t *testing.T) {
	ref, err := registryname.Parse("localhost:5000/app:dev")
	require.NoError(t, err)
	assert.Equal(t, "localhost:5000", ref.Host)
	assert.Equal(t, "app", ref.Repository)
}
