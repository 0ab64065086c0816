package admission_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wuxler/ruasec/pkg/trow/admission"
)

func TestEvaluateLongestPrefixWins(t *testing.T) {
	policy := admission.Policy{
		Default: admission.Deny,
		Allow:   []string{"localhost:8080/", "quay.io/"},
	}

	res := admission.Evaluate("localhost:8080/mydir/myimage:test", policy)
	assert.True(t, res.Allowed)

	res = admission.Evaluate("quay.io:8080/mydir/myimage:test", policy)
	assert.False(t, res.Allowed, "different port means the allow prefix does not match")

	res = admission.Evaluate("quay.io/mydir/myimage:test", policy)
	assert.True(t, res.Allowed)
}

func TestEvaluateDenyListWithDefaultAllow(t *testing.T) {
	policy := admission.Policy{
		Default: admission.Allow,
		Deny:    []string{"docker.io", "toto.land"},
	}

	res := admission.Evaluate("ubuntu", policy)
	assert.False(t, res.Allowed, "ubuntu defaults to docker.io/library/ubuntu, matching the docker.io deny rule")

	res = admission.Evaluate("toto.land/myimage:test", policy)
	assert.False(t, res.Allowed)

	res = admission.Evaluate("quay.io/myimage:test", policy)
	assert.True(t, res.Allowed)

	res = admission.Evaluate("quay.io/myimage@invalid", policy)
	assert.False(t, res.Allowed, "an unparseable reference is always denied")
}

func TestValidateDeniesOnFirstDisallowedImage(t *testing.T) {
	policy := admission.Policy{Default: admission.Deny, Allow: []string{"quay.io/"}}
	pod := admission.Pod{Spec: admission.PodSpec{
		Containers: []admission.Container{{Image: "quay.io/org/app:v1"}, {Image: "docker.io/library/evil:latest"}},
	}}
	raw, err := json.Marshal(pod)
	require.NoError(t, err)

	resp := admission.Validate(admission.AdmissionRequest{UID: "abc", Object: raw}, policy)
	assert.False(t, resp.Allowed)
	require.NotNil(t, resp.Status)
	assert.Contains(t, resp.Status.Message, "evil")
}

func TestValidateAllowsWhenAllImagesPass(t *testing.T) {
	policy := admission.Policy{Default: admission.Deny, Allow: []string{"quay.io/"}}
	pod := admission.Pod{Spec: admission.PodSpec{
		Containers: []admission.Container{{Image: "quay.io/org/app:v1"}},
	}}
	raw, err := json.Marshal(pod)
	require.NoError(t, err)

	resp := admission.Validate(admission.AdmissionRequest{UID: "abc", Object: raw}, policy)
	assert.True(t, resp.Allowed)
	assert.Nil(t, resp.Status)
}

func TestMutateEmitsPatchForRewrittenImages(t *testing.T) {
	policy := admission.Policy{Default: admission.Allow}
	pod := admission.Pod{Spec: admission.PodSpec{
		Containers: []admission.Container{{Image: "f/dockerhub/library/nginx:latest"}},
	}}
	raw, err := json.Marshal(pod)
	require.NoError(t, err)

	resp, err := admission.Mutate(admission.AdmissionRequest{UID: "abc", Object: raw}, policy, func(image string) (string, bool) {
		return "myregistry.local/" + image, true
	})
	require.NoError(t, err)
	assert.True(t, resp.Allowed)
	require.NotNil(t, resp.PatchType)
	assert.Equal(t, "JSONPatch", *resp.PatchType)

	var ops []admission.PatchOperation
	require.NoError(t, json.Unmarshal(resp.Patch, &ops))
	require.Len(t, ops, 1)
	assert.Equal(t, "replace", ops[0].Op)
	assert.Equal(t, "/spec/containers/0/image", ops[0].Path)
	assert.Equal(t, "myregistry.local/f/dockerhub/library/nginx:latest", ops[0].Value)
}

func TestMutateNoPatchWhenNoRewrites(t *testing.T) {
	policy := admission.Policy{Default: admission.Allow}
	pod := admission.Pod{Spec: admission.PodSpec{
		Containers: []admission.Container{{Image: "quay.io/org/app:v1"}},
	}}
	raw, err := json.Marshal(pod)
	require.NoError(t, err)

	resp, err := admission.Mutate(admission.AdmissionRequest{UID: "abc", Object: raw}, policy, func(image string) (string, bool) {
		return image, false
	})
	require.NoError(t, err)
	assert.True(t, resp.Allowed)
	assert.Nil(t, resp.PatchType)
}
