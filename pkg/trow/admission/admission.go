// Package admission implements the Kubernetes ValidatingAdmissionWebhook
// (and optional mutating rewrite) used to enforce which images a cluster may
// run: each container image referenced by a Pod is checked against an
// allow/deny list of reference prefixes, longest match wins.
package admission

import (
	"fmt"
	"strings"

	"github.com/wuxler/ruasec/pkg/trow/registryname"
)

// Decision is "Allow" or "Deny", the two values a policy's Default may take.
type Decision string

const (
	// Allow lets any image through that no deny rule matches more specifically.
	Allow Decision = "Allow"
	// Deny blocks any image that no allow rule matches more specifically.
	Deny Decision = "Deny"
)

// Policy is the image validation configuration: a default decision plus
// allow/deny lists of reference prefixes compared against the image's
// canonical "<host>/<repo><sep><reference>" form.
type Policy struct {
	Default Decision
	Allow   []string
	Deny    []string
}

// Result is the outcome of evaluating a single image reference against a Policy.
type Result struct {
	Allowed bool
	Reason  string
}

// Evaluate decides whether rawImageRef is allowed under policy. Matching is
// longest-prefix-wins over policy.Allow and policy.Deny, applied against the
// canonical form of the parsed reference; an unparseable reference is denied
// outright.
func Evaluate(rawImageRef string, policy Policy) Result {
	ref, err := registryname.Parse(rawImageRef)
	if err != nil {
		return Result{Allowed: false, Reason: "invalid image reference"}
	}
	imageRef := ref.Canonical()

	allowed := policy.Default == Allow
	if policy.Default != Allow && policy.Default != Deny {
		allowed = false
	}

	matchLen := 0
	reason := "image is neither explicitly allowed nor denied (using default behavior)"

	for _, m := range policy.Deny {
		if len(m) > matchLen && strings.HasPrefix(imageRef, m) {
			allowed = false
			matchLen = len(m)
			reason = "image explicitly denied"
		}
	}
	for _, m := range policy.Allow {
		// An allow prefix as long as the current match also wins, so allow
		// beats a deny prefix of equal length.
		if (len(m) > matchLen || (matchLen > 0 && len(m) == matchLen)) && strings.HasPrefix(imageRef, m) {
			allowed = true
			matchLen = len(m)
			reason = "image explicitly allowed"
		}
	}

	return Result{Allowed: allowed, Reason: reason}
}

// ContainerImage names one container's image reference and the JSON Pointer
// path to its "image" field within the admitted Pod, for building a patch.
type ContainerImage struct {
	Image string
	Path  string
}

// EvaluatePod checks every image in images against policy, stopping at (and
// reporting) the first violation. An empty images slice is always allowed.
func EvaluatePod(images []ContainerImage, policy Policy) (bool, string) {
	for _, c := range images {
		res := Evaluate(c.Image, policy)
		if !res.Allowed {
			return false, fmt.Sprintf("%s: %s", c.Image, res.Reason)
		}
	}
	return true, ""
}
