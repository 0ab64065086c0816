// Package registryname parses image references into host/repository/
// tag-or-digest components and renders their canonical form, the grammar
// shared by the Proxy Engine and the Admission Controller.
//
// Adapted from the teacher's pkg/image/name (reference.go, registry.go):
// same regex-driven parse and Docker Hub normalization rules, trimmed to
// exactly what the registry's server-side components need — a single
// canonical Reference value rather than a family of tagged/digested/
// registry types aimed at a general-purpose client library.
package registryname

import (
	"net"
	"regexp"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/wuxler/ruasec/pkg/errdefs"
)

const (
	// DefaultHost is substituted when a reference names no registry host.
	DefaultHost = "docker.io"
	// dockerLegacyHost is rewritten to DefaultHost, matching Docker Hub's
	// historical alternate hostnames.
	dockerLegacyHost = "index.docker.io"
	// legacyDefaultRepoPrefix is prepended to single-segment repository
	// names resolving against the default host, e.g. "nginx" -> "library/nginx".
	legacyDefaultRepoPrefix = "library/"
)

var (
	hostComponent = `(?:[a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9-]*[a-zA-Z0-9])`
	domainName    = hostComponent + `(?:\.` + hostComponent + `)*(?::[0-9]+)?`
	pathComponent = `[a-z0-9]+(?:(?:(?:[._]|__|[-]*)[a-z0-9]+)*)`
	pathName      = pathComponent + `(?:/` + pathComponent + `)*`
	tagPattern    = `[\w][\w.-]{0,127}`

	// referenceRegexp captures: 1=host(optional), 2=path, 3=tag(optional), 4=digest(optional).
	referenceRegexp = regexp.MustCompile(
		`^(?:(` + domainName + `)/)?(` + pathName + `)` +
			`(?::(` + tagPattern + `))?` +
			`(?:@([a-zA-Z0-9]+(?:[+._-][a-zA-Z0-9]+)*:[0-9a-fA-F]{32,}))?$`,
	)

	repositoryRegexp = regexp.MustCompile(`^` + pathName + `$`)
)

// ValidRepository reports whether name is a well-formed repository path on
// its own (no host, tag, or digest component), the grammar the distribution
// front-end validates a request's "{name}" path segment against.
func ValidRepository(name string) bool {
	return repositoryRegexp.MatchString(name)
}

// Reference is a fully parsed and normalized image reference.
type Reference struct {
	// Host is the registry hostname, defaulted to DefaultHost.
	Host string
	// Repository is the repository path, with the Docker Hub "library/"
	// prefix applied for single-segment names against the default host.
	Repository string
	// Tag is the tag, if the reference was tag-qualified.
	Tag string
	// Digest is the digest, if the reference was digest-qualified.
	Digest digest.Digest
}

// IsDigested reports whether the reference names a digest rather than a tag.
func (r Reference) IsDigested() bool {
	return r.Digest != ""
}

// Canonical renders "<host>/<repo><sep><reference>" where sep is "@" for a
// digest reference and ":" for a tag reference, the exact form the
// Admission Controller's prefix matcher compares against policy rules.
func (r Reference) Canonical() string {
	var b strings.Builder
	b.WriteString(r.Host)
	b.WriteByte('/')
	b.WriteString(r.Repository)
	if r.IsDigested() {
		b.WriteByte('@')
		b.WriteString(r.Digest.String())
	} else {
		b.WriteByte(':')
		b.WriteString(r.Tag)
	}
	return b.String()
}

// Parse parses s into a Reference, applying Docker Hub's default-host and
// library-prefix normalization. A reference with neither tag nor digest
// defaults its tag to "latest".
func Parse(s string) (Reference, error) {
	if s == "" {
		return Reference{}, errdefs.Newf(errdefs.ErrInvalidParameter, "empty image reference")
	}

	host, rest := splitHost(s)
	matches := referenceRegexp.FindStringSubmatch(rest)
	if matches == nil {
		return Reference{}, errdefs.Newf(errdefs.ErrInvalidParameter, "invalid image reference %q", s)
	}

	repo := matches[2]
	tag := matches[3]
	dgstStr := matches[4]

	var dgst digest.Digest
	if dgstStr != "" {
		parsed, err := digest.Parse(dgstStr)
		if err != nil {
			return Reference{}, errdefs.Newf(errdefs.ErrInvalidParameter, "invalid digest in reference %q: %v", s, err)
		}
		dgst = parsed
	}

	if host == "" {
		host = DefaultHost
	}
	if host == dockerLegacyHost {
		host = DefaultHost
	}
	if host == DefaultHost && !strings.Contains(repo, "/") {
		repo = legacyDefaultRepoPrefix + repo
	}

	if tag == "" && dgst == "" {
		tag = "latest"
	}

	return Reference{Host: host, Repository: repo, Tag: tag, Digest: dgst}, nil
}

// splitHost separates a leading "<host>/" component from the rest of a
// reference string, distinguishing a registry host from the first path
// segment by requiring a "." or ":" in the candidate, or the literal
// "localhost", matching the grammar docker/distribution uses.
func splitHost(s string) (host, rest string) {
	i := strings.IndexByte(s, '/')
	if i < 0 {
		return "", s
	}
	candidate := s[:i]
	if candidate == "localhost" || strings.ContainsAny(candidate, ".:") || isIPv6Host(candidate) {
		return candidate, s[i+1:]
	}
	return "", s
}

func isIPv6Host(s string) bool {
	host := s
	if strings.HasPrefix(host, "[") {
		if j := strings.IndexByte(host, ']'); j > 0 {
			host = host[1:j]
		}
	}
	return net.ParseIP(host) != nil && strings.Contains(host, ":")
}
