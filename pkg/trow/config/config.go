// Package config loads the registry's YAML configuration file: storage
// root, index DSN, registry proxy aliases, image validation policy, and
// logging, matching the teacher's own options-struct pattern but sourced
// from a file instead of CLI flags.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wuxler/ruasec/pkg/errdefs"
	"github.com/wuxler/ruasec/pkg/trow/admission"
	"github.com/wuxler/ruasec/pkg/trow/proxy"
)

// Config is the root configuration document.
type Config struct {
	Server          Server           `yaml:"server"`
	Storage         Storage          `yaml:"storage"`
	Index           Index            `yaml:"index"`
	RegistryProxies RegistryProxies  `yaml:"registry_proxies"`
	ImageValidation *ImageValidation `yaml:"image_validation"`
	Logging         Logging          `yaml:"logging"`
}

// Server holds the listen address for the distribution front-end.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Storage configures the content-addressed filesystem backend.
type Storage struct {
	// DataDir is the root directory blobs and in-progress uploads are
	// written under.
	DataDir string `yaml:"data_dir"`
}

// Index configures the relational metadata store.
type Index struct {
	// Driver names the backing database; "sqlite" is the only one implemented.
	Driver string `yaml:"driver"`
	// DSN is the driver-specific data source, typically a file path.
	DSN string `yaml:"dsn"`
}

// RegistryProxies configures pull-through caching across every proxy alias.
type RegistryProxies struct {
	// Offline serves only already-cached content, skipping all upstream
	// calls; a cache miss is a NotFound rather than an upstream fetch.
	Offline    bool            `yaml:"offline"`
	Registries []RegistryProxy `yaml:"registries"`
}

// RegistryProxy names one upstream registry a "f/<alias>/..." repository
// may resolve to.
type RegistryProxy struct {
	Alias    string `yaml:"alias"`
	Host     string `yaml:"host"`
	Insecure bool   `yaml:"insecure"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ToAliasConfigs converts every configured registry to what proxy.New expects.
func (p RegistryProxies) ToAliasConfigs() []proxy.AliasConfig {
	aliases := make([]proxy.AliasConfig, len(p.Registries))
	for i, r := range p.Registries {
		aliases[i] = r.ToAliasConfig()
	}
	return aliases
}

// ToAliasConfig converts the loaded YAML shape to what the proxy engine consumes.
func (p RegistryProxy) ToAliasConfig() proxy.AliasConfig {
	return proxy.AliasConfig{
		Alias:    p.Alias,
		Host:     p.Host,
		Insecure: p.Insecure,
		Username: p.Username,
		Password: p.Password,
	}
}

// ImageValidation configures the admission controller's allow/deny policy.
type ImageValidation struct {
	Default string   `yaml:"default"`
	Allow   []string `yaml:"allow"`
	Deny    []string `yaml:"deny"`
}

// ToPolicy converts the loaded YAML shape to what the admission package consumes.
func (v ImageValidation) ToPolicy() admission.Policy {
	decision := admission.Deny
	if admission.Decision(v.Default) == admission.Allow {
		decision = admission.Allow
	}
	return admission.Policy{Default: decision, Allow: v.Allow, Deny: v.Deny}
}

// Logging configures the process-wide logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns a Config with the registry's documented defaults: local
// sqlite index, filesystem storage under "./data", no proxies, image
// validation left unset (meaning every image is admitted), info-level text
// logging to stdout.
func Default() Config {
	return Config{
		Server:  Server{Host: "0.0.0.0", Port: 8000},
		Storage: Storage{DataDir: "./data"},
		Index:   Index{Driver: "sqlite", DSN: "./data/trow.db"},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Load reads and parses a YAML configuration file at path, applying
// Default() for any field left unset by the file.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errdefs.Newf(errdefs.ErrInvalidParameter, "config: read %s: %v", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, errdefs.Newf(errdefs.ErrInvalidParameter, "config: parse %s: %v", path, err)
	}
	return cfg, nil
}
