package options

import (
	"github.com/urfave/cli/v3"
)

// TrowServerFlagCategory is the category of the trow-registry server flags.
const TrowServerFlagCategory = "[Server]"

// NewTrowServerOptions returns a new *TrowServerOptions with zero values, so
// that an unset flag never overrides whatever config.Load(ConfigFile) (or
// config.Default()) already decided; only a flag the caller actually passes
// takes precedence.
func NewTrowServerOptions() *TrowServerOptions {
	return &TrowServerOptions{}
}

// TrowServerOptions defines the CLI-overridable subset of a registry's
// configuration, layered on top of whatever config.Load(ConfigFile) returns.
type TrowServerOptions struct {
	// ConfigFile is the YAML configuration document (see pkg/trow/config).
	ConfigFile string

	// Host and Port override config.Server when non-zero/non-empty.
	Host string
	Port int64

	// DataDir overrides config.Storage.DataDir when non-empty.
	DataDir string

	// TLSCertFile and TLSKeyFile, if both set, serve over TLS.
	TLSCertFile string
	TLSKeyFile  string

	// ServiceName is handed to the front-end as its service name; defaults
	// to "trow_registry" when empty. No response reports it: the Basic auth
	// challenge uses the fixed realm "trow_registry", and mutated image
	// references use the listen address as host.
	ServiceName string

	// User and Password configure a single HTTP Basic credential pair
	// accepted by the registry; Password is bcrypt-hashed in memory, never
	// persisted. Leave both empty to serve without authentication.
	User     string
	Password string

	// CORSOrigins lists the Access-Control-Allow-Origin values the
	// distribution front-end accepts; empty disables CORS handling.
	CORSOrigins []string

	// DryRun loads and validates configuration, then exits without
	// binding a listener.
	DryRun bool
}

// Flags returns the []cli.Flag related to current options.
func (o *TrowServerOptions) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to the registry's YAML configuration file",
			Sources:     cli.EnvVars("TROW_CONFIG"),
			Destination: &o.ConfigFile,
			Category:    TrowServerFlagCategory,
		},
		&cli.StringFlag{
			Name:        "host",
			Usage:       "address to bind the registry to",
			Sources:     cli.EnvVars("TROW_HOST"),
			Destination: &o.Host,
			Category:    TrowServerFlagCategory,
		},
		&cli.IntFlag{
			Name:        "port",
			Aliases:     []string{"p"},
			Usage:       "port to listen on",
			Sources:     cli.EnvVars("TROW_PORT"),
			Destination: &o.Port,
			Category:    TrowServerFlagCategory,
		},
		&cli.StringFlag{
			Name:        "data-dir",
			Usage:       "directory blobs and metadata are stored under",
			Sources:     cli.EnvVars("TROW_DATA_DIR"),
			Destination: &o.DataDir,
			Category:    TrowServerFlagCategory,
		},
		&cli.StringFlag{
			Name:        "tls-cert",
			Usage:       "TLS certificate file; requires --tls-key",
			Sources:     cli.EnvVars("TROW_TLS_CERT"),
			Destination: &o.TLSCertFile,
			Category:    TrowServerFlagCategory,
		},
		&cli.StringFlag{
			Name:        "tls-key",
			Usage:       "TLS private key file; requires --tls-cert",
			Sources:     cli.EnvVars("TROW_TLS_KEY"),
			Destination: &o.TLSKeyFile,
			Category:    TrowServerFlagCategory,
		},
		&cli.StringFlag{
			Name:        "name",
			Usage:       "service name handed to the registry front-end (not reported in any response)",
			Sources:     cli.EnvVars("TROW_SERVICE_NAME"),
			Destination: &o.ServiceName,
			Category:    TrowServerFlagCategory,
		},
		&cli.StringFlag{
			Name:        "user",
			Usage:       "single HTTP Basic username accepted by the registry",
			Sources:     cli.EnvVars("TROW_USER"),
			Destination: &o.User,
			Category:    TrowServerFlagCategory,
		},
		&cli.StringFlag{
			Name:        "password",
			Usage:       "single HTTP Basic password accepted by the registry",
			Sources:     cli.EnvVars("TROW_PASSWORD"),
			Destination: &o.Password,
			Category:    TrowServerFlagCategory,
		},
		&cli.StringSliceFlag{
			Name:        "cors-origin",
			Usage:       "origin allowed to make cross-origin requests; repeatable",
			Sources:     cli.EnvVars("TROW_CORS_ORIGINS"),
			Destination: &o.CORSOrigins,
			Category:    TrowServerFlagCategory,
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "validate configuration and exit without serving",
			Sources:     cli.EnvVars("TROW_DRY_RUN"),
			Destination: &o.DryRun,
			Category:    TrowServerFlagCategory,
		},
	}
}
