// Package trowserver implements the "serve" command that starts the
// distribution registry's HTTP front-end, generalizing the teacher's
// pkg/commands/server stub (one /ping route) into the full wiring of
// storage, index, proxy, admission policy, and CORS/basic-auth middleware.
package trowserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"
	"golang.org/x/crypto/bcrypt"

	"github.com/wuxler/ruasec/pkg/cmdhelper"
	"github.com/wuxler/ruasec/pkg/commands/internal/options"
	"github.com/wuxler/ruasec/pkg/errdefs"
	"github.com/wuxler/ruasec/pkg/trow/admission"
	"github.com/wuxler/ruasec/pkg/trow/config"
	"github.com/wuxler/ruasec/pkg/trow/frontend"
	"github.com/wuxler/ruasec/pkg/trow/index"
	"github.com/wuxler/ruasec/pkg/trow/registry"
	"github.com/wuxler/ruasec/pkg/trow/storage"
	"github.com/wuxler/ruasec/pkg/xlog"
)

// New creates a new Command with default values.
func New() *Command {
	return NewCommand()
}

// NewCommand returns a command with default values.
func NewCommand() *Command {
	return &Command{
		ServerOptions: options.NewTrowServerOptions(),
	}
}

// Command is the "serve" command that starts the registry.
type Command struct {
	ServerOptions *options.TrowServerOptions
}

// ToCLI transforms to a *cli.Command.
func (c *Command) ToCLI() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the OCI distribution registry server",
		UsageText: `trow-registry serve [OPTIONS]

# Start with a configuration file
$ trow-registry serve --config trow.yaml

# Override the listen address
$ trow-registry serve --config trow.yaml --host 0.0.0.0 --port 8000
`,
		Flags:  c.Flags(),
		Action: c.Run,
	}
}

// Flags returns the []cli.Flag related to the current command.
func (c *Command) Flags() []cli.Flag {
	return c.ServerOptions.Flags()
}

// Run builds the registry from configuration and serves it until the
// command's context is canceled, mirroring the teacher's server command's
// goroutine-listen / context-done / timed-shutdown lifecycle.
func (c *Command) Run(ctx context.Context, cmd *cli.Command) error {
	o := c.ServerOptions

	cfg := config.Default()
	if o.ConfigFile != "" {
		loaded, err := config.Load(o.ConfigFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	applyOverrides(&cfg, o)

	if err := configureLogging(cfg.Logging); err != nil {
		return err
	}

	reg, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	serviceName := o.ServiceName
	if serviceName == "" {
		serviceName = "trow_registry"
	}
	srv := frontend.New(reg, serviceName, address)
	var handler http.Handler = srv.Handler()
	if len(o.CORSOrigins) > 0 {
		handler = withCORS(handler, o.CORSOrigins)
	}
	if o.User != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(o.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		handler = withBasicAuth(handler, o.User, hashed)
	}

	if o.DryRun {
		cmdhelper.Fprintf(cmd.Writer, "configuration OK, would listen on %s\n", address)
		return nil
	}

	xlog.C(ctx).Infof("Starting registry server %s", address)

	httpSrv := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if o.TLSCertFile != "" && o.TLSKeyFile != "" {
			err = httpSrv.ListenAndServeTLS(o.TLSCertFile, o.TLSKeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	scheme := "http"
	if o.TLSCertFile != "" && o.TLSKeyFile != "" {
		scheme = "https"
	}
	cmdhelper.Fprintf(cmd.Writer, "Registry server started at %s://%s\n", scheme, address)
	cmdhelper.Fprintf(cmd.Writer, "Press Ctrl+C to stop the server\n")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			xlog.C(ctx).Error("Server error", "error", err)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		xlog.C(ctx).Error("Server shutdown failed", "error", err)
		return err
	}

	xlog.C(ctx).Info("Server stopped")
	return nil
}

func applyOverrides(cfg *config.Config, o *options.TrowServerOptions) {
	if o.Host != "" {
		cfg.Server.Host = o.Host
	}
	if o.Port != 0 {
		cfg.Server.Port = int(o.Port)
	}
	if o.DataDir != "" {
		cfg.Storage.DataDir = o.DataDir
	}
}

func buildRegistry(ctx context.Context, cfg config.Config) (*registry.Registry, error) {
	fs := afero.NewOsFs()
	if err := fs.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, err
	}
	backend := storage.New(afero.NewBasePathFs(fs, cfg.Storage.DataDir), storage.RealClock{})

	if dir := filepath.Dir(cfg.Index.DSN); dir != "." {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	idx, err := index.Open(ctx, cfg.Index.DSN, index.RealClock{})
	if err != nil {
		return nil, err
	}

	policy := admission.Policy{Default: admission.Allow}
	if cfg.ImageValidation != nil {
		policy = cfg.ImageValidation.ToPolicy()
	}

	reg := registry.New(backend, idx, cfg.RegistryProxies.ToAliasConfigs(), policy)
	reg.Proxy.Offline = cfg.RegistryProxies.Offline
	return reg, nil
}

func configureLogging(cfg config.Logging) error {
	logCfg := xlog.NewConfig()
	if cfg.Level != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(cfg.Level)); err != nil {
			return errdefs.Newf(errdefs.ErrInvalidParameter, "logging: invalid level %q: %v", cfg.Level, err)
		}
		logCfg.Level = lvl
	}
	if cfg.Format != "" {
		logCfg.StdFormat = cfg.Format
	}
	logCfg.Path = cfg.File
	xlog.SetDefault(xlog.New(logCfg))
	return nil
}

// withCORS wraps handler with a permissive-by-allowlist CORS responder; no
// CORS library appears anywhere in the example pack, so this is the one
// piece of ambient HTTP plumbing built directly on net/http rather than a
// third-party middleware.
func withCORS(handler http.Handler, origins []string) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowed[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, PUT, PATCH, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Content-Range, Content-Length")
			w.Header().Set("Access-Control-Expose-Headers", "Docker-Content-Digest, Location, Range, Content-Length")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

// withBasicAuth requires HTTP Basic credentials matching user and a bcrypt
// hash of the configured password before any request reaches handler.
func withBasicAuth(handler http.Handler, user string, hashed []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, ok := r.BasicAuth()
		if !ok || gotUser != user || bcrypt.CompareHashAndPassword(hashed, []byte(gotPass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="trow_registry"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
