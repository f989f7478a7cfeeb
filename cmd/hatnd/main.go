// Command hatnd is hatn's process entrypoint: it loads the config tree,
// bootstraps logging, opens the storage engine, serves the metrics
// endpoint and the bridge dispatcher over plain HTTP on 127.0.0.1:9090,
// starts the mTLS RPC server (its dispatcher has no handlers registered
// here), and shuts down on SIGINT/SIGTERM.
//
// Structure grounded on cuemby-warren/cmd/warren/main.go's cobra
// rootCmd + cobra.OnInitialize(initLogging) + persistent-flags bootstrap
// and its serve command's "start subsystems, wait on sigCh/errCh, stop
// subsystems in reverse order" shutdown shape.
package main

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/evgeniums/hatn-sub006/pkg/bridge"
	"github.com/evgeniums/hatn-sub006/pkg/config"
	"github.com/evgeniums/hatn-sub006/pkg/db"
	"github.com/evgeniums/hatn-sub006/pkg/log"
	"github.com/evgeniums/hatn-sub006/pkg/metrics"
	"github.com/evgeniums/hatn-sub006/pkg/rpc"
	"github.com/evgeniums/hatn-sub006/pkg/taskctx"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(config.ExitUsage)
	}
}

var rootCmd = &cobra.Command{
	Use:     "hatnd",
	Short:   "hatnd runs the storage engine and RPC dispatcher as a standalone server",
	Version: Version,
}

var configPath string

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the config tree (falls back to $HATN_CONFIG_DIR/config.json)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "start the storage engine and RPC server",
	RunE:  runServe,
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(config.ExitConfig)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})

	store, err := db.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	store.StartTTLSweeper(30 * time.Second)
	defer store.Close()

	envs := bridge.NewEnvRegistry(&bridge.Env{Name: "default", Value: store})
	facade := bridge.New(envs)
	registerPingService(facade)

	dispatcher := rpc.NewDispatcher()

	go func() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/bridge/", bridgeHTTPHandler(facade))
		if err := http.ListenAndServe("127.0.0.1:9090", nil); err != nil {
			log.Logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	tlsMaterial, err := loadTLSMaterial(cfg.RPC)
	if err != nil {
		return fmt.Errorf("load tls material: %w", err)
	}

	server, err := rpc.Listen(cfg.RPC.ListenAddr, tlsMaterial, dispatcher)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(); err != nil {
			errCh <- err
		}
	}()
	log.Logger.Info().Str("addr", cfg.RPC.ListenAddr).Msg("hatnd listening")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Logger.Info().Msg("shutting down")
	case err := <-errCh:
		log.Logger.Error().Err(err).Msg("server error")
	}

	return server.Close()
}

func loadTLSMaterial(cfg config.RPCConfig) (rpc.TLSMaterial, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return rpc.TLSMaterial{}, fmt.Errorf("load server certificate: %w", err)
	}
	caBytes, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return rpc.TLSMaterial{}, fmt.Errorf("read ca file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return rpc.TLSMaterial{}, fmt.Errorf("no valid CA certificates found in %s", cfg.CAFile)
	}
	return rpc.TLSMaterial{Cert: cert, CAPool: pool}, nil
}

type pingRequest struct{}

type pingResponse struct {
	Status string `json:"status"`
	Env    string `json:"env"`
}

// registerPingService wires a trivial health-check service into the
// bridge, exercising the (service, method) registry and JSON builder
// registry end to end from the process entrypoint.
func registerPingService(facade *bridge.Bridge) {
	facade.RegisterBuilder("ping_request", func(data []byte) (any, error) {
		return pingRequest{}, nil
	})
	facade.RegisterHandler("system", "Ping", func(ctx *taskctx.Context, request any) (any, error) {
		env := taskctx.MustGet[*bridge.EnvSubContext](ctx)
		return pingResponse{Status: "ok", Env: env.Env.Name}, nil
	})
}

// bridgeHTTPHandler exposes the bridge facade over HTTP:
// POST /bridge/<service>/<method>?type=<messageType>&env=<envName>
func bridgeHTTPHandler(facade *bridge.Bridge) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/bridge/"), "/", 2)
		if len(parts) != 2 {
			http.Error(w, "expected /bridge/<service>/<method>", http.StatusBadRequest)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		messageType := r.URL.Query().Get("type")
		envName := r.URL.Query().Get("env")

		out, err := facade.Exec(parts[0], parts[1], messageType, envName, body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(out)
	})
}
