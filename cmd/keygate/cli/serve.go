package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/faucetdb/keygate/internal/server"
	"github.com/faucetdb/keygate/internal/service"
)

const banner = `
 _  _________   _____    _  _____ _____
| |/ / ____\ \ / / __ \  / \|_   _| ____|
| ' /|  _|  \ V / |  _/ / _ \ | | |  _|
| . \| |___  | || |_| |/ ___ \| | | |___
|_|\_\_____| |_| \____/_/   \_\_| |_____|
`

type serveOptions struct {
	port          int
	host          string
	dev           bool
	promptMaster  bool
	purgeInterval time.Duration
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the keygate API server",
		Long:  "Start the HTTP server that exposes the API key management endpoints.",
		Example: `  keygate serve
  keygate serve --port 8080 --purge-interval 1h
  KEYGATE_AUTH_MASTER_KEY=secret keygate serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.port, "port", "p", 7700, "HTTP listen port")
	cmd.Flags().StringVar(&opts.host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&opts.dev, "dev", false, "Enable development mode (debug logging)")
	cmd.Flags().BoolVar(&opts.promptMaster, "prompt-master-key", false, "Read the master key from the terminal instead of the config")
	cmd.Flags().DurationVar(&opts.purgeInterval, "purge-interval", 0, "Delete expired keys at this interval (0 disables)")

	return cmd
}

func runServe(cmd *cobra.Command, opts serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = opts.port
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = opts.host
	}
	if opts.promptMaster {
		key, err := promptMasterKey()
		if err != nil {
			return err
		}
		cfg.Auth.MasterKey = key
	}

	shutdownTimeout, err := cfg.Server.ShutdownTimeoutDuration()
	if err != nil {
		return err
	}

	fmt.Print(banner)
	fmt.Println()

	logger := newLogger(os.Stderr, cfg.Logging, opts.dev)

	store, err := openKeyStore(cfg)
	if err != nil {
		return fmt.Errorf("init key store: %w", err)
	}
	defer store.Close()
	logger.Info("key store initialized", "driver", cfg.Store.Driver)

	keys := service.NewKeyService(store, cfg.Auth.MasterKey)
	if !keys.MasterKeyConfigured() {
		logger.Warn("no master key configured - the key API is served without authentication")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	created, err := keys.EnsureDefaultKeys(ctx)
	if err != nil {
		return fmt.Errorf("create default keys: %w", err)
	}
	for _, k := range created {
		logger.Info("default api key created", "description", *k.Description, "key", k.ID)
	}

	if opts.purgeInterval > 0 {
		go purgeExpiredLoop(ctx, keys, opts.purgeInterval, logger)
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.Server.Host
	srvCfg.Port = cfg.Server.Port
	srvCfg.ShutdownTimeout = shutdownTimeout
	srvCfg.CORSOrigins = cfg.Server.CORS.Origins
	srvCfg.RateLimit = cfg.Server.RateLimit
	srvCfg.APIKeyHeader = cfg.Auth.APIKeyHeader

	srv := server.New(srvCfg, store, keys, logger)

	fmt.Printf("→ Keygate %s\n", versionString())
	fmt.Printf("→ Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Keys API:   http://%s:%d/keys\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ OpenAPI:    http://%s:%d/openapi.json\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("→ Health:     http://%s:%d/healthz\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()

	return srv.Run(ctx)
}

// purgeExpiredLoop deletes expired keys every interval until ctx is done.
func purgeExpiredLoop(ctx context.Context, keys *service.KeyService, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := keys.PurgeExpired(ctx)
			if err != nil {
				logger.Error("purge expired keys failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("purged expired keys", "count", n)
			}
		}
	}
}

// promptMasterKey reads the master key from the terminal without echo.
func promptMasterKey() (string, error) {
	if !isTerminal(os.Stdin) {
		return "", fmt.Errorf("--prompt-master-key requires an interactive terminal")
	}
	fmt.Fprint(os.Stderr, "Master key: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read master key: %w", err)
	}
	key := strings.TrimSpace(string(b))
	if key == "" {
		return "", fmt.Errorf("master key cannot be empty")
	}
	return key, nil
}
