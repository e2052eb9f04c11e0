package cli

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kiwi-labs/kiwi/internal/branding"
	"github.com/kiwi-labs/kiwi/internal/logging"
	"github.com/kiwi-labs/kiwi/internal/registry"
	"github.com/kiwi-labs/kiwi/internal/registrydb"
	"github.com/kiwi-labs/kiwi/internal/userdata"
)

const registryDBName = "registry.db"

var (
	serveAddr  string
	serveDB    string
	serveToken string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a directive registry backed by SQLite",
	Long: `Serve the registry HTTP API from a local SQLite database. Writes
(publish, delete) require --token when one is set; reads are open.
Prometheus metrics are exposed on /metrics.

  kiwi serve --addr :8080 --token "$KIWI_SERVER_TOKEN"`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDB, "db", "", "SQLite database path (default ~/.context-kiwi/registry.db)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "Bearer token required for writes (or "+branding.EnvVar("SERVER_TOKEN")+")")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log, err := logging.NewServer(settings.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	path := serveDB
	if path == "" {
		home, err := userdata.GetHomeRoot()
		if err != nil {
			return err
		}
		path = filepath.Join(home, registryDBName)
	}
	token := serveToken
	if token == "" {
		token = os.Getenv(branding.EnvVar("SERVER_TOKEN"))
	}

	db, err := registrydb.Open(path, registrydb.WithLogger(log))
	if err != nil {
		return err
	}
	defer db.Close()

	if token == "" {
		log.Warn("no write token configured; publish and delete are open")
	}
	srv := registry.NewServer(db,
		registry.WithAuthToken(token),
		registry.WithServerLogger(log),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Info("registry listening", zap.String("addr", serveAddr), zap.String("db", path))
	return srv.ListenAndServe(ctx, serveAddr)
}
