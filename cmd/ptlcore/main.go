// PTL Core - Pick-To-Light controller service
//
// This is the main entry point for the ptlcore binary. The serve command
// runs the service; the other commands manage the topology and the database
// from the shell.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	_ "github.com/nerrad567/ptl-core/migrations"

	"github.com/nerrad567/ptl-core/internal/infrastructure/config"
	"github.com/nerrad567/ptl-core/internal/infrastructure/database"
	"github.com/nerrad567/ptl-core/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Cancel on Ctrl+C and SIGTERM so every command shuts down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// rootCmd builds the command tree.
func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:     "ptlcore",
		Short:   "Pick-To-Light controller service",
		Version: version,
		Long: `ptlcore drives Pick-To-Light controllers over TCP, queues picking
movements on their units and confirms completed picks to the
order-management system.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Secrets such as PTL_EXTERNAL_HTTP_PASSWORD usually live in .env.
			if err := godotenv.Load(); err != nil {
				log.Println("No .env file found")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"config file (default $PTL_CONFIG or "+config.DefaultPath+")")

	root.AddCommand(ServeCmd(&configPath))
	root.AddCommand(DiscoverCmd(&configPath))
	root.AddCommand(ImportCmd(&configPath))
	root.AddCommand(MigrateCmd(&configPath))
	root.AddCommand(VersionCmd())

	return root
}

// loadConfig resolves and loads the configuration file.
func loadConfig(flag string) (*config.Config, string, error) {
	path := config.ResolvePath(flag)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

// openDatabase opens the database and applies pending migrations.
//
// Parameters:
//   - ctx: Context for the migrations
//   - cfg: Database settings
//   - migrate: Whether to apply pending migrations
//
// Returns:
//   - *database.DB: Open database; the caller closes it
//   - error: If opening or migrating fails
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, migrate bool) (*database.DB, error) {
	db, err := database.Open(database.FromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if migrate {
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return db, nil
}

// closeWith closes c and logs a failure.
func closeWith(log *logging.Logger, name string, c interface{ Close() error }) {
	log.Info("closing " + name)
	if err := c.Close(); err != nil {
		log.Error("error closing "+name, "error", err)
	}
}
