// ABOUTME: Entry point for the consoleview cluster management console.
// ABOUTME: Wires store, management API client, descriptors, and views with CLI commands.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/2389/consoleview/internal/admin"
	"github.com/2389/consoleview/internal/api"
	"github.com/2389/consoleview/internal/auth"
	"github.com/2389/consoleview/internal/config"
	"github.com/2389/consoleview/internal/descriptor"
	"github.com/2389/consoleview/internal/logging"
	"github.com/2389/consoleview/internal/mockapi"
	"github.com/2389/consoleview/internal/seed"
	"github.com/2389/consoleview/internal/store"
	"github.com/2389/consoleview/plugins/core"
	_ "github.com/2389/consoleview/plugins/infra" // Register cluster and host descriptors
)

var (
	port      string
	dbPath    string
	metrics   bool
	count     int
	verbose   bool
	logFormat string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "consoleview",
		Short: "consoleview - descriptor-driven cluster management console",
		Long: `consoleview renders list and detail views of infrastructure resources from
declarative descriptors and dispatches their actions to a CloudStack-style
management API.

Features:
  • Views composed from descriptors (Go or YAML with CEL predicates)
  • Actions gated by permissions and record state
  • One in-flight call per action button
  • Embedded mock management API backed by SQLite
  • Request and dispatch logs in the console

Quick Start:
  consoleview seed                      # Generate clusters and hosts
  consoleview serve                     # Start the console on port 9000
  consoleview describe cluster          # Print the composed cluster view
  consoleview invoke cluster deleteCluster --id ID --yes`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := ""
			if verbose {
				level = "debug"
			}
			return setupLogging(level, logFormat)
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log encoding: console or json (default from LOG_ENCODING)")

	// Calculate default database path once (not per-command)
	defaultDBPath := getDefaultDBPath()

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the console HTTP server",
		Long: `Start the console on the specified port.

The server provides:
  • Console UI at http://localhost:PORT/admin
  • JSON views at http://localhost:PORT/api/views
  • Health check at http://localhost:PORT/healthz
  • The mock management API at /client/api when CONSOLE_API_URL is unset

Environment Variables:
  CONSOLE_PORT          Server port (default: 9000)
  CONSOLE_API_URL       Management API endpoint (default: embedded mock)
  CONSOLE_API_KEY       API key for signed requests
  CONSOLE_SECRET_KEY    Secret key for signed requests
  CONSOLE_METRICS       Show capacity metrics columns (true/false)
  CONSOLE_PERMISSIONS   Comma-separated allow-list of API operations
  CONSOLE_DESCRIPTORS   Glob of YAML descriptor files`,
		RunE: runServe,
	}
	serveCmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (default from CONSOLE_PORT or 9000)")
	serveCmd.Flags().StringVarP(&dbPath, "db", "d", defaultDBPath, "Database path")
	serveCmd.Flags().BoolVar(&metrics, "metrics", false, "Show capacity metrics columns")

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the database with clusters and hosts",
		Long: `Seed the database with clusters, hosts, and events for the mock management API.

AI-Powered Generation:
  Set OPENAI_API_KEY to name and size fixtures with a model.
  Falls back to static fixture data if no API key is provided or the output is invalid.

Note: Seed is not idempotent. Use 'consoleview reset' to clear data before reseeding.`,
		RunE: runSeed,
		Args: cobra.NoArgs,
	}
	seedCmd.Flags().StringVarP(&dbPath, "db", "d", defaultDBPath, "Database path")
	seedCmd.Flags().IntVarP(&count, "count", "n", 6, "Number of clusters to generate")

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the database (wipe and reseed)",
		Long: `Delete the database file and create a fresh one with new fixture data.

Warning: This permanently deletes all data in the database!`,
		RunE: runReset,
	}
	resetCmd.Flags().StringVarP(&dbPath, "db", "d", defaultDBPath, "Database path")
	resetCmd.Flags().IntVarP(&count, "count", "n", 6, "Number of clusters to generate")

	rootCmd.AddCommand(serveCmd, seedCmd, resetCmd, newDescribeCmd(), newInvokeCmd(defaultDBPath))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(level, encoding string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	opts := logging.Options{Level: cfg.LogLevel, Encoding: cfg.LogEncoding, Verbose: level == "debug"}
	if level != "" {
		opts.Level = level
	}
	if encoding != "" {
		opts.Encoding = encoding
	}
	_, err = logging.Setup(opts)
	return err
}

// validateAndCleanDBPath validates and cleans a database path.
// Handles Unix/Linux, macOS, and Windows paths (including UNC and drive letters).
func validateAndCleanDBPath(path string) (string, error) {
	cleanPath := strings.TrimSpace(path)
	cleanPath = filepath.Clean(cleanPath)

	// Reject empty and root-like paths
	if cleanPath == "" || cleanPath == "." || cleanPath == "/" {
		return "", fmt.Errorf("database path cannot be empty, '.', or '/'")
	}

	// Windows: reject bare drive letters (e.g., "C:", "D:")
	if runtime.GOOS == "windows" && len(cleanPath) == 2 && cleanPath[1] == ':' {
		return "", fmt.Errorf("database path cannot be a bare drive letter")
	}

	if strings.Contains(cleanPath, "..") {
		return "", fmt.Errorf("database path cannot contain '..'")
	}

	badPatterns := []string{
		".git",
		".svn",
		"node_modules",
		".env",
		"credentials",
		"secret",
	}
	lowerPath := strings.ToLower(cleanPath)
	for _, pattern := range badPatterns {
		if strings.Contains(lowerPath, pattern) {
			return "", fmt.Errorf("database path cannot contain '%s' directory", pattern)
		}
	}

	return cleanPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port != "" {
		cfg.Port = port
	}
	if cmd.Flags().Changed("metrics") {
		cfg.Metrics = metrics
	}
	if dbPath, err = validateAndCleanDBPath(dbPath); err != nil {
		return err
	}

	s, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer s.Close()

	handler, err := newServer(cfg, s)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zap.S().Infof("consoleview listening on %s", srv.Addr)
		zap.S().Infof("Database: %s", dbPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newServer builds the console router. Without CONSOLE_API_URL the mock
// management API is mounted on the same router and the console calls it over loopback.
func newServer(cfg *config.Config, s *store.Store) (http.Handler, error) {
	reg, err := loadRegistry(cfg.Descriptors)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(logging.Middleware(s))
	r.Use(auth.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "resources": reg.Names()})
	})

	r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	apiURL := cfg.APIURL
	if apiURL == "" {
		var opts []mockapi.Option
		if cfg.APIKey != "" {
			opts = append(opts, mockapi.WithCredentials(cfg.APIKey, cfg.SecretKey))
		}
		mockapi.New(s, opts...).RegisterRoutes(r)
		apiURL = "http://127.0.0.1:" + cfg.Port + "/client/api"
		zap.S().Infof("No CONSOLE_API_URL set, serving the mock management API at %s", apiURL)
	}

	client := newClient(cfg, apiURL)
	admin.NewHandlers(admin.Config{
		Store:    s,
		Registry: reg,
		API:      client,
		Catalog:  api.NewCatalog(client, cfg.Permissions),
		Flags:    core.Flags{MetricsEnabled: cfg.Metrics},
		Logger:   zap.L().Named("console"),
	}).RegisterRoutes(r)

	return r, nil
}

func newClient(cfg *config.Config, apiURL string) *api.Client {
	return api.NewClient(api.Config{
		BaseURL:   apiURL,
		APIKey:    cfg.APIKey,
		SecretKey: cfg.SecretKey,
		Timeout:   cfg.APITimeout,
	})
}

// loadRegistry copies the built-in descriptors into a fresh registry, adds
// those matched by pattern, and seals it.
func loadRegistry(pattern string) (*core.Registry, error) {
	reg := core.NewRegistry()
	for _, d := range core.Default.All() {
		if err := reg.Register(*d); err != nil {
			return nil, err
		}
	}
	if pattern != "" {
		loader, err := descriptor.NewLoader()
		if err != nil {
			return nil, err
		}
		names, err := loader.LoadGlob(pattern, reg)
		if err != nil {
			return nil, fmt.Errorf("failed to load descriptors: %w", err)
		}
		zap.S().Infof("Loaded %d descriptors from %s", len(names), pattern)
	}
	reg.Seal()
	return reg, nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	var err error
	if dbPath, err = validateAndCleanDBPath(dbPath); err != nil {
		return err
	}

	s, err := store.New(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	return seedData(cmd.Context(), s)
}

func runReset(cmd *cobra.Command, args []string) error {
	var err error
	if dbPath, err = validateAndCleanDBPath(dbPath); err != nil {
		return err
	}

	// Remove existing database - ignore if file doesn't exist
	if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing database: %w", err)
	}

	s, err := store.New(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()

	return seedData(cmd.Context(), s)
}

func seedData(ctx context.Context, s *store.Store) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	zap.S().Info("Seeding database with fixture data...")
	sum, err := seed.Seed(ctx, s, seed.NewGenerator(cfg.OpenAIKey, cfg.OpenAIModel), count)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			zap.S().Warn("Database already contains seed data. Use 'consoleview reset' to clear and reseed.")
		}
		return fmt.Errorf("seed failed after %s: %w", sum, err)
	}
	zap.S().Infof("Seeding complete! Created %s", sum)
	return nil
}

// getDefaultDBPath returns the default database path following XDG Base Directory spec
// Priority: CONSOLE_DB_PATH env var > ./consoleview.db > XDG_DATA_HOME/consoleview/consoleview.db
func getDefaultDBPath() string {
	config.LoadEnvFiles()
	if envPath := os.Getenv("CONSOLE_DB_PATH"); envPath != "" {
		envPath = filepath.Clean(strings.TrimSpace(envPath))
		if envPath == "" || envPath == "." {
			fmt.Fprintln(os.Stderr, "Warning: CONSOLE_DB_PATH is invalid (empty or '.'), using default path")
		} else {
			return envPath
		}
	}

	cwdPath := "./consoleview.db"
	if _, err := os.Stat(cwdPath); err == nil {
		return cwdPath
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil || homeDir == "" || homeDir == "/" {
			fmt.Fprintf(os.Stderr, "Warning: Could not determine valid home directory (%q): %v, using %s\n", homeDir, err, cwdPath)
			return cwdPath
		}

		// Windows: %LOCALAPPDATA% or ~/AppData/Local
		// Unix/Linux/macOS: ~/.local/share (XDG spec)
		if runtime.GOOS == "windows" {
			dataHome = os.Getenv("LOCALAPPDATA")
			if dataHome == "" {
				dataHome = filepath.Join(homeDir, "AppData", "Local")
			}
		} else {
			dataHome = filepath.Join(homeDir, ".local", "share")
		}
	}

	dataDir := filepath.Join(dataHome, "consoleview")
	xdgDBPath := filepath.Join(dataDir, "consoleview.db")

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create data directory %s: %v, using %s\n", dataDir, err, cwdPath)
		return cwdPath
	}

	// Verify we can write to the directory
	testFile := filepath.Join(dataDir, ".write-test")
	f, err := os.Create(testFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Cannot write to data directory %s: %v, using %s\n", dataDir, err, cwdPath)
		return cwdPath
	}
	f.Close()
	os.Remove(testFile)

	return xdgDBPath
}
