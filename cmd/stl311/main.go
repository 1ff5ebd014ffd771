package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/stlgis/stl311/internal/config"
	"github.com/stlgis/stl311/internal/pipeline"
	"github.com/stlgis/stl311/internal/server"
	"github.com/stlgis/stl311/internal/store"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "stl311",
	Short:   "St. Louis 311 service-request integration",
	Long:    "stl311 fetches 311 service requests from the St. Louis Open311 API, normalizes them, and upserts them into a local spatial store, optionally publishing the result as a hosted feature service.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
}

func openStore() (*store.DB, error) {
	db, err := store.Open(cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return db, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("stl311", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/stl311/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the API key variable and publish target.")
		return nil
	},
}

// --- sync command ---

var (
	daysBack     int
	statusFilter string
	doPublish    bool
	serviceName  string
	updateMethod string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch, process and reconcile service requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		effectiveDays := daysBack
		if effectiveDays <= 0 {
			effectiveDays = cfg.Defaults.DaysBack
		}
		effectiveStatus := statusFilter
		if effectiveStatus == "" {
			effectiveStatus = cfg.Defaults.Status
		}

		endDate := time.Now()
		startDate := endDate.AddDate(0, 0, -effectiveDays)

		fmt.Printf("Fetching data from %s to %s (status: %s)\n",
			startDate.Format("2006-01-02"), endDate.Format("2006-01-02"), effectiveStatus)

		publishing := doPublish || cfg.Publish.Enabled
		if publishing {
			name := serviceName
			if name == "" {
				name = cfg.Publish.ServiceName
			}
			fmt.Printf("Will publish as: %s\n", name)
		}

		pipe := pipeline.New(cfg, db)
		result := pipe.Run(pipeline.Options{
			StartDate:    startDate,
			EndDate:      endDate,
			Status:       effectiveStatus,
			Publish:      publishing,
			ServiceName:  serviceName,
			UpdateMethod: updateMethod,
		})

		for i, step := range result.Steps {
			fmt.Printf("\nStep %d: %s\n", i+1, step.Name)
			if step.Err != nil {
				fmt.Printf("  Error: %v\n", step.Err)
			} else {
				fmt.Printf("  %s\n", step.Summary)
			}
		}

		fmt.Printf("\nStatus: %s\n", result.Status)
		if result.Message != "" {
			fmt.Println(result.Message)
		}
		if result.Stats != nil && result.Stats.Total > 0 {
			pct := float64(result.Stats.ValidCoordinates) / float64(result.Stats.Total) * 100
			fmt.Printf("Validation: %d/%d requests have coordinates (%.1f%%)\n",
				result.Stats.ValidCoordinates, result.Stats.Total, pct)
		}

		if result.Status == pipeline.StatusError {
			return fmt.Errorf("sync failed: %s", result.Message)
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().IntVar(&daysBack, "days-back", 0, "Number of days back to fetch (default from config)")
	syncCmd.Flags().StringVar(&statusFilter, "status", "", "Status filter for requests (default from config)")
	syncCmd.Flags().BoolVar(&doPublish, "publish", false, "Publish the store to the hosted feature service after reconciling")
	syncCmd.Flags().StringVar(&serviceName, "service-name", "", "Hosted service name (default from config)")
	syncCmd.Flags().StringVar(&updateMethod, "update-method", "", "Publish method: replace, append or incremental (default from config)")
}

// --- status command ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store contents and recent sync runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		count, err := db.Count()
		if err != nil {
			return fmt.Errorf("counting requests: %w", err)
		}

		fmt.Printf("Store: %s\n", db.Path())
		fmt.Printf("Service requests: %d\n", count)

		runs, err := db.RecentSyncRuns(5)
		if err != nil {
			return fmt.Errorf("reading sync runs: %w", err)
		}
		if len(runs) == 0 {
			fmt.Println("\nNo sync runs recorded yet.")
			return nil
		}

		fmt.Println("\nRecent runs:")
		for _, r := range runs {
			fmt.Printf("  %s  %-13s fetched=%d processed=%d inserted=%d updated=%d\n",
				r.StartedAt, r.Status, r.Fetched, r.Processed, r.Inserted, r.Updated)
		}
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local status dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}
