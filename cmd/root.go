package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trk-project/trk/internal/output"
	"github.com/trk-project/trk/internal/policy"
	"github.com/trk-project/trk/internal/store"
	"github.com/trk-project/trk/internal/tracker"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store
	service   *tracker.Service

	verbose bool
	dryRun  bool
	actAs   string
)

var rootCmd = &cobra.Command{
	Use:   "trk",
	Short: "trk - collaborative issue tracker",
	Long: `trk is a collaborative issue tracker. Users report issues, a single
assignee progresses them through open/in_progress/resolved, and
everyone discusses in comments. Reporters control assignment,
priority, and archiving; assignees control status; comment authors
control their own comments.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().StringVar(&actAs, "as", "", "Handle of the user to act as (default from config 'actor')")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/trk/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "trk")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TRK")
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "trk")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "trk.db"))
	viper.SetDefault("actor", "")
	viper.SetDefault("archive.allow_unarchive", true)
	viper.SetDefault("serve.addr", ":8080")
	viper.SetDefault("page.issues", 10)
	viper.SetDefault("page.users", 20)
	viper.SetDefault("page.comments", 5)
	viper.SetDefault("page.max", 50)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The store is opened lazily so config/version commands run
	// without a database.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getService returns the shared tracker service, initializing it on
// first call with the configured permission policy.
func getService() (*tracker.Service, error) {
	if service != nil {
		return service, nil
	}

	s, err := getStore()
	if err != nil {
		return nil, err
	}

	service = tracker.NewService(s, policy.Config{
		AllowUnarchive: viper.GetBool("archive.allow_unarchive"),
	})
	return service, nil
}

// currentActor resolves the acting user for CLI commands from --as
// or the configured actor handle. An empty handle yields the
// anonymous actor, which is denied on every mutation.
func currentActor(ctx context.Context) (policy.Actor, error) {
	handle := actAs
	if handle == "" {
		handle = viper.GetString("actor")
	}
	if handle == "" {
		return policy.Actor{}, nil
	}

	svc, err := getService()
	if err != nil {
		return policy.Actor{}, err
	}
	u, err := svc.GetUserByHandle(ctx, handle)
	if err != nil {
		return policy.Actor{}, fmt.Errorf("unknown actor %q: %w", handle, err)
	}
	return policy.Actor{ID: u.ID, Superuser: u.Superuser}, nil
}

// shortID abbreviates a ULID for display.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
