package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/be/internal/output"
	"github.com/joescharf/be/internal/store"
	"github.com/joescharf/be/internal/vcs"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui   *output.UI
	repo *store.Repo

	verbose bool
	dryRun  bool
	bugDir  string
)

var rootCmd = &cobra.Command{
	Use:   "be",
	Short: "Bugs Everywhere - distributed bug tracking inside your repository",
	Long: `be keeps bug reports next to the code they describe.
Bugs and their comment threads live as plain files in a .be directory
that is versioned with the project, and concurrent edits made on
different branches are merged field by field.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeRepo()
	},
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		_ = closeRepo()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/be/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&bugDir, "dir", "d", "", "Bug directory (default ./.be)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default value.
func setDefaults() {
	viper.SetDefault("root", store.DefaultDir)
	viper.SetDefault("vcs", "auto")
	viper.SetDefault("user", "")
	viper.SetDefault("index.enabled", true)
	viper.SetDefault("index.path", "")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// The repo is opened lazily so config and version run outside a project.
}

// rootRun handles `be` with no subcommand: list bugs when a bugdir exists.
func rootRun(cmd *cobra.Command) error {
	if _, err := getRepo(); err != nil {
		return cmd.Help()
	}
	return listRun()
}

// bugdirPath returns the bugdir root from --dir or the root setting.
func bugdirPath() (string, error) {
	p := bugDir
	if p == "" {
		p = viper.GetString("root")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve bug directory: %w", err)
	}
	return abs, nil
}

// repoOptions builds the store options shared by init and open.
func repoOptions() []store.Option {
	var opts []store.Option
	if user := viper.GetString("user"); user != "" {
		opts = append(opts, store.WithUser(user))
	}
	return opts
}

// getRepo returns the shared repo, opening it on first call.
func getRepo() (*store.Repo, error) {
	if repo != nil {
		return repo, nil
	}

	root, err := bugdirPath()
	if err != nil {
		return nil, err
	}
	adapter, err := openVCS(root)
	if err != nil {
		return nil, err
	}

	r, err := store.Open(root, adapter, repoOptions()...)
	if err != nil {
		return nil, err
	}
	if viper.GetBool("index.enabled") {
		ix, err := openIndex(root)
		if err != nil {
			ui.Warning("Index disabled: %v", err)
		} else {
			store.WithIndex(ix)(r)
		}
	}
	repo = r
	return repo, nil
}

// openVCS picks the backend for the project that holds the bugdir.
func openVCS(root string) (vcs.Adapter, error) {
	adapter, err := vcs.Open(viper.GetString("vcs"), filepath.Dir(root))
	if err != nil {
		return nil, fmt.Errorf("open vcs: %w", err)
	}
	ui.VerboseLog("Using %s backend at %s", adapter.Name(), adapter.Root())
	return adapter, nil
}

// openIndex opens and migrates the SQLite index cache for the bugdir.
func openIndex(root string) (*store.Index, error) {
	path := viper.GetString("index.path")
	if path == "" {
		path = store.IndexPath(root)
	}
	ix, err := store.NewIndex(path)
	if err != nil {
		return nil, err
	}
	if err := ix.Migrate(context.Background()); err != nil {
		_ = ix.Close()
		return nil, fmt.Errorf("migrate index: %w", err)
	}
	return ix, nil
}

func closeRepo() error {
	if repo == nil {
		return nil
	}
	var err error
	if ix := repo.Index(); ix != nil {
		err = ix.Close()
	}
	repo = nil
	return err
}
