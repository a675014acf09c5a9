package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/phantomjs-arm/phantomjs-alarm/internal/config"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/pipeline"
	"github.com/phantomjs-arm/phantomjs-alarm/internal/utils/logger"
)

var version = "dev"

const (
	exitOK        = 0
	exitFailure   = 1
	exitUpToDate  = 2
	usageTemplate = "%s [flags] [MIRROR_URL]\n  %s [flags] BINARY VERSION ARCH"
)

var errUpToDate = errors.New("already up to date")

// Flag values
var (
	configFile     string
	logLevel       string
	verbose        bool
	destDir        string
	workDir        string
	keyringFile    string
	format         string
	upToDateStatus bool
	noProgress     bool
)

// globalConfig is loaded by the persistent pre-run hook once arguments are valid.
var globalConfig *config.GlobalConfig

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := createRootCommand().ExecuteContext(ctx)
	stop()
	logger.Sync()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUpToDate):
		return exitUpToDate
	default:
		return exitFailure
	}
}

func createRootCommand() *cobra.Command {
	name := "phantomjs-alarm"
	rootCmd := &cobra.Command{
		Use:   fmt.Sprintf(usageTemplate, name, name),
		Short: "Repackage PhantomJS ARM builds from the Arch Linux ARM mirror",
		Long: `phantomjs-alarm scrapes the Arch Linux ARM mirror for PhantomJS packages,
downloads every version that is not archived yet and repackages its binary together
with the upstream release files as phantomjs-<version>-linux-<arch>.tar.bz2.

With no argument the configured mirror is swept; a single argument replaces the
mirror URL. With three arguments a local binary is packaged under the given
version and architecture without contacting the mirror.`,
		Version:           version,
		Args:              validateArgs,
		PersistentPreRunE: setupRun,
		RunE:              executeRun,
	}
	addFlags(rootCmd.PersistentFlags())
	return rootCmd
}

func addFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&configFile, "config", "c", "", "configuration file (default ./"+config.DefaultConfigFile+" when present)")
	fs.StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	fs.StringVarP(&destDir, "dest", "d", "", "destination directory for artifacts")
	fs.StringVar(&workDir, "work-dir", "", "parent directory for the temporary work root")
	fs.StringVar(&keyringFile, "keyring", "", "OpenPGP keyring used to verify package signatures")
	fs.StringVar(&format, "format", "", "artifact compression (bz2 or xz)")
	fs.BoolVar(&upToDateStatus, "up-to-date-status", false, "exit with status 2 when everything was already archived")
	fs.BoolVar(&noProgress, "no-progress", false, "disable download progress bars")
}

// validateArgs accepts 0, 1 (mirror URL) or 3 (binary, version, arch) arguments.
// It runs before any configuration, network or filesystem work.
func validateArgs(cmd *cobra.Command, args []string) error {
	switch len(args) {
	case 0, 3:
		return nil
	case 1:
		u, err := url.Parse(args[0])
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid mirror URL %q", args[0])
		}
		return nil
	default:
		return fmt.Errorf("expected 0, 1 or 3 arguments, got %d", len(args))
	}
}

// resolveRequestedLogLevel returns the level asked for on the command line, if any.
func resolveRequestedLogLevel(cmd *cobra.Command) string {
	if logLevel != "" {
		return logLevel
	}
	if cmd == nil {
		return ""
	}
	if f := cmd.Flags().Lookup("verbose"); f != nil && f.Changed && f.Value.String() == "true" {
		return "debug"
	}
	return ""
}

// setupRun loads configuration, applies flag overrides and starts the logger.
func setupRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if lvl := resolveRequestedLogLevel(cmd); lvl != "" {
		cfg.Logging.Level = lvl
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return err
	}
	globalConfig = cfg
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.GlobalConfig, error) {
	path := configFile
	required := path != ""
	if path == "" {
		path = config.DefaultConfigFile
	}
	cfg, err := config.LoadGlobalConfig(path, required)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("dest") {
		cfg.DestDir = destDir
	}
	if flags.Changed("work-dir") {
		cfg.WorkDir = workDir
	}
	if flags.Changed("keyring") {
		cfg.Keyring = keyringFile
	}
	if flags.Changed("format") {
		cfg.Format = format
	}
	if noProgress {
		cfg.Progress = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func executeRun(cmd *cobra.Command, args []string) error {
	// arguments are valid from here on; failures are reported through the logger
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	log := logger.Logger()

	var opts []pipeline.Option
	if globalConfig.Progress {
		opts = append(opts, pipeline.WithProgress(cmd.ErrOrStderr()))
	}
	runner, err := pipeline.NewRunner(globalConfig, opts...)
	if err != nil {
		log.Errorf("%v", err)
		return err
	}
	defer func() {
		if err := runner.Close(); err != nil {
			log.Warnf("cleanup: %v", err)
		}
	}()

	var sum *pipeline.Summary
	if len(args) == 3 {
		sum, err = runner.PackageLocal(cmd.Context(), args[0], args[1], args[2])
	} else {
		mirror := ""
		if len(args) == 1 {
			mirror = args[0]
		}
		sum, err = runner.Sweep(cmd.Context(), mirror)
	}
	if sum != nil {
		log.Infof("run %s: %s", runner.RunID(), sum)
	}
	if err != nil {
		log.Errorf("%v", err)
		return err
	}
	if sum.UpToDate() {
		log.Info("already up to date")
		if upToDateStatus {
			return errUpToDate
		}
	}
	return nil
}
