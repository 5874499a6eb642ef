package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/linkctl/internal/config"
	"github.com/zjrosen/linkctl/internal/log"
)

// defaultConfigPath is where a config is written when none is found.
const defaultConfigPath = ".linkctl/config.yaml"

var (
	version      = "dev"
	cfgFile      string
	envFile      string
	registryPath string
	logFile      string
	debug        bool
	verbose      bool
	noColor      bool

	cfg config.Config
	// configPath is the file cfg was read from, or where config:init and
	// config:network write.
	configPath string
	configErr  error
	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "linkctl",
	Short: "Deploy and wire cross-chain NFT contracts",
	Long: `linkctl deploys the fee-chain and minting-chain NFT entities on EVM networks,
configures them in a fixed order, and maps entities across networks.

Every network has one record in the registry (deployments.yaml by default)
holding its routing id, handler, linker and fee-token addresses, and the
deployed entity. Pipelines journal their progress in that record, so a run
that stops halfway can be resumed with --resume.`,
	Version:      version,
	SilenceUsage: true,
}

// annotationLenientConfig marks commands that run with an invalid config.
const annotationLenientConfig = "lenient-config"

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentPreRunE = setupLogging
	rootCmd.PersistentPostRun = func(*cobra.Command, []string) {
		if logCleanup != nil {
			logCleanup()
			logCleanup = nil
		}
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .linkctl/config.yaml, then ~/.config/linkctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"dotenv file loaded before the config (RPC URLs, signing key)")
	rootCmd.PersistentFlags().StringVar(&registryPath, "registry", "",
		"registry file or database (overrides registry.path)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "",
		"append debug logs to this file (overrides log.path)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"log at debug level to stderr")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"print step starts, transaction hashes and failure details")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"disable colored output")
}

func initConfig() {
	configErr = nil
	configPath = ""

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			configErr = fmt.Errorf("loading %s: %w", envFile, err)
			return
		}
	}

	v := viper.New()
	setDefaults(v)
	_ = v.BindPFlag("registry.path", rootCmd.PersistentFlags().Lookup("registry"))
	_ = v.BindPFlag("log.path", rootCmd.PersistentFlags().Lookup("log-file"))

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .linkctl/config.yaml (current directory)
		// 2. ~/.config/linkctl/config.yaml (user config)
		if _, err := os.Stat(defaultConfigPath); err == nil {
			v.SetConfigFile(defaultConfigPath)
		} else {
			home, _ := os.UserHomeDir()
			v.AddConfigPath(filepath.Join(home, ".config", "linkctl"))
			v.SetConfigName("config")
			v.SetConfigType("yaml")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)
		switch {
		case missing && cfgFile != "":
			// An explicit --config that does not exist yet is written by config:init.
		case missing:
			// No config file found anywhere - create default at .linkctl/config.yaml
			if writeErr := config.WriteDefaultConfig(defaultConfigPath); writeErr == nil {
				v.SetConfigFile(defaultConfigPath)
				_ = v.ReadInConfig()
			}
		default:
			configErr = fmt.Errorf("reading config: %w", err)
			return
		}
	}
	configPath = v.ConfigFileUsed()
	if cfgFile != "" {
		configPath = cfgFile
	}
	if configPath == "" {
		configPath = defaultConfigPath
	}

	cfg = config.Config{}
	if err := v.Unmarshal(&cfg); err != nil {
		configErr = fmt.Errorf("decoding config: %w", err)
		return
	}
	if cfg.Networks == nil {
		cfg.Networks = config.DefaultNetworks()
	}
}

func setDefaults(v *viper.Viper) {
	d := config.Defaults()
	v.SetDefault("registry.backend", d.Registry.Backend)
	v.SetDefault("registry.path", d.Registry.Path)
	v.SetDefault("gateway.artifacts", d.Gateway.Artifacts)
	v.SetDefault("gateway.key_env", d.Gateway.KeyEnv)
	v.SetDefault("gateway.gas_limit", d.Gateway.GasLimit)
	v.SetDefault("gateway.confirm_timeout", d.Gateway.ConfirmTimeout)
	v.SetDefault("gateway.handler_contract", d.Gateway.HandlerContract)
	v.SetDefault("deploy.name", d.Deploy.Name)
	v.SetDefault("deploy.symbol", d.Deploy.Symbol)
	v.SetDefault("deploy.approve_amount", d.Deploy.ApproveAmount)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.file_path", d.Tracing.FilePath)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("log.level", d.Log.Level)
}

// setupLogging validates the loaded config and starts logging. Commands
// annotated with annotationLenientConfig skip validation so config:init can
// replace a broken file.
func setupLogging(cmd *cobra.Command, _ []string) error {
	_, lenient := cmd.Annotations[annotationLenientConfig]
	if !lenient {
		if configErr != nil {
			return configErr
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration in %s: %w", configPath, err)
		}
	}

	level := log.ParseLevel(cfg.Log.Level)
	switch {
	case cfg.Log.Path != "":
		if debug {
			level = log.LevelDebug
		}
		cleanup, err := log.Init(cfg.Log.Path, level)
		if err != nil {
			return err
		}
		logCleanup = cleanup
	case debug:
		log.SetOutput(cmd.ErrOrStderr(), log.LevelDebug)
		logCleanup = func() { log.SetOutput(nil, log.LevelInfo) }
	}
	log.Debug(log.CatCmd, "command started", "command", cmd.Name(), "config", configPath)
	return nil
}

// Execute runs the root command. An interrupt cancels the command's context,
// which stops a run between steps or while waiting for a confirmation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
