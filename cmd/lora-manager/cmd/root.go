package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go-lora-manager/internal/api"
	"go-lora-manager/internal/config"
	"go-lora-manager/internal/models"
)

// cfgFile holds the path to the config file specified by the user
var cfgFile string

// logApiFlag holds the value of the --log-api flag
var logApiFlag bool

// baseURLFlag holds the value of the --base-url flag
var baseURLFlag string

// storagePathFlag holds the value of the --storage-path flag
var storagePathFlag string

// apiTimeoutFlag holds the value of the --api-timeout flag
var apiTimeoutFlag int

// logLevelFlag and logFormatFlag configure logrus before the config is read.
var (
	logLevelFlag  string
	logFormatFlag string
)

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport is the base transport, wrapped for logging when enabled.
var globalHttpTransport http.RoundTripper = http.DefaultTransport

// rootCmd is the base command; every subcommand loads the config through it
var rootCmd = &cobra.Command{
	Use:   "lora-manager",
	Short: "Manage LoRA, checkpoint and embedding libraries of a LoRA Manager backend",
	Long: `lora-manager lists, searches and edits the model libraries served by a
LoRA Manager backend, and edits the lora widgets of saved node-graph workflows.`,
	PersistentPreRunE: loadGlobalConfig,
	SilenceUsage:      true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	defer closeTransport()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		closeTransport()
		os.Exit(1)
	}
}

func closeTransport() {
	if t, ok := globalHttpTransport.(*api.LoggingTransport); ok && t != nil {
		if err := t.Close(); err != nil {
			log.WithError(err).Error("Error closing API log file")
		}
		globalHttpTransport = http.DefaultTransport
	}
}

func init() {
	// Persistent flags apply to every subcommand
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "config.toml", "Configuration file path")
	flags.BoolVar(&logApiFlag, "log-api", false, "Log API requests/responses to api.log (overrides config)")
	flags.StringVar(&baseURLFlag, "base-url", "", "Backend base URL (overrides config)")
	flags.StringVar(&storagePathFlag, "storage-path", "", "Directory of the local preference store (overrides config)")
	flags.IntVar(&apiTimeoutFlag, "api-timeout", -1, "Timeout for API HTTP client in seconds (overrides config, -1 uses config default)")
	flags.StringVar(&logLevelFlag, "log-level", "info", "Log level (debug, info, warn, error)")
	flags.StringVar(&logFormatFlag, "log-format", "text", "Log format (text, json)")
	// type and page-size are read through viper so LORA_MANAGER_MODEL_TYPE and
	// LORA_MANAGER_PAGE_SIZE work too
	flags.StringP("type", "t", "", "Model type: lora, checkpoint or embedding (overrides config)")
	flags.Int("page-size", 0, "Items per page (overrides config)")

	viper.BindPFlag("model_type", flags.Lookup("type"))
	viper.BindPFlag("page_size", flags.Lookup("page-size"))
	viper.SetEnvPrefix("lora_manager")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

func initLogging() error {
	level, err := log.ParseLevel(logLevelFlag)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	log.SetLevel(level)
	log.SetOutput(os.Stderr)
	switch strings.ToLower(logFormatFlag) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid --log-format %q", logFormatFlag)
	}
	return nil
}

// loadGlobalConfig loads the configuration, applies flag overrides and sets up the
// HTTP transport.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	if err := initLogging(); err != nil {
		return err
	}

	var err error
	globalConfig, err = config.LoadConfig(cfgFile)
	if err != nil {
		return err
	}

	// Flags override the config file only when given explicitly
	if cmd.Flags().Changed("log-api") {
		globalConfig.LogApiRequests = logApiFlag
		log.Debugf("Overriding LogApiRequests based on --log-api flag: %t", logApiFlag)
	}
	if cmd.Flags().Changed("base-url") {
		globalConfig.BaseURL = baseURLFlag
		log.Debugf("Overriding BaseURL based on --base-url flag: %s", baseURLFlag)
	}
	// An empty --storage-path keeps the configured store
	if cmd.Flags().Changed("storage-path") {
		if storagePathFlag != "" {
			globalConfig.StoragePath = storagePathFlag
		} else {
			log.Warn("--storage-path flag provided but value is empty, ignoring.")
		}
	}
	// -1 is the flag default; any non-positive value keeps the configured timeout
	if cmd.Flags().Changed("api-timeout") {
		if apiTimeoutFlag > 0 {
			globalConfig.ApiClientTimeoutSec = apiTimeoutFlag
		} else {
			log.Warnf("--api-timeout flag provided with invalid value %d, using config value: %d sec", apiTimeoutFlag, globalConfig.ApiClientTimeoutSec)
		}
	}
	// Flag or environment, via viper
	if mt := viper.GetString("model_type"); mt != "" {
		globalConfig.DefaultModelType = mt
	}
	if n := viper.GetInt("page_size"); n > 0 {
		globalConfig.PageSize = n
	}
	if err := config.Validate(globalConfig); err != nil {
		return err
	}

	// Logging wraps the default transport only when enabled
	globalHttpTransport = http.DefaultTransport
	if globalConfig.LogApiRequests {
		logFilePath := "api.log"
		log.Infof("API logging to file: %s", logFilePath)
		loggingTransport, err := api.NewLoggingTransport(http.DefaultTransport, logFilePath)
		if err != nil {
			log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
		} else {
			globalHttpTransport = loggingTransport
		}
	}
	return nil
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: globalHttpTransport,
		Timeout:   time.Duration(globalConfig.ApiClientTimeoutSec) * time.Second,
	}
}
