// -- cmd/root.go --
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/deskmate-tools/deskmate-cli/internal/config"
	"github.com/deskmate-tools/deskmate-cli/internal/observability"
)

var (
	cfgFile string
	cfg     config.Interface

	attachURL string
	baseURL   string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "deskmate",
	Short: "Deskmate augments the helpdesk agent UI from the outside.",
	Long: `Deskmate attaches to a running Chrome instance showing the helpdesk
agent UI and augments it: a synthesized attachment table with bulk .zip
download on ticket views, pre-filled issue creation forms, and knowledge
base articles linked back to their source tickets.`,
	// Version is set at build time. See cmd/version.go.
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initializeConfig(); err != nil {
			return err
		}

		loaded, err := config.NewConfigFromViper(viper.GetViper())
		if err != nil {
			// Fall back to a bare console logger so the error is visible.
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "deskmate"})
			return fmt.Errorf("loading configuration: %w", err)
		}

		// Command line flags beat the config file.
		if attachURL != "" {
			loaded.SetBrowserAttachURL(attachURL)
		}
		if baseURL != "" {
			loaded.SetHelpdeskBaseURL(baseURL)
		}
		cfg = loaded

		observability.InitializeLogger(cfg.Logger())
		observability.GetLogger().Debug("starting deskmate", zap.String("version", Version))
		return nil
	},
}

// Execute runs the root command under a signal-aware context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	observability.Sync()
	if err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("command failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./deskmate.yaml or ~/.deskmate/deskmate.yaml)")
	rootCmd.PersistentFlags().StringVar(&attachURL, "attach", "", "DevTools endpoint of a running Chrome instance")
	rootCmd.PersistentFlags().StringVar(&baseURL, "helpdesk-url", "", "base URL of the helpdesk instance")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// initializeConfig reads the config file and DESKMATE_ environment variables.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".deskmate"))
		}
		v.SetConfigName("deskmate")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("DESKMATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config file: %w", err)
		}
		// No config file; defaults and env vars carry the day.
	}
	return nil
}
