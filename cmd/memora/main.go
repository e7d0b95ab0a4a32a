// Command memora recognizes enrolled family members from a camera and hands
// the recognized identity to the personalization service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ayusman/memora/internal/config"
)

// Version is the application version.
const Version = "0.1.0"

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "memora",
	Short:   "Face recognition for familiar people",
	Version: Version,
	Long: `Memora recognizes enrolled family members in front of a camera and
produces a short, personalized conversation starter for the person using it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func main() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (defaults are built in)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
