package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/billmal071/archivedl/internal/config"
	"github.com/billmal071/archivedl/internal/db"
	"github.com/billmal071/archivedl/internal/logging"
)

var (
	cfgFile string
	verbose bool
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "archivedl",
	Short: "Borrow books from archive.org and save their pages",
	Long: `archivedl borrows a book from the archive.org lending library, keeps the
loan alive while it runs, and saves each page as an image.

Rips are tracked locally so an interrupted rip can be resumed later.

Examples:
  archivedl rip goodnightmoon00brow             Rip every page
  archivedl rip goodnightmoon00brow -p 1-15     Rip pages 1 through 15
  archivedl info goodnightmoon00brow            Show title and page count
  archivedl list                                List unfinished rips
  archivedl resume 1                            Resume rip #1
  archivedl stitch 1                            Build a PDF from rip #1`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize config
		if err := config.Init(cfgFile); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		l, err := logging.New(config.Get().Log.Level, verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l

		// Initialize database
		if err := db.Init(); err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
		db.Close()
	},
}

// Execute runs the root command. Interrupts cancel the command context so a
// running rip is paused rather than killed.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.config/archivedl/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(ripCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(stitchCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(completionCmd)
}

// Log returns the command logger
func Log() *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// Verbose returns whether verbose mode is enabled
func Verbose() bool {
	return verbose
}

// Printf prints if verbose mode is enabled
func Printf(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(format, args...)
	}
}

// Errorf prints an error message to stderr
func Errorf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// Successf prints a success message
func Successf(format string, args ...interface{}) {
	fmt.Printf("✓ "+format+"\n", args...)
}
