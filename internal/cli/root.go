// Package cli implements the sitereel command line: offline rendering from
// local files, filter graph inspection and audio probing.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/maauso/sitereel/internal/config"
)

// app carries state shared by subcommands once the root command has loaded
// the configuration.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	debug  bool
}

// NewRootCmd builds the sitereel command tree.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "sitereel",
		Short: "Turn a website and a narration into a short promo video",
		Long: `sitereel composes a promo video from a website screenshot and a narration.

The video has three segments:
  - an intro with brand lines over the screenshot
  - the narration over the screenshot
  - an end card with call-to-action lines

Configuration is read from the environment and an optional .env file.
Run "sitereel render" to compose from local files.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")

	root.AddCommand(newRenderCmd(a))
	root.AddCommand(newGraphCmd(a))
	root.AddCommand(newProbeCmd(a))

	return root
}

func (a *app) load() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.debug {
		cfg.LogLevel = "debug"
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger()
	return nil
}
