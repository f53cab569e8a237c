package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maauso/sitereel/internal/media"
)

func newProbeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe FILE",
		Short: "Print the duration of an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return fmt.Errorf("%w: %s", ErrMissingInput, args[0])
			}

			prober := media.NewFFprobe(a.cfg.ProbeTimeout, a.logger)
			seconds, err := prober.Probe(cmd.Context(), media.NewAsset(args[0], media.KindAudio))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%.3f\n", seconds)
			return nil
		},
	}
}
