package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maauso/sitereel/internal/bootstrap"
	"github.com/maauso/sitereel/internal/engine"
	"github.com/maauso/sitereel/internal/graph"
	"github.com/maauso/sitereel/internal/media"
)

// ErrMissingInput is returned when a local input file does not exist.
var ErrMissingInput = errors.New("input file not found")

// copyFlags are the text and size flags shared by render and graph.
type copyFlags struct {
	brand1, brand2 string
	cta1, cta2     string
	width, height  int
}

func (f *copyFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.brand1, "brand-line1", "", "First intro line")
	cmd.Flags().StringVar(&f.brand2, "brand-line2", "", "Second intro line")
	cmd.Flags().StringVar(&f.cta1, "cta-line1", "", "First end-card line")
	cmd.Flags().StringVar(&f.cta2, "cta-line2", "", "Second end-card line")
	cmd.Flags().IntVar(&f.width, "width", 0, "Output width (default from OUTPUT_WIDTH)")
	cmd.Flags().IntVar(&f.height, "height", 0, "Output height (default from OUTPUT_HEIGHT)")
}

func (f *copyFlags) copy() graph.Copy {
	return graph.Copy{
		BrandLine1: f.brand1,
		BrandLine2: f.brand2,
		CTALine1:   f.cta1,
		CTALine2:   f.cta2,
	}
}

func (f *copyFlags) dims(a *app) graph.Dimensions {
	if f.width == 0 && f.height == 0 {
		return graph.Dimensions{Width: a.cfg.OutputWidth, Height: a.cfg.OutputHeight}
	}
	return graph.Dimensions{Width: f.width, Height: f.height}
}

func newRenderCmd(a *app) *cobra.Command {
	var (
		image, audio, logo, out string
		flags                   copyFlags
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Compose a video from local files",
		Long: `Compose a video from a local screenshot, narration and optional logo.

No browser or network access is needed; the inputs are used as given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range []string{image, audio, logo} {
				if p == "" {
					continue
				}
				if _, err := os.Stat(p); err != nil {
					return fmt.Errorf("%w: %s", ErrMissingInput, p)
				}
			}

			req := engine.RenderRequest{
				Still: media.NewAsset(image, media.KindImage),
				Audio: media.NewAsset(audio, media.KindAudio),
				Copy:  flags.copy(),
				Dims:  flags.dims(a),
			}
			if logo != "" {
				req.Logo = media.NewAsset(logo, media.KindImage)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng := bootstrap.NewEngine(a.cfg, a.logger)
			video, err := eng.ComposeVideo(ctx, req, out)
			if err != nil {
				return err
			}

			size, err := video.Size()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Video:    %s\n", video.Path())
			fmt.Fprintf(cmd.OutOrStdout(), "Size:     %d bytes\n", size)
			return nil
		},
	}

	cmd.Flags().StringVar(&image, "image", "", "Screenshot or still image (required)")
	cmd.Flags().StringVar(&audio, "audio", "", "Narration audio file (required)")
	cmd.Flags().StringVar(&logo, "logo", "", "Optional logo image")
	cmd.Flags().StringVarP(&out, "out", "o", "sitereel.mp4", "Output mp4 path")
	flags.register(cmd)
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("audio")

	return cmd
}
