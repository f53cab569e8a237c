package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maauso/sitereel/internal/bootstrap"
	"github.com/maauso/sitereel/internal/engine"
	"github.com/maauso/sitereel/internal/graph"
	"github.com/maauso/sitereel/internal/media"
	"github.com/maauso/sitereel/internal/timeline"
)

// graphOutput is the --json form of the graph command.
type graphOutput struct {
	Timeline timelineOutput `json:"timeline"`
	Stages   []stageOutput  `json:"stages"`
	Script   string         `json:"filter_complex"`
}

type timelineOutput struct {
	Intro        float64 `json:"intro_seconds"`
	Hero         float64 `json:"hero_seconds"`
	EndCard      float64 `json:"end_card_seconds"`
	EndCardStart float64 `json:"end_card_start_seconds"`
	Total        float64 `json:"total_seconds"`
}

type stageOutput struct {
	Role   string   `json:"role"`
	Inputs []string `json:"inputs"`
	Filter string   `json:"filter"`
	Output string   `json:"output"`
}

func newGraphCmd(a *app) *cobra.Command {
	var (
		audioSeconds float64
		logo         bool
		jsonOutput   bool
		flags        copyFlags
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the filter graph for a render",
		Long:  `Plan the timeline for the given narration length and print the ffmpeg filter_complex without rendering.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng := engine.New(nil, nil, bootstrap.Settings(a.cfg), a.logger)

			tl, err := eng.Plan(audioSeconds)
			if err != nil {
				return err
			}

			req := engine.RenderRequest{
				Still: media.NewAsset("still.png", media.KindImage),
				Copy:  flags.copy(),
				Dims:  flags.dims(a),
			}
			if logo {
				req.Logo = media.NewAsset("logo.png", media.KindImage)
			}

			g, err := eng.Build(req, tl)
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeGraphJSON(cmd, tl, g)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Timeline: %s\n", tl)
			fmt.Fprintf(cmd.OutOrStdout(), "Output:   [%s]\n", g.Output())
			fmt.Fprintln(cmd.OutOrStdout(), g.Script())
			return nil
		},
	}

	cmd.Flags().Float64Var(&audioSeconds, "audio-seconds", 30, "Narration length in seconds")
	cmd.Flags().BoolVar(&logo, "logo", false, "Include logo branding")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the graph as JSON")
	flags.register(cmd)

	return cmd
}

func writeGraphJSON(cmd *cobra.Command, tl timeline.Timeline, g *graph.Graph) error {
	out := graphOutput{
		Timeline: timelineOutput{
			Intro:        tl.IntroSeconds,
			Hero:         tl.HeroSeconds,
			EndCard:      tl.EndCardSeconds,
			EndCardStart: tl.EndCardStartSeconds,
			Total:        tl.TotalSeconds,
		},
		Script: g.Script(),
	}
	for _, s := range g.Stages() {
		inputs := make([]string, 0, len(s.Inputs))
		for _, in := range s.Inputs {
			inputs = append(inputs, string(in))
		}
		out.Stages = append(out.Stages, stageOutput{
			Role:   s.Role,
			Inputs: inputs,
			Filter: s.Filter,
			Output: string(s.Output),
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
