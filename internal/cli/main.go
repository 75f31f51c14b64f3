package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cliper <video>",
		Short:        "Export clips from a long video as short-form videos",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	f := root.Flags()
	f.String("clips", "", "Clip list (YAML or JSON)")
	f.String("transcript", "", "Transcript JSON with word timings, used to render subtitles")
	f.String("config", "", "Config file (default ./cliper.yaml when present)")
	f.String("out", "", "Output directory")
	f.String("name", "", "Output folder name (default: derived from the video file name)")
	f.String("aspect", "", "Aspect ratio: original, 9:16, 1:1, 16:9")
	f.Bool("face-tracking", false, "Follow the speaker's face when cropping to 9:16")
	f.String("strategy", "", "Face tracking strategy: keep_in_frame, centered")
	f.Int("sample-rate", 0, "Run face detection every N frames")
	f.String("logo", "", "Overlay this logo image")
	f.String("logo-position", "", "Logo corner: top-left, top-right, bottom-left, bottom-right")
	f.Float64("logo-scale", 0, "Logo height as a fraction of the output height")
	f.Bool("subtitles", false, "Burn subtitles into each clip")
	f.String("subtitle-style", "", "Subtitle style name")
	f.Bool("organize-by-style", false, "Group outputs into per-style folders")
	f.Int("workers", 0, "Clips exported in parallel")
	f.BoolP("verbose", "v", false, "Debug logging")

	// Encoder internals, not part of the everyday surface.
	f.String("encoder-backend", "", "Face tracking encoder backend: auto, subprocess, native")
	_ = f.MarkHidden("encoder-backend")

	return root
}
