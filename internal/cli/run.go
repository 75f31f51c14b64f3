package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/forPelevin/cliper/internal/config"
	"github.com/forPelevin/cliper/internal/logging"
	"github.com/forPelevin/cliper/internal/pipeline"
	"github.com/forPelevin/cliper/internal/usecase"
)

func run(cmd *cobra.Command, input string) error {
	flags := cmd.Flags()
	verbose, _ := flags.GetBool("verbose")
	log := logging.Init(verbose)

	cfgPath, _ := flags.GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	applyFlags(flags, &cfg)

	absIn, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	clipsPath, _ := flags.GetString("clips")
	transcriptPath, _ := flags.GetString("transcript")
	name, _ := flags.GetString("name")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var bar *progressbar.ProgressBar
	res, err := pipeline.Run(ctx, pipeline.Config{
		Config:         cfg,
		Source:         absIn,
		ClipsPath:      clipsPath,
		TranscriptPath: transcriptPath,
		VideoName:      name,
		Log:            log,
		OnStart: func(total int) {
			bar = newProgressBar(total)
		},
		OnClipDone: func(usecase.ClipOutcome) {
			if bar != nil {
				_ = bar.Add(1)
			}
		},
	})
	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	out := cmd.OutOrStdout()
	for _, p := range res.Paths {
		fmt.Fprintln(out, p)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "clip %d failed at %s: %v\n", f.ClipID, f.Stage, f.Err)
	}
	if err != nil {
		return err
	}
	if len(res.Paths) == 0 && len(res.Failures) > 0 {
		return errors.New("no clips exported")
	}
	return nil
}

// applyFlags copies explicitly set flags over file and env config.
func applyFlags(f *pflag.FlagSet, c *config.Config) {
	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}
	integer := func(name string, dst *int) {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}

	str("out", &c.OutDir)
	str("aspect", &c.Aspect)
	boolean("organize-by-style", &c.OrganizeByStyle)
	integer("workers", &c.Workers)

	boolean("face-tracking", &c.FaceTracking.Enabled)
	str("strategy", &c.FaceTracking.Strategy)
	integer("sample-rate", &c.FaceTracking.SampleRate)
	str("encoder-backend", &c.Encoder.Backend)

	if f.Changed("logo") {
		c.Logo.Enabled = true
		c.Logo.Path, _ = f.GetString("logo")
	}
	str("logo-position", &c.Logo.Position)
	if f.Changed("logo-scale") {
		c.Logo.Scale, _ = f.GetFloat64("logo-scale")
	}

	boolean("subtitles", &c.Subtitles.Enabled)
	str("subtitle-style", &c.Subtitles.Style)
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("Exporting"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetRenderBlankState(true),
	)
}
