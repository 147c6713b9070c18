// Command jp2view decodes a JPEG 2000 image region by region and writes the
// displayed view to an image file.
package main

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"

	jp2view "github.com/ajroetker/go-jp2view"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type flags struct {
	output    string
	variant   string
	threads   int
	maxWidth  int
	maxHeight int
	verbose   bool
}

func newCommand() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "jp2view <file>",
		Short:         "Decode a JPEG 2000 image incrementally and save the view",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "output image (.png, .bmp, .tif); default <input>.png")
	cmd.Flags().StringVar(&f.variant, "variant", "composited", "region producer: direct or composited")
	cmd.Flags().IntVar(&f.threads, "threads", runtime.NumCPU(), "worker threads for the composited producer")
	cmd.Flags().IntVar(&f.maxWidth, "max-width", 1600, "maximum view width")
	cmd.Flags().IntVar(&f.maxHeight, "max-height", 1200, "maximum view height")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "log every region")
	return cmd
}

func run(ctx context.Context, path string, f flags) error {
	if f.verbose {
		log.SetLevel(log.DebugLevel)
	}

	opts := jp2view.DefaultOptions()
	switch strings.ToLower(f.variant) {
	case "direct":
		opts.Variant = jp2view.VariantDirect
	case "composited":
		opts.Variant = jp2view.VariantComposited
	default:
		return fmt.Errorf("unknown variant %q", f.variant)
	}
	opts.Threads = f.threads
	opts.MaxView = image.Pt(f.maxWidth, f.maxHeight)

	out := f.output
	if out == "" {
		out = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".png"
	}

	surface := jp2view.NewImageSurface()
	if _, err := jp2view.Render(ctx, path, surface, opts); err != nil {
		return err
	}
	if err := surface.WriteFile(out); err != nil {
		return err
	}
	log.WithField("output", out).Info("view written")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "jp2view: %v\n", err)
		stop()
		os.Exit(1)
	}
}
