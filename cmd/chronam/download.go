package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/urfave/cli/v3"

	"github.com/lk2023060901/american-chronicle/internal/chronam/client"
	"github.com/lk2023060901/american-chronicle/internal/chronam/types"
)

// DownloadCommand creates the download command
func DownloadCommand() *cli.Command {
	return &cli.Command{
		Name:  "download",
		Usage: "Download a newspaper page PDF",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "url",
				Usage:    "Page PDF URL as printed by search",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "coordinates",
				Usage: "Also fetch OCR word coordinates for the page",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cl, err := newClient(ctx, c)
			if err != nil {
				return err
			}
			defer closeClient(ctx, cl)

			return downloadPage(ctx, cl, c.String("url"), c.Bool("coordinates"))
		},
	}
}

func downloadPage(ctx context.Context, cl *client.Client, rawURL string, withCoordinates bool) error {
	var coords chan coordinatesOutcome
	if withCoordinates {
		coords = make(chan coordinatesOutcome, 1)
		cl.Search().FetchCoordinates(ctx, rawURL, func(oc *types.OCRCoordinates, err error) {
			coords <- coordinatesOutcome{coords: oc, err: err}
		})
	}

	progress := func(p types.Progress) {
		if p.BytesTotal > 0 {
			fmt.Fprintf(os.Stderr, "\r%6.1f%% of %d bytes", p.Fraction()*100, p.BytesTotal)
		}
	}

	select {
	case out := <-cl.Pages().Download(ctx, rawURL, progress):
		fmt.Fprintln(os.Stderr)
		if out.Err != nil {
			return fmt.Errorf("downloading %s: %w", rawURL, out.Err)
		}
		fmt.Printf("Saved %s\n", out.Path)
	case <-ctx.Done():
		cl.Pages().CancelDownload(rawURL)
		cl.Search().CancelCoordinates(rawURL)
		return ctx.Err()
	}

	if coords == nil {
		return nil
	}

	select {
	case out := <-coords:
		if out.err != nil {
			return fmt.Errorf("fetching coordinates: %w", out.err)
		}
		printCoordinates(out.coords)
		return nil
	case <-ctx.Done():
		cl.Search().CancelCoordinates(rawURL)
		return ctx.Err()
	}
}

type coordinatesOutcome struct {
	coords *types.OCRCoordinates
	err    error
}

func printCoordinates(oc *types.OCRCoordinates) {
	words := make([]string, 0, len(oc.Words))
	for w := range oc.Words {
		words = append(words, w)
	}
	sort.Strings(words)

	fmt.Printf("Page %.0fx%.0f, %d distinct words\n", oc.Width, oc.Height, len(words))
	for _, w := range words {
		fmt.Printf("  %-20s %d\n", w, len(oc.Boxes(w)))
	}
}
