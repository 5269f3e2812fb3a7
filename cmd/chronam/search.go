package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/lk2023060901/american-chronicle/internal/chronam/types"
	"github.com/lk2023060901/american-chronicle/internal/pkg/logger"
)

const dateLayout = "2006-01-02"

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:  "search",
		Usage: "Search newspaper pages",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "term",
				Usage:    "Words to search for",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "state",
				Usage: "Restrict to a state (repeatable)",
			},
			&cli.IntFlag{
				Name:  "page",
				Usage: "Result page, starting at 1",
				Value: 1,
			},
			&cli.StringFlag{
				Name:  "from",
				Usage: "Earliest issue date (YYYY-MM-DD)",
			},
			&cli.StringFlag{
				Name:  "to",
				Usage: "Latest issue date (YYYY-MM-DD)",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			params, err := searchParameters(c.String("term"), c.StringSlice("state"), c.String("from"), c.String("to"))
			if err != nil {
				return err
			}
			return searchPages(ctx, c, params, c.Int("page"))
		},
	}
}

// searchParameters builds search parameters from raw flag values. Empty
// dates leave the archive bounds in place.
func searchParameters(term string, states []string, from, to string) (types.SearchParameters, error) {
	params := types.SearchParameters{Term: term, States: states}

	if from != "" {
		t, err := time.Parse(dateLayout, from)
		if err != nil {
			return params, fmt.Errorf("invalid --from date %q: %w", from, err)
		}
		params.EarliestDate = t
	}
	if to != "" {
		t, err := time.Parse(dateLayout, to)
		if err != nil {
			return params, fmt.Errorf("invalid --to date %q: %w", to, err)
		}
		params.LatestDate = t
	}

	return params, nil
}

func searchPages(ctx context.Context, c *cli.Command, params types.SearchParameters, page int) error {
	ctx, cl, err := newClient(ctx, c)
	if err != nil {
		return err
	}
	defer closeClient(ctx, cl)

	contextID := uuid.NewString()
	ctx = logger.WithContextID(ctx, contextID)
	logger.FromContext(ctx).Debug("searching", zap.String("term", params.Term), zap.Int("page", page))

	select {
	case out := <-cl.Search().Search(ctx, params, page, contextID):
		if out.Err != nil {
			return fmt.Errorf("searching: %w", out.Err)
		}
		printResults(out.Results, page)
		return nil
	case <-ctx.Done():
		cl.Search().CancelSearch(params, page, contextID)
		return ctx.Err()
	}
}

func printResults(results *types.SearchResults, page int) {
	if len(results.Items) == 0 {
		fmt.Println("No results found")
		return
	}

	fmt.Printf("Showing %d-%d of %d pages\n\n", results.StartIndex, results.EndIndex, results.TotalItems)
	for i, hit := range results.Items {
		fmt.Printf("%d. %s\n", results.StartIndex+i, formatHit(hit))
	}
	if results.HasMore() {
		fmt.Printf("\nMore results: --page %d\n", page+1)
	}
}

func formatHit(hit *types.PageHit) string {
	var b strings.Builder
	b.WriteString(hit.Title)
	if hit.Date != "" {
		if d, err := time.Parse("20060102", hit.Date); err == nil {
			b.WriteString(" (" + d.Format("January 2, 2006") + ")")
		} else {
			b.WriteString(" (" + hit.Date + ")")
		}
	}
	if len(hit.States) > 0 {
		b.WriteString(" [" + strings.Join(hit.States, ", ") + "]")
	}
	if hit.Sequence > 0 {
		fmt.Fprintf(&b, " page %d", hit.Sequence)
	}
	if hit.PDFURL != "" {
		b.WriteString("\n   " + hit.PDFURL)
	}
	return b.String()
}
