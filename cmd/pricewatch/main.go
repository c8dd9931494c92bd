// Command pricewatch is the composition root: it wires config, logging,
// metrics, the Postgres pool, the Redis client, the rate governor, the
// fetchers, the extractor registry, the stores, the scheduler, and the
// worker pool into a single binary with a small CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:    "pricewatch",
		Usage:   "competitor price tracking and recommendation engine",
		Version: "1.0.0",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the scheduler and worker pool until interrupted",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runServe(ctx)
				},
			},
			{
				Name:  "migrate",
				Usage: "apply pending database migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runMigrate(ctx)
				},
			},
			{
				Name:  "track",
				Usage: "start tracking a competitor URL for a product",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "product-id", Required: true, Usage: "product UUID"},
					&cli.StringFlag{Name: "url", Required: true, Usage: "competitor product page URL"},
					&cli.StringFlag{Name: "competitor-name", Usage: "human-readable competitor label"},
					&cli.BoolFlag{Name: "active", Value: true, Usage: "whether the tracker starts active"},
					&cli.BoolFlag{Name: "now", Value: false, Usage: "enqueue an immediate scrape after creating the tracker"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runTrack(ctx, trackArgs{
						productID:      cmd.String("product-id"),
						url:            cmd.String("url"),
						competitorName: cmd.String("competitor-name"),
						active:         cmd.Bool("active"),
						now:            cmd.Bool("now"),
					})
				},
			},
			{
				Name:  "fetch-now",
				Usage: "run a single scrape synchronously and print the outcome",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Required: true, Usage: "page URL to fetch"},
					&cli.StringFlag{Name: "product-id", Usage: "product UUID, required to persist the result"},
					&cli.StringFlag{Name: "tracker-id", Usage: "tracker UUID, required to persist the result"},
					&cli.BoolFlag{Name: "allow-browser", Value: true, Usage: "allow escalation to the browser fetcher on a parse miss"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runFetchNow(ctx, fetchNowArgs{
						url:          cmd.String("url"),
						productID:    cmd.String("product-id"),
						trackerID:    cmd.String("tracker-id"),
						allowBrowser: cmd.Bool("allow-browser"),
					})
				},
			},
			{
				Name:  "recommend",
				Usage: "compute and print a pricing recommendation for a product",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "product-id", Required: true, Usage: "product UUID"},
					&cli.StringFlag{Name: "catalog", Required: true, Usage: "path to the catalog snapshot JSON file"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runRecommend(ctx, cmd.String("catalog"), cmd.String("product-id"))
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
