package cmd

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/intellsearch/intell/internal/search"
)

func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url ...]",
		Short: "Run a crawl to completion and exit.",
		Long: `crawl seeds the frontier with the given URLs (or the configured
seeds when none are given), runs the fetch pool until no pending or
in-flight work remains, and exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := appFromContext(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if len(args) > 0 {
				for _, seed := range args {
					if err := a.Frontier.Enqueue(ctx, seed, 0); err != nil {
						return err
					}
				}
			} else if err := a.SeedFrontier(ctx); err != nil {
				return err
			}

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			done := make(chan struct{})
			go func() {
				defer close(done)
				a.Pool.Run(runCtx)
			}()

			counts := waitForDrain(runCtx, a.Frontier.Counts)
			cancel()
			<-done

			a.Logger.Info("crawl finished",
				zap.Int("done", counts.Done),
				zap.Int("failed", counts.Failed),
			)
			return nil
		},
	}
	return cmd
}

// waitForDrain polls until the frontier holds no claimable work or the
// context ends.
func waitForDrain(ctx context.Context, counts func() search.CrawlCounts) search.CrawlCounts {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return counts()
		case <-ticker.C:
			c := counts()
			if c.Pending == 0 && c.InFlight == 0 && (c.Done > 0 || c.Failed > 0) {
				return c
			}
		}
	}
}
