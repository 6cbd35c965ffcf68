package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/echochat/echochat/internal/app"
	"github.com/echochat/echochat/internal/crawler"
)

func newCrawlCmd() *cobra.Command {
	var (
		targetURL  string
		singlePage bool
		maxPages   int
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl and reindex job, then exit",
		Long: `Crawls the configured target (or --url), rebuilds the vector index
from the scraped pages, and records the job outcome before exiting.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := app.New(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("initialize services: %w", err)
			}
			defer a.Close()
			logger := a.Logger

			params := crawler.RunParams{
				TargetURL:  cfg.Target.URL,
				PathPrefix: cfg.Target.PathPrefix,
				SinglePage: singlePage,
				MaxPages:   cfg.Crawler.MaxPages,
			}
			if targetURL != "" {
				params.TargetURL = targetURL
				params.PathPrefix = ""
			}
			if maxPages > 0 {
				params.MaxPages = maxPages
			}

			jobID, err := a.Runner.RunOnce(cmd.Context(), params)
			if err != nil {
				return fmt.Errorf("run job: %w", err)
			}

			job, err := a.Jobs.GetJob(cmd.Context(), jobID)
			if err != nil {
				return fmt.Errorf("load job result: %w", err)
			}
			logger.Info("crawl job finished",
				zap.String("job_id", job.ID),
				zap.String("status", string(job.Status)),
				zap.Int("pages_scraped", job.PagesScraped),
				zap.Int("chunks_indexed", job.ChunksIndexed),
			)
			if job.Status == crawler.JobStatusFailed {
				return fmt.Errorf("job failed: %s", job.ErrorText)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&targetURL, "url", "", "crawl this URL instead of the configured target")
	cmd.Flags().BoolVar(&singlePage, "single-page", false, "scrape only the seed page, no link following")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "stop after this many pages (0 uses the configured limit)")
	return cmd
}
