// Package crawl drives the external crawler service for one business and
// distills the returned pages into the pipeline's crawled-data record.
package crawl

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/visiq/visibility-cli/internal/config"
	"github.com/visiq/visibility-cli/internal/model"
	"github.com/visiq/visibility-cli/internal/resilience"
	"github.com/visiq/visibility-cli/pkg/firecrawl"
)

// Crawler submits crawl jobs and waits for their pages.
type Crawler struct {
	client   firecrawl.Client
	maxPages int
}

// NewCrawler builds a crawler over the given client.
func NewCrawler(client firecrawl.Client, cfg config.FirecrawlConfig) *Crawler {
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = 25
	}
	return &Crawler{client: client, maxPages: maxPages}
}

// Run crawls the business website and returns the extracted record. The
// caller bounds the wait through ctx; polling inherits its deadline.
func (c *Crawler) Run(ctx context.Context, b model.Business) (*model.CrawledData, error) {
	if b.URL == "" {
		return nil, eris.New("crawl: business has no url")
	}

	resp, err := c.client.Crawl(ctx, firecrawl.CrawlRequest{
		URL:   b.URL,
		Limit: c.maxPages,
	})
	if err != nil {
		return nil, eris.Wrap(err, "crawl: submit")
	}
	if !resp.Success || resp.ID == "" {
		// A rejected job will be rejected again; never retried.
		return nil, resilience.MarkPermanent(eris.New("crawl: service rejected job"))
	}

	status, err := firecrawl.PollCrawl(ctx, c.client, resp.ID)
	if err != nil {
		return nil, err
	}
	if len(status.Data) == 0 {
		return nil, eris.Errorf("crawl: job %s returned no pages", resp.ID)
	}

	data := Extract(b.ID, b, status.Data)
	zap.L().Info("crawl complete",
		zap.String("business_id", b.ID),
		zap.Int("pages", len(status.Data)),
		zap.Bool("has_jsonld", data.RawMarkup != ""),
	)
	return &data, nil
}
