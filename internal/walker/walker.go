// Package walker drives rule-based link traversal over a single site using
// the Colly engine. It follows traversal rules to expand the frontier,
// extracts and normalizes records on extraction-rule pages, and reports
// everything through an Observer handed in at construction.
package walker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/opendatahub/dataset-crawler/internal/dataset"
	"github.com/opendatahub/dataset-crawler/internal/extract"
	"github.com/opendatahub/dataset-crawler/internal/sites"
)

// Observer receives walk callbacks. Implementations must be safe for
// concurrent use: page chains run concurrently up to the fetch-pool bound.
type Observer interface {
	// OnPageCrawled fires once per extraction-attempted page that returned.
	OnPageCrawled(pageURL string)
	// OnRecordFound delivers each normalized record.
	OnRecordFound(rec dataset.Record)
	// OnPageError reports a contained per-page failure.
	OnPageError(pageURL string, err error)
}

// Config carries the politeness and budget knobs for one walk.
type Config struct {
	// PageBudget caps extraction-attempted pages; 0 means unlimited.
	PageBudget int
	// Parallelism bounds in-flight fetches per domain (default 4).
	Parallelism int
	// Delay is the minimum inter-request delay per domain (default 2s).
	Delay time.Duration
	// RandomDelay adds jitter on top of Delay (default = Delay).
	RandomDelay time.Duration
	// Timeout bounds a single page fetch (default 30s).
	Timeout time.Duration
	// UserAgent identifies the crawler to remote sites.
	UserAgent string
	// MaxTags caps raw tag candidates per page.
	MaxTags int
}

const (
	defaultParallelism = 4
	defaultDelay       = 2 * time.Second
	defaultTimeout     = 30 * time.Second
	defaultUserAgent   = "Mozilla/5.0 (compatible; DatasetCrawler/1.0)"
)

func (c Config) withDefaults() Config {
	if c.Parallelism <= 0 {
		c.Parallelism = defaultParallelism
	}
	if c.Delay <= 0 {
		c.Delay = defaultDelay
	}
	if c.RandomDelay <= 0 {
		c.RandomDelay = c.Delay
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	return c
}

// Walker performs one finite, non-restartable walk over a site.
type Walker struct {
	site      sites.Site
	cfg       Config
	rules     ruleSet
	extractor *extract.Extractor
	obs       Observer
	logger    *zap.Logger

	visited   sync.Map
	attempted atomic.Int64
	started   atomic.Bool
}

// New compiles the site's rules and prepares a Walker. The observer is fixed
// at construction; there are no mutable callback slots.
func New(site sites.Site, cfg Config, obs Observer, logger *zap.Logger) (*Walker, error) {
	if obs == nil {
		return nil, errors.New("observer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	rules, err := compileRules(site.Rules)
	if err != nil {
		return nil, fmt.Errorf("compile site rules: %w", err)
	}
	cfg = cfg.withDefaults()
	return &Walker{
		site:      site,
		cfg:       cfg,
		rules:     rules,
		extractor: extract.New(cfg.MaxTags),
		obs:       obs,
		logger:    logger,
	}, nil
}

// Walk runs the traversal to frontier or budget exhaustion. Cancellation is
// cooperative: ctx is checked before each fetch dispatch, in-flight fetches
// drain. A Walker walks once; calling Walk again is an error.
func (w *Walker) Walk(ctx context.Context, jobID string) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("walker is not restartable")
	}

	collector, err := w.initCollector(ctx, jobID)
	if err != nil {
		return err
	}

	w.markVisited(w.site.StartURL)
	if err := collector.Visit(w.site.StartURL); err != nil {
		return fmt.Errorf("visit start url %s: %w", w.site.StartURL, err)
	}
	collector.Wait()
	return nil
}

func (w *Walker) initCollector(ctx context.Context, jobID string) (*colly.Collector, error) {
	collector := colly.NewCollector(
		colly.AllowedDomains(w.site.Domain),
		colly.UserAgent(w.cfg.UserAgent),
		colly.Async(true),
	)
	collector.IgnoreRobotsTxt = false
	collector.SetRequestTimeout(w.cfg.Timeout)

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: w.cfg.Parallelism,
		Delay:       w.cfg.Delay,
		RandomDelay: w.cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("set collector limits: %w", err)
	}

	collector.OnRequest(w.handleRequest(ctx))
	collector.OnHTML("a[href]", w.handleLink(ctx))
	collector.OnResponse(w.handleResponse(jobID))
	collector.OnError(func(r *colly.Response, err error) {
		w.obs.OnPageError(r.Request.URL.String(), err)
	})

	return collector, nil
}

// handleRequest is the cooperative cancellation and budget gate: it runs
// before each dispatch and aborts instead of fetching.
func (w *Walker) handleRequest(ctx context.Context) func(*colly.Request) {
	return func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		pageURL := r.URL.String()
		role, ok := w.rules.Match(pageURL)
		if ok && role == sites.RoleExtraction {
			if w.cfg.PageBudget > 0 && w.attempted.Add(1) > int64(w.cfg.PageBudget) {
				r.Abort()
			}
		}
	}
}

func (w *Walker) handleLink(ctx context.Context) func(*colly.HTMLElement) {
	return func(e *colly.HTMLElement) {
		if ctx.Err() != nil || w.budgetExhausted() {
			return
		}
		link := e.Request.AbsoluteURL(e.Attr("href"))
		if link == "" {
			return
		}
		if _, ok := w.rules.Match(link); !ok {
			return
		}
		if !w.markVisited(link) {
			return
		}
		if err := e.Request.Visit(link); err != nil && !isBenignVisitError(err) {
			w.logger.Debug("link visit refused", zap.String("url", link), zap.Error(err))
		}
	}
}

func (w *Walker) handleResponse(jobID string) func(*colly.Response) {
	return func(r *colly.Response) {
		pageURL := r.Request.URL.String()
		role, ok := w.rules.Match(pageURL)
		if !ok || role != sites.RoleExtraction {
			return
		}
		w.obs.OnPageCrawled(pageURL)

		doc, err := extract.Parse(r.Body)
		if err != nil {
			w.obs.OnPageError(pageURL, err)
			return
		}
		cand, found := w.extractor.Extract(doc, pageURL, w.site.Selectors)
		if !found {
			w.logger.Debug("no usable record on page", zap.String("url", pageURL))
			return
		}
		rec, err := dataset.Normalize(cand, w.site.SourceName, jobID)
		if err != nil {
			w.logger.Warn("candidate rejected",
				zap.String("url", pageURL),
				zap.Error(err),
			)
			return
		}
		w.obs.OnRecordFound(rec)
	}
}

// markVisited returns true the first time a normalized URL is seen.
func (w *Walker) markVisited(rawURL string) bool {
	key, err := NormalizeURL(rawURL)
	if err != nil {
		key = rawURL
	}
	_, loaded := w.visited.LoadOrStore(key, struct{}{})
	return !loaded
}

func (w *Walker) budgetExhausted() bool {
	return w.cfg.PageBudget > 0 && w.attempted.Load() >= int64(w.cfg.PageBudget)
}

func isBenignVisitError(err error) bool {
	var alreadyVisited *colly.AlreadyVisitedError
	return errors.As(err, &alreadyVisited) ||
		errors.Is(err, colly.ErrForbiddenDomain) ||
		errors.Is(err, colly.ErrRobotsTxtBlocked)
}
