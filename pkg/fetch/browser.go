package fetch

import (
	"context"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/Noname397/football-analysis/pkg/config"
	applog "github.com/Noname397/football-analysis/pkg/log"
)

// BrowserFetcher renders pages in headless Chrome and returns the final DOM.
// The browser starts on first use and is shared by every tab until Close.
type BrowserFetcher struct {
	cfg       config.BrowserConfig
	userAgent string
	log       *logrus.Entry

	once          sync.Once
	startErr      error
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func NewBrowserFetcher(cfg config.BrowserConfig, userAgent string, log *logrus.Entry) *BrowserFetcher {
	return &BrowserFetcher{
		cfg:       cfg,
		userAgent: userAgent,
		log:       log.WithField("fetcher", "browser"),
	}
}

func (b *BrowserFetcher) start() error {
	b.once.Do(func() {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", config.GetEffectiveHeadless(b.cfg)),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("blink-settings", "imagesEnabled=false"),
			chromedp.UserAgent(b.userAgent),
		)
		if b.cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
		}

		allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx,
			chromedp.WithLogf(applog.ChromeLogf(b.log)),
			chromedp.WithErrorf(applog.ChromeLogf(b.log)),
		)
		// Launch now so a missing Chrome fails the first fetch, not a later one
		if err := chromedp.Run(browserCtx); err != nil {
			browserCancel()
			allocCancel()
			b.startErr = err
			return
		}
		b.allocCancel = allocCancel
		b.browserCtx = browserCtx
		b.browserCancel = browserCancel
		b.log.Info("Headless browser started")
	})
	return b.startErr
}

// Fetch implements PageFetcher: navigate, wait for the body, let scripts settle, read the DOM
func (b *BrowserFetcher) Fetch(ctx context.Context, url string, _ Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := b.start(); err != nil {
		return "", &FetchError{Kind: KindNetwork, URL: url, Err: err}
	}

	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)
	defer tabCancel()
	tabCtx, timeoutCancel := context.WithTimeout(tabCtx, b.cfg.NavigationTimeout)
	defer timeoutCancel()

	// Tie the tab to the caller's context
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	resp, err := chromedp.RunResponse(tabCtx, chromedp.Navigate(url))
	if err != nil {
		return "", b.classify(ctx, tabCtx, url, err)
	}
	if resp != nil && (resp.Status < 200 || resp.Status >= 300) {
		return "", statusError(url, int(resp.Status), nil)
	}

	var html string
	err = chromedp.Run(tabCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(b.cfg.SettleInterval),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", b.classify(ctx, tabCtx, url, err)
	}
	b.log.WithFields(logrus.Fields{"url": url, "bytes": len(html)}).Debug("Rendered page")
	return html, nil
}

func (b *BrowserFetcher) classify(ctx, tabCtx context.Context, url string, err error) error {
	if ctx.Err() != nil {
		return contextError(ctx, err)
	}
	if tabCtx.Err() == context.DeadlineExceeded {
		return &FetchError{Kind: KindTimeout, URL: url, Err: err}
	}
	return &FetchError{Kind: KindNetwork, URL: url, Err: err}
}

// Close shuts the browser down. Safe to call when it never started.
func (b *BrowserFetcher) Close() {
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
}
