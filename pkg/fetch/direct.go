package fetch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/Noname397/football-analysis/pkg/config"
	"github.com/Noname397/football-analysis/pkg/utils"
)

// DirectFetcher issues plain HTTP GETs through resty and retries transient failures
// (network errors, 5xx, 429) with exponential backoff and jitter.
type DirectFetcher struct {
	client            *resty.Client
	maxRetries        int
	initialRetryDelay time.Duration
	maxRetryDelay     time.Duration
	log               *logrus.Entry
}

// NewDirectFetcher wraps httpClient (see NewClient) in a resty client carrying browser-like headers
func NewDirectFetcher(httpClient *http.Client, cfg *config.AppConfig, log *logrus.Entry) *DirectFetcher {
	client := resty.NewWithClient(httpClient)
	client.SetHeaders(map[string]string{
		"User-Agent":      cfg.UserAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
	})

	return &DirectFetcher{
		client:            client,
		maxRetries:        config.GetEffectiveMaxRetries(*cfg),
		initialRetryDelay: cfg.InitialRetryDelay,
		maxRetryDelay:     cfg.MaxRetryDelay,
		log:               log.WithField("fetcher", "direct"),
	}
}

// Fetch implements PageFetcher. The mode in opts is ignored.
func (f *DirectFetcher) Fetch(ctx context.Context, url string, _ Options) (string, error) {
	reqLog := f.log.WithField("url", url)

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return "", contextError(ctx, lastErr)
		}

		if attempt > 0 {
			delay := f.backoff(attempt)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": f.maxRetries, "delay": delay}).Warn("Retrying request...")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", contextError(ctx, lastErr)
			}
		}

		resp, err := f.client.R().SetContext(ctx).Get(url)
		if err != nil {
			if ctx.Err() != nil {
				return "", contextError(ctx, err)
			}
			lastErr = transportError(url, err)
			reqLog.WithField("attempt", attempt).Warnf("Network error: %v", err)
			continue
		}

		status := resp.StatusCode()
		resLog := reqLog.WithFields(logrus.Fields{"status_code": status, "attempt": attempt})
		switch {
		case status >= 200 && status < 300:
			resLog.Debug("Successfully fetched")
			return resp.String(), nil
		case status >= 500 || status == http.StatusTooManyRequests:
			resLog.Warn("Retryable status")
			lastErr = statusError(url, status, nil)
			continue
		default:
			resLog.Warn("Non-retryable status")
			return "", statusError(url, status, nil)
		}
	}

	reqLog.Errorf("All %d fetch attempts failed. Last error: %v", f.maxRetries+1, lastErr)
	var fe *FetchError
	if errors.As(lastErr, &fe) {
		if fe.Err != nil {
			fe.Err = fmt.Errorf("%w after %d attempts: %w", utils.ErrRetryFailed, f.maxRetries+1, fe.Err)
		} else {
			fe.Err = fmt.Errorf("%w after %d attempts", utils.ErrRetryFailed, f.maxRetries+1)
		}
		return "", fe
	}
	return "", utils.ErrRetryFailed
}

// backoff returns initial * 2^(attempt-1) capped at the max delay, with +/-10% jitter
func (f *DirectFetcher) backoff(attempt int) time.Duration {
	delay := time.Duration(float64(f.initialRetryDelay) * math.Pow(2, float64(attempt-1)))
	if delay <= 0 || (f.maxRetryDelay > 0 && delay > f.maxRetryDelay) {
		delay = f.maxRetryDelay
	}
	if spread := int64(delay) / 5; spread > 0 {
		delay += time.Duration(rand.Int63n(spread)) - delay/10
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

func transportError(url string, err error) *FetchError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &FetchError{Kind: KindTimeout, URL: url, Err: err}
	}
	return &FetchError{Kind: KindNetwork, URL: url, Err: err}
}

// contextError reports a cancelled fetch. The context error is always matchable
// with errors.Is; the last attempt's failure is kept for the message.
func contextError(ctx context.Context, last error) error {
	if last != nil {
		return fmt.Errorf("%w (last error: %v)", ctx.Err(), last)
	}
	return ctx.Err()
}
