package fetch

import (
	"context"
	"errors"
	"fmt"
)

// Mode selects how a page is retrieved
type Mode int

const (
	ModeDirect   Mode = iota // plain HTTP GET
	ModeRendered             // headless browser, for pages whose tables are filled by scripts
)

func (m Mode) String() string {
	if m == ModeRendered {
		return "rendered"
	}
	return "direct"
}

// Options are per-call fetch parameters
type Options struct {
	Mode Mode
}

// PageFetcher retrieves the HTML of one URL. Non-2xx statuses, timeouts and
// transport failures are reported as *FetchError.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, opts Options) (string, error)
}

// PageFetcherFunc adapts a function to PageFetcher
type PageFetcherFunc func(ctx context.Context, url string, opts Options) (string, error)

func (f PageFetcherFunc) Fetch(ctx context.Context, url string, opts Options) (string, error) {
	return f(ctx, url, opts)
}

var ErrModeUnavailable = errors.New("fetch mode not configured")

// ModeRouter dispatches each call to the fetcher registered for its mode
type ModeRouter struct {
	Direct   PageFetcher
	Rendered PageFetcher // may be nil when no page kind is rendered
}

func (r *ModeRouter) Fetch(ctx context.Context, url string, opts Options) (string, error) {
	var target PageFetcher
	switch opts.Mode {
	case ModeDirect:
		target = r.Direct
	case ModeRendered:
		target = r.Rendered
	}
	if target == nil {
		return "", fmt.Errorf("%w: %s", ErrModeUnavailable, opts.Mode)
	}
	return target.Fetch(ctx, url, opts)
}
