package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noname397/football-analysis/pkg/config"
	"github.com/Noname397/football-analysis/pkg/utils"
)

// testConfig returns an AppConfig with fast retry delays for testing
func testConfig(maxRetries int) *config.AppConfig {
	return &config.AppConfig{
		UserAgent:         "fbref-crawler-test",
		MaxRetries:        &maxRetries,
		InitialRetryDelay: 5 * time.Millisecond,
		MaxRetryDelay:     20 * time.Millisecond,
	}
}

// testLogger returns a logger that discards output
func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func testDirect(maxRetries int) *DirectFetcher {
	client := NewClient(config.HTTPClientConfig{
		Timeout:          5 * time.Second,
		CloudflareBypass: new(bool),
	}, testLogger())
	return NewDirectFetcher(client, testConfig(maxRetries), testLogger())
}

// statusServer returns status codes in sequence and counts attempts
func statusServer(t *testing.T, statusCodes []int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	attempts := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idx := int(attempts.Add(1)) - 1
		if idx >= len(statusCodes) {
			idx = len(statusCodes) - 1
		}
		w.WriteHeader(statusCodes[idx])
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server, attempts
}

func TestDirectFetch_Success(t *testing.T) {
	server, attempts := statusServer(t, []int{http.StatusOK}, "<html><body>ok</body></html>")

	html, err := testDirect(3).Fetch(context.Background(), server.URL, Options{})
	require.NoError(t, err)
	assert.Contains(t, html, "ok")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestDirectFetch_SendsUserAgent(t *testing.T) {
	agents := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents <- r.Header.Get("User-Agent")
	}))
	defer server.Close()

	_, err := testDirect(0).Fetch(context.Background(), server.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, "fbref-crawler-test", <-agents)
}

func TestDirectFetch_RetriesServerErrors(t *testing.T) {
	server, attempts := statusServer(t, []int{503, 502, 200}, "recovered")

	html, err := testDirect(3).Fetch(context.Background(), server.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, "recovered", html)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestDirectFetch_ExhaustedRetriesKeepStatus(t *testing.T) {
	server, attempts := statusServer(t, []int{503}, "")

	_, err := testDirect(2).Fetch(context.Background(), server.URL, Options{})
	require.Error(t, err)
	assert.Equal(t, int32(3), attempts.Load())

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindHTTPStatus, fe.Kind)
	assert.Equal(t, 503, fe.Status)
	assert.True(t, errors.Is(err, utils.ErrServerHTTPError))
	assert.True(t, errors.Is(err, utils.ErrRetryFailed))
	assert.Equal(t, "HTTP_503", utils.CategorizeError(err))
}

func TestDirectFetch_ClientErrorNotRetried(t *testing.T) {
	server, attempts := statusServer(t, []int{404}, "")

	_, err := testDirect(3).Fetch(context.Background(), server.URL, Options{})
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 404, fe.Status)
	assert.Equal(t, int32(1), attempts.Load())
	assert.True(t, errors.Is(err, utils.ErrClientHTTPError))
}

func TestDirectFetch_TooManyRequestsRetried(t *testing.T) {
	server, attempts := statusServer(t, []int{429, 200}, "ok")

	_, err := testDirect(2).Fetch(context.Background(), server.URL, Options{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestDirectFetch_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := testDirect(1).Fetch(context.Background(), url, Options{})
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindNetwork, fe.Kind)
	assert.True(t, errors.Is(err, utils.ErrFetchNetwork))
}

func TestDirectFetch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	client := NewClient(config.HTTPClientConfig{Timeout: 50 * time.Millisecond, CloudflareBypass: new(bool)}, testLogger())
	f := NewDirectFetcher(client, testConfig(0), testLogger())

	_, err := f.Fetch(context.Background(), server.URL, Options{})
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindTimeout, fe.Kind)
	assert.True(t, errors.Is(err, utils.ErrFetchTimeout))
	assert.Equal(t, "RetryFailed_NetworkTimeout", utils.CategorizeError(err))
}

func TestDirectFetch_CancelledContext(t *testing.T) {
	server, attempts := statusServer(t, []int{200}, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testDirect(3).Fetch(ctx, server.URL, Options{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), attempts.Load())
}

func TestFetchError_Messages(t *testing.T) {
	err := statusError("https://fbref.com/en/squads/x/", 503, nil)
	assert.Equal(t, "fetch https://fbref.com/en/squads/x/: HTTP 503", err.Error())
	assert.Equal(t, 503, err.HTTPStatus())

	timeout := &FetchError{Kind: KindTimeout, URL: "u", Err: context.DeadlineExceeded}
	assert.Equal(t, 0, timeout.HTTPStatus())
	assert.True(t, errors.Is(timeout, context.DeadlineExceeded))
	assert.True(t, errors.Is(timeout, utils.ErrFetchTimeout))

	other := statusError("u", 304, nil)
	assert.True(t, errors.Is(other, utils.ErrOtherHTTPError))
}

func TestModeRouter(t *testing.T) {
	direct := PageFetcherFunc(func(ctx context.Context, url string, opts Options) (string, error) {
		return "direct:" + url, nil
	})
	router := &ModeRouter{Direct: direct}

	html, err := router.Fetch(context.Background(), "u", Options{Mode: ModeDirect})
	require.NoError(t, err)
	assert.Equal(t, "direct:u", html)

	_, err = router.Fetch(context.Background(), "u", Options{Mode: ModeRendered})
	assert.ErrorIs(t, err, ErrModeUnavailable)

	router.Rendered = PageFetcherFunc(func(ctx context.Context, url string, opts Options) (string, error) {
		return "rendered:" + url, nil
	})
	html, err = router.Fetch(context.Background(), "u", Options{Mode: ModeRendered})
	require.NoError(t, err)
	assert.Equal(t, "rendered:u", html)
}
