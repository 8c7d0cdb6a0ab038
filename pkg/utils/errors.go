package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// --- Sentinel Errors for Categorization ---
var (
	ErrRetryFailed     = errors.New("request failed after all retries") // Wraps the last underlying error
	ErrClientHTTPError = errors.New("client HTTP error (4xx)")          // Wraps original error/status
	ErrServerHTTPError = errors.New("server HTTP error (5xx)")          // Wraps original error/status
	ErrOtherHTTPError  = errors.New("other HTTP error (non-2xx)")       // Wraps original error/status
	ErrFetchTimeout    = errors.New("fetch timed out")
	ErrFetchNetwork    = errors.New("fetch network error")

	ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

	ErrLocatorNotFound         = errors.New("locator: no matching element")
	ErrLocatorAmbiguous        = errors.New("locator: ambiguous structure")
	ErrLocatorMissingContainer = errors.New("locator: container missing")
	ErrMalformedRow            = errors.New("malformed table row") // Never leaves the record extractor

	ErrPublishRejected = errors.New("publish rejected")
	ErrPublishNetwork  = errors.New("publish transport error")

	ErrParsing          = errors.New("parsing error")  // Wraps specific parsing error (HTML, URL)
	ErrDatabase         = errors.New("database error") // Wraps badger errors
	ErrConfigValidation = errors.New("configuration validation error")
)

// WrapErrorf wraps a sentinel with a formatted message so errors.Is still matches.
func WrapErrorf(sentinel error, format string, args ...interface{}) error {
	if sentinel == nil {
		return fmt.Errorf(format, args...)
	}
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// statusCoder is implemented by errors that carry an HTTP status (fetch.FetchError).
type statusCoder interface {
	HTTPStatus() int
}

// CategorizeError maps an error to a predefined category string for the crawl report and logs.
func CategorizeError(err error) string {
	if err == nil {
		return "None"
	}

	// Context errors win: a cancelled leaf is not a site failure
	if errors.Is(err, context.Canceled) {
		return "System_ContextCanceled"
	}

	var sc statusCoder
	if errors.As(err, &sc) && sc.HTTPStatus() > 0 {
		return fmt.Sprintf("HTTP_%d", sc.HTTPStatus())
	}

	switch {
	case errors.Is(err, ErrRetryFailed):
		switch {
		case errors.Is(err, ErrServerHTTPError):
			return "RetryFailed_HTTPServer"
		case errors.Is(err, ErrClientHTTPError):
			return "RetryFailed_HTTPClient"
		case errors.Is(err, ErrFetchTimeout):
			return "RetryFailed_NetworkTimeout"
		case err == ErrRetryFailed:
			return "RetryFailed_Unknown" // Retry failed, but nothing identifies the cause
		}
		return "RetryFailed_NetworkOther"
	case errors.Is(err, ErrFetchTimeout):
		return "Network_Timeout"
	case errors.Is(err, ErrFetchNetwork):
		return "Network_Other"
	case errors.Is(err, ErrClientHTTPError):
		return "HTTP_4xx"
	case errors.Is(err, ErrServerHTTPError):
		return "HTTP_5xx"
	case errors.Is(err, ErrOtherHTTPError):
		return "HTTP_OtherStatus"
	case errors.Is(err, ErrRobotsDisallowed):
		return "Policy_Robots"
	case errors.Is(err, ErrLocatorMissingContainer):
		return "Locator_MissingContainer"
	case errors.Is(err, ErrLocatorAmbiguous):
		return "Locator_AmbiguousStructure"
	case errors.Is(err, ErrLocatorNotFound):
		return "Locator_NotFound"
	case errors.Is(err, ErrMalformedRow):
		return "Extraction_MalformedRow"
	case errors.Is(err, ErrPublishRejected):
		return "Publish_Rejected"
	case errors.Is(err, ErrPublishNetwork):
		return "Publish_Network"
	case errors.Is(err, ErrParsing):
		errMsg := err.Error()
		if strings.Contains(errMsg, "URL") {
			return "Content_ParsingURL"
		}
		if strings.Contains(errMsg, "HTML") {
			return "Content_ParsingHTML"
		}
		return "Content_ParsingOther"
	case errors.Is(err, ErrDatabase):
		return "Database_Other"
	case errors.Is(err, ErrConfigValidation):
		return "Config_Validation"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "System_ContextDeadlineExceeded"
	}

	// Network errors that escaped the fetch layer unwrapped
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Network_Timeout"
	}
	lowerErrMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lowerErrMsg, "timeout"):
		return "Network_TimeoutGeneric"
	case strings.Contains(lowerErrMsg, "connection refused"):
		return "Network_ConnectionRefused"
	case strings.Contains(lowerErrMsg, "no such host"):
		return "Network_DNSLookup"
	case strings.Contains(lowerErrMsg, "reset by peer"):
		return "Network_ConnectionReset"
	}

	return "Unknown"
}
