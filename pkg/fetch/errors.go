package fetch

import (
	"fmt"

	"github.com/Noname397/football-analysis/pkg/utils"
)

// FetchErrorKind classifies a failed page fetch
type FetchErrorKind int

const (
	KindTimeout FetchErrorKind = iota
	KindNetwork
	KindHTTPStatus
)

func (k FetchErrorKind) String() string {
	switch k {
	case KindTimeout:
		return "Timeout"
	case KindNetwork:
		return "Network"
	case KindHTTPStatus:
		return "HttpStatus"
	}
	return fmt.Sprintf("FetchErrorKind(%d)", int(k))
}

// FetchError is returned by every PageFetcher for transport and status failures
type FetchError struct {
	Kind   FetchErrorKind
	Status int // set when Kind is KindHTTPStatus
	URL    string
	Err    error // underlying cause, may be nil
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	if e.Kind == KindHTTPStatus {
		msg = fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// HTTPStatus exposes the status code to utils.CategorizeError
func (e *FetchError) HTTPStatus() int {
	if e.Kind != KindHTTPStatus {
		return 0
	}
	return e.Status
}

// Unwrap exposes the matching utils sentinel plus the underlying cause
func (e *FetchError) Unwrap() []error {
	errs := []error{e.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *FetchError) sentinel() error {
	switch e.Kind {
	case KindTimeout:
		return utils.ErrFetchTimeout
	case KindNetwork:
		return utils.ErrFetchNetwork
	}
	switch {
	case e.Status >= 500:
		return utils.ErrServerHTTPError
	case e.Status >= 400:
		return utils.ErrClientHTTPError
	}
	return utils.ErrOtherHTTPError
}

func statusError(url string, status int, cause error) *FetchError {
	return &FetchError{Kind: KindHTTPStatus, Status: status, URL: url, Err: cause}
}
