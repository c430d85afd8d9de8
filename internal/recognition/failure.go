package recognition

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"
)

// Result strings sent back to clients. Failures share the result channel with
// recognized text and are told apart by the FailurePrefix.
const (
	FailurePrefix = "Recognition Failed: "

	MsgKeyMissing    = FailurePrefix + "API key missing"
	MsgTooBlank      = FailurePrefix + "please write more clearly"
	MsgNetwork       = FailurePrefix + "network error, could not reach the recognition service"
	MsgInvalidKey    = FailurePrefix + "invalid API key"
	MsgPermission    = FailurePrefix + "permission denied by the recognition service"
	MsgBadRequest    = FailurePrefix + "bad request"
	MsgTooLarge      = FailurePrefix + "image too large"
	MsgRateLimited   = FailurePrefix + "rate limit exceeded, please wait before trying again"
	MsgServerError   = FailurePrefix + "recognition service error, try again later"
	MsgBlocked       = FailurePrefix + "content blocked by the provider's safety filter"
	MsgEmpty         = FailurePrefix + "empty response from the recognition service"
	MsgNoText        = FailurePrefix + "no legible text found"
	MsgDecode        = FailurePrefix + "could not parse the recognition response"
	MsgUnavailable   = FailurePrefix + "recognition service temporarily unavailable, try again later"
	msgEngineFmt     = FailurePrefix + "OCR engine error: %s"
	msgHTTPErrorFmt  = FailurePrefix + "HTTP error %d"
	msgUnexpectedFmt = FailurePrefix + "unexpected error: %s"
)

// Reason classifies a provider failure
type Reason int

const (
	ReasonStatus  Reason = iota // non-2xx HTTP status
	ReasonBlocked               // safety filtering
	ReasonEmpty                 // missing or empty result field
	ReasonNoText                // provider said nothing legible
	ReasonDecode                // body was not the expected JSON
	ReasonEngine                // engine-side processing error
)

// Failure is returned by engines for every provider-level problem
type Failure struct {
	Reason Reason
	Status int
	Detail string
}

func (f *Failure) Error() string {
	switch f.Reason {
	case ReasonStatus:
		return fmt.Sprintf("provider status %d: %s", f.Status, f.Detail)
	case ReasonBlocked:
		return "blocked: " + f.Detail
	case ReasonEmpty:
		return "empty result"
	case ReasonNoText:
		return "no text found"
	case ReasonDecode:
		return "decode response: " + f.Detail
	case ReasonEngine:
		return "engine error: " + f.Detail
	default:
		return "recognition failure"
	}
}

func statusFailure(status int, detail string) *Failure {
	return &Failure{Reason: ReasonStatus, Status: status, Detail: detail}
}

// Describe maps any error from a recognition attempt onto a result string
func Describe(err error) string {
	var failure *Failure
	if errors.As(err, &failure) {
		return describeFailure(failure)
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return MsgUnavailable
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return MsgNetwork
	}

	return fmt.Sprintf(msgUnexpectedFmt, err.Error())
}

func describeFailure(f *Failure) string {
	switch f.Reason {
	case ReasonStatus:
		return describeStatus(f.Status, f.Detail)
	case ReasonBlocked:
		return MsgBlocked
	case ReasonEmpty:
		return MsgEmpty
	case ReasonNoText:
		return MsgNoText
	case ReasonDecode:
		return MsgDecode
	case ReasonEngine:
		return fmt.Sprintf(msgEngineFmt, f.Detail)
	default:
		return fmt.Sprintf(msgUnexpectedFmt, f.Error())
	}
}

func describeStatus(status int, detail string) string {
	switch {
	case status == http.StatusUnauthorized:
		return MsgInvalidKey
	case (status == http.StatusBadRequest || status == http.StatusForbidden) && mentionsKey(detail):
		return MsgInvalidKey
	case status == http.StatusForbidden:
		return MsgPermission
	case status == http.StatusBadRequest:
		return MsgBadRequest
	case status == http.StatusRequestEntityTooLarge:
		return MsgTooLarge
	case status == http.StatusTooManyRequests:
		return MsgRateLimited
	case status >= 500 && status <= 599:
		return MsgServerError
	default:
		return fmt.Sprintf(msgHTTPErrorFmt, status)
	}
}

func mentionsKey(detail string) bool {
	detail = strings.ToLower(detail)
	return strings.Contains(detail, "api key") ||
		strings.Contains(detail, "api_key") ||
		strings.Contains(detail, "apikey")
}

// isServiceFault: failures that say the provider itself is unhealthy
func isServiceFault(err error) bool {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Reason == ReasonStatus && failure.Status >= 500
	}
	var urlErr *url.Error
	var netErr net.Error
	return errors.As(err, &urlErr) || errors.As(err, &netErr)
}
