package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/aws/smithy-go"
)

var retryableStatus = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// AWS error codes that mean the same as a 429 or 503.
var retryableAPICodes = map[string]bool{
	"ThrottlingException":                    true,
	"Throttling":                             true,
	"ProvisionedThroughputExceededException": true,
	"RequestLimitExceeded":                   true,
	"RequestTimeout":                         true,
	"SlowDown":                               true,
}

type statusCoder interface {
	HTTPStatusCode() int
}

// IsRetryable reports whether err is a transient failure: a network timeout,
// reset, refused connection or DNS failure, an HTTP 408/429/5xx gateway
// status, or any error whose message mentions a timeout.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	var sc statusCoder
	if errors.As(err, &sc) && retryableStatus[sc.HTTPStatusCode()] {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && retryableAPICodes[apiErr.ErrorCode()] {
		return true
	}

	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
