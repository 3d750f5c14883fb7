package retry

import (
	"errors"
	"io"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/xerrors"
)

// On selects which outcomes are retried, using envoy's retry-on vocabulary.
type On struct {
	serverError    bool
	gatewayError   bool
	connectFailure bool
	retriable4xx   bool
	statusCodes    []int
}

// NewDefaultRetryOn retries gateway errors, 409, 429 and connection
// failures. A plain 500 usually means the request itself is wrong.
func NewDefaultRetryOn() *On {
	return &On{
		gatewayError:   true,
		connectFailure: true,
		retriable4xx:   true,
		statusCodes:    []int{http.StatusTooManyRequests},
	}
}

// NewRetryOnFromString parses a comma separated list such as
// "5xx,connect-failure,429".
func NewRetryOnFromString(s string) (*On, error) {
	o := &On{}
	for _, policy := range strings.Split(s, ",") {
		switch policy = strings.TrimSpace(policy); policy {
		case "5xx":
			o.serverError = true
		case "gateway-error":
			o.gatewayError = true
		case "connect-failure":
			o.connectFailure = true
		case "retriable-4xx":
			o.retriable4xx = true
		default:
			statusCode, err := strconv.Atoi(policy)
			if err != nil {
				return nil, xerrors.Errorf("invalid retry-on policy %q: %w", policy, err)
			}
			o.statusCodes = append(o.statusCodes, statusCode)
		}
	}
	return o, nil
}

func (o *On) CheckResponse(response *http.Response) bool {
	code := response.StatusCode
	switch {
	case o.serverError && code >= 500 && code < 600:
		return true
	case o.gatewayError && code >= 502 && code <= 504:
		return true
	case o.retriable4xx && code == http.StatusConflict:
		return true
	}
	return slices.Contains(o.statusCodes, code)
}

// CheckError reports whether err looks like the upstream never answered:
// a reset, a refused connection, a timeout or an early EOF.
func (o *On) CheckError(err error) bool {
	if !o.connectFailure && !o.serverError {
		return false
	}

	type temporary interface{ Temporary() bool }
	var terr temporary
	if errors.As(err, &terr) && terr.Temporary() {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	var oerr *net.OpError
	if errors.As(err, &oerr) && oerr.Op == "dial" {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
