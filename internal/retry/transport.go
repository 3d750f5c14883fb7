package retry

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/xerrors"
)

// Transport retries a request while RetryOn matches and RetryStrategy
// allows. Requests with a body are replayed through GetBody; a request whose
// body cannot be replayed is sent once.
type Transport struct {
	Base          http.RoundTripper
	RetryStrategy Strategy
	RetryOn       *On
	Logger        *slog.Logger
}

// NewClient returns an http.Client that backs off exponentially on gateway
// errors, conflicts and connection failures.
func NewClient(logger *slog.Logger, maxRetryCount uint) *http.Client {
	return &http.Client{
		Transport: &Transport{
			Base:          http.DefaultTransport,
			RetryStrategy: NewExponentialBackOff(100*time.Millisecond, 10*time.Second, maxRetryCount, nil),
			RetryOn:       NewDefaultRetryOn(),
			Logger:        logger,
		},
	}
}

func (t *Transport) RoundTrip(request *http.Request) (*http.Response, error) {
	for retryCount := uint(0); ; retryCount++ {
		attempt, err := rewind(request, retryCount)
		if err != nil {
			return nil, err
		}

		sleep, exceeded := t.retryStrategy().Sleep(retryCount)
		exceeded = exceeded || !replayable(request)

		response, err := t.base().RoundTrip(attempt)
		if err != nil {
			if exceeded || t.RetryOn == nil || !t.RetryOn.CheckError(err) {
				return nil, err
			}
			t.logger().Debug("retrying request", "method", request.Method, "url", request.URL.String(), "retry", retryCount+1, "error", err)
		} else {
			if exceeded || t.RetryOn == nil || !t.RetryOn.CheckResponse(response) {
				return response, nil
			}
			_, _ = io.Copy(io.Discard, response.Body)
			response.Body.Close()
			t.logger().Debug("retrying request", "method", request.Method, "url", request.URL.String(), "retry", retryCount+1, "status", response.StatusCode)
		}

		if err := wait(request.Context(), sleep); err != nil {
			return nil, err
		}
	}
}

// rewind returns the request to send for the given retry. The first attempt
// uses the original request.
func rewind(request *http.Request, retryCount uint) (*http.Request, error) {
	if retryCount == 0 || request.Body == nil || request.Body == http.NoBody {
		return request, nil
	}
	body, err := request.GetBody()
	if err != nil {
		return nil, xerrors.Errorf("failed to rewind request body: %w", err)
	}
	attempt := request.Clone(request.Context())
	attempt.Body = body
	return attempt, nil
}

func replayable(request *http.Request) bool {
	return request.Body == nil || request.Body == http.NoBody || request.GetBody != nil
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) retryStrategy() Strategy {
	if t.RetryStrategy != nil {
		return t.RetryStrategy
	}
	return NewNever()
}

func (t *Transport) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}
