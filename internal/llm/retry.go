package llm

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/googleapis/gax-go/v2/apierror"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
}

type retryingClient struct {
	Client
	policy RetryPolicy
	log    zerolog.Logger
}

// WithRetry retries transient failures of c with bounded exponential backoff.
// Client errors other than rate limiting are returned immediately.
func WithRetry(c Client, policy RetryPolicy, log zerolog.Logger) Client {
	return &retryingClient{Client: c, policy: policy, log: log}
}

func (r *retryingClient) IsFlagged(ctx context.Context, text string) (bool, error) {
	var flagged bool
	err := r.retry(ctx, OperationModeration, func() error {
		var err error
		flagged, err = r.Client.IsFlagged(ctx, text)
		return err
	})
	return flagged, err
}

func (r *retryingClient) Complete(ctx context.Context, req CompletionRequest) (*string, error) {
	var reply *string
	err := r.retry(ctx, OperationCompletion, func() error {
		var err error
		reply, err = r.Client.Complete(ctx, req)
		return err
	})
	return reply, err
}

func (r *retryingClient) retry(ctx context.Context, operation string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	if r.policy.InitialInterval > 0 {
		b.InitialInterval = r.policy.InitialInterval
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, r.policy.MaxRetries), ctx)

	return backoff.RetryNotify(func() error {
		err := fn()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		r.log.Warn().Err(err).Str("operation", operation).Dur("wait", wait).Msg("remote model call failed, retrying")
	})
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrEmptyPrompt) {
		return false
	}

	var (
		openaiErr  *openai.APIError
		requestErr *openai.RequestError
		googleErr  *googleapi.Error
		gaxErr     *apierror.APIError
	)
	switch {
	case errors.As(err, &openaiErr):
		return retryableStatus(openaiErr.HTTPStatusCode)
	case errors.As(err, &requestErr):
		return retryableStatus(requestErr.HTTPStatusCode)
	case errors.As(err, &googleErr):
		return retryableStatus(googleErr.Code)
	case errors.As(err, &gaxErr):
		if code := gaxErr.HTTPCode(); code > 0 {
			return retryableStatus(code)
		}
		if st := gaxErr.GRPCStatus(); st != nil {
			return retryableCode(st.Code())
		}
	}
	if st, ok := status.FromError(err); ok {
		return retryableCode(st.Code())
	}
	// Transport-level failure.
	return true
}

func retryableStatus(code int) bool {
	if code == 0 {
		return true
	}
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func retryableCode(code codes.Code) bool {
	switch code {
	case codes.ResourceExhausted, codes.Unavailable, codes.Aborted, codes.Internal, codes.Unknown:
		return true
	default:
		return false
	}
}
