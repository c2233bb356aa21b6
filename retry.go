package reviewloader

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/googleapis/gax-go/v2"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/googleapi"

	"go.nownabe.dev/reviewloader/dataset"
)

// FailureClass decides what a stage does with an error.
type FailureClass int

const (
	// Transient failures are retried with backoff.
	Transient FailureClass = iota + 1
	// PermanentInput failures come from the data or its address: a missing
	// object, an unparsable file, an invalid query.
	PermanentInput
	// PermanentInfrastructure failures abort the run: auth, cancellation,
	// failed load jobs and anything unrecognized.
	PermanentInfrastructure
)

func (c FailureClass) String() string {
	switch c {
	case Transient:
		return "transient"
	case PermanentInput:
		return "permanent-input"
	case PermanentInfrastructure:
		return "permanent-infrastructure"
	default:
		return "unknown"
	}
}

var (
	transientReasons = map[string]bool{
		"backendError":         true,
		"internalError":        true,
		"rateLimitExceeded":    true,
		"jobRateLimitExceeded": true,
	}
	inputReasons = map[string]bool{
		"invalid":      true,
		"invalidQuery": true,
		"notFound":     true,
	}
)

// Classify maps err onto a FailureClass. A nil error has class 0.
func Classify(err error) FailureClass {
	if err == nil {
		return 0
	}

	switch {
	case errors.Is(err, errLoadJobFailed):
		return PermanentInfrastructure
	case errors.Is(err, context.Canceled):
		return PermanentInfrastructure
	case errors.Is(err, context.DeadlineExceeded):
		return Transient
	case errors.Is(err, ErrMalformedSource),
		errors.Is(err, dataset.ErrNoHeader),
		errors.Is(err, storage.ErrObjectNotExist),
		errors.Is(err, storage.ErrBucketNotExist):
		return PermanentInput
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		for _, item := range gerr.Errors {
			if transientReasons[item.Reason] {
				return Transient
			}
		}
		switch gerr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return Transient
		case http.StatusBadRequest, http.StatusNotFound:
			return PermanentInput
		default:
			return PermanentInfrastructure
		}
	}

	var berr *bigquery.Error
	if errors.As(err, &berr) {
		switch {
		case transientReasons[berr.Reason]:
			return Transient
		case inputReasons[berr.Reason]:
			return PermanentInput
		default:
			return PermanentInfrastructure
		}
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return Transient
	}

	return PermanentInfrastructure
}

func hasHTTPStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}

// retry calls f until it succeeds, fails with a non-transient error, or
// attempts run out. Each attempt gets its own timeout.
func retry(
	ctx context.Context,
	op string,
	attempts int,
	bo gax.Backoff,
	timeout time.Duration,
	f func(context.Context) error,
) error {
	l := log.Ctx(ctx)

	for i := 1; ; i++ {
		err := attempt(ctx, timeout, f)
		if err == nil {
			return nil
		}

		if Classify(err) != Transient || i >= attempts || ctx.Err() != nil {
			return err
		}

		d := bo.Pause()
		l.Warn().Err(err).Int("attempt", i).Dur("backoff", d).Msgf("%s failed, retrying", op)

		if err := gax.Sleep(ctx, d); err != nil {
			return err
		}
	}
}

func attempt(ctx context.Context, timeout time.Duration, f func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return f(ctx)
}
