package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/logging"
	"github.com/dmitrijs2005/stylist/internal/server/gate"
	"github.com/dmitrijs2005/stylist/internal/server/outfits"
	"github.com/dmitrijs2005/stylist/internal/server/provider"
	"github.com/dmitrijs2005/stylist/internal/server/services"
	"github.com/dmitrijs2005/stylist/internal/server/tryon"
)

// Error codes returned in APIError.Code.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeTierRequired     = "TIER_REQUIRED"
	CodeQuotaExceeded    = "QUOTA_EXCEEDED"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeRateLimited      = "RATE_LIMITED"
	CodeTryOnUnavailable = "TRYON_UNAVAILABLE"
	CodeTryOnFailed      = "TRYON_FAILED"
	CodeTryOnTimedOut    = "TRYON_TIMED_OUT"
	CodeUpstreamFailed   = "UPSTREAM_FAILED"
	CodeUnavailable      = "SERVICE_UNAVAILABLE"
	CodeInternal         = "INTERNAL"
)

// APIError is the body of every non-2xx response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type errorBody struct {
	Error APIError `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, status int, apiErr APIError) {
	writeJSON(w, status, errorBody{Error: apiErr})
}

// errorWriter maps domain errors to responses. Details of provider and
// storage failures are logged, never returned.
type errorWriter struct {
	logger logging.Logger
}

func (ew errorWriter) write(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr, retryAfter := classify(err)
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int((retryAfter+time.Second-1)/time.Second)))
	}
	switch {
	case status >= 500:
		ew.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	case status != http.StatusUnauthorized:
		ew.logger.Debug(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "error", err)
	}
	writeAPIError(w, status, apiErr)
}

func classify(err error) (int, APIError, time.Duration) {
	var (
		tierErr  *gate.TierRequiredError
		quotaErr *services.QuotaExceededError
		subErr   *tryon.SubmissionError
		jobErr   *tryon.JobError
		upErr    *outfits.UpstreamError
	)

	switch {
	case errors.As(err, &tierErr):
		return http.StatusForbidden, APIError{
			Code:    CodeTierRequired,
			Message: "upgrade required",
			Details: map[string]any{"required_tier": tierErr.Required, "current_tier": tierErr.Current},
		}, 0
	case errors.As(err, &quotaErr):
		return http.StatusPaymentRequired, APIError{
			Code:    CodeQuotaExceeded,
			Message: "monthly quota exceeded",
			Details: map[string]any{"used": quotaErr.Used, "limit": quotaErr.Limit},
		}, 0
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		return http.StatusUnauthorized, APIError{Code: CodeUnauthorized, Message: "please sign in again"}, 0
	case errors.As(err, &subErr):
		retry := time.Duration(0)
		if subErr.Kind == provider.SubmitRateLimited {
			retry = subErr.RetryAfter
			if retry <= 0 {
				retry = 30 * time.Second
			}
		}
		return http.StatusServiceUnavailable, APIError{Code: CodeTryOnUnavailable, Message: "try-on is unavailable right now"}, retry
	case errors.Is(err, tryon.ErrBusy):
		return http.StatusServiceUnavailable, APIError{Code: CodeTryOnUnavailable, Message: "try-on is busy, please retry"}, 5 * time.Second
	case errors.As(err, &jobErr) && jobErr.Kind == tryon.JobTimedOut:
		return http.StatusGatewayTimeout, APIError{
			Code:    CodeTryOnTimedOut,
			Message: "try-on took too long, please try again",
			Details: map[string]any{"job_id": jobErr.JobID},
		}, 0
	case errors.As(err, &jobErr):
		return http.StatusBadGateway, APIError{
			Code:    CodeTryOnFailed,
			Message: "try-on failed, please try again",
			Details: map[string]any{"job_id": jobErr.JobID},
		}, 0
	case errors.Is(err, outfits.ErrNotConfigured):
		return http.StatusServiceUnavailable, APIError{Code: CodeUnavailable, Message: "outfit generation is not available"}, 0
	case errors.As(err, &upErr):
		return http.StatusBadGateway, APIError{Code: CodeUpstreamFailed, Message: "outfit generation failed, please try again"}, 0
	case errors.Is(err, common.ErrorValidation), outfits.IsInvalidInput(err):
		return http.StatusBadRequest, APIError{Code: CodeInvalidRequest, Message: err.Error()}, 0
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, APIError{Code: CodeNotFound, Message: "not found"}, 0
	case errors.Is(err, common.ErrorAlreadyExists):
		return http.StatusConflict, APIError{Code: CodeConflict, Message: "already exists"}, 0
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, APIError{Code: CodeUnavailable, Message: "request canceled"}, 0
	default:
		return http.StatusInternalServerError, APIError{Code: CodeInternal, Message: "internal error"}, 0
	}
}
