package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/server/services"
)

// billingEvent applies a lifecycle event posted by the billing collaborator.
// Signature verification of the billing provider happens upstream; here only
// the shared secret is checked.
func (a *api) billingEvent(w http.ResponseWriter, r *http.Request) {
	if a.BillingSecret == "" {
		writeAPIError(w, http.StatusServiceUnavailable, APIError{Code: CodeUnavailable, Message: "billing events are disabled"})
		return
	}
	got := r.Header.Get(common.BillingSecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.BillingSecret)) != 1 {
		writeAPIError(w, http.StatusUnauthorized, APIError{Code: CodeUnauthorized, Message: "invalid billing secret"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, APIError{Code: CodeInvalidRequest, Message: "unreadable body"})
		return
	}
	var event services.BillingEvent
	if err := json.Unmarshal(body, &event); err != nil {
		writeAPIError(w, http.StatusBadRequest, APIError{Code: CodeInvalidRequest, Message: "malformed event"})
		return
	}

	changed, err := a.Billing.Apply(r.Context(), event)
	if err != nil {
		a.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}
