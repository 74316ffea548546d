package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/stylist/internal/server/gate"
	"github.com/dmitrijs2005/stylist/internal/server/models"
)

const (
	defaultUsageLimit = 50
	maxUsageLimit     = 500
)

type usageEventView struct {
	Kind      models.UsageKind  `json:"kind"`
	Amount    int               `json:"amount"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

func principal(r *http.Request) *gate.Principal {
	p, _ := gate.PrincipalFrom(r.Context())
	return p
}

func (a *api) me(w http.ResponseWriter, r *http.Request) {
	acc, ent, err := a.Accounts.Me(r.Context(), principal(r).AccountID)
	if err != nil {
		a.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{Account: viewOf(acc), Entitlement: ent})
}

func (a *api) deleteMe(w http.ResponseWriter, r *http.Request) {
	if err := a.Accounts.Delete(r.Context(), principal(r).AccountID); err != nil {
		a.errs.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) entitlement(w http.ResponseWriter, r *http.Request) {
	ent, err := a.Ledger.CurrentStatus(r.Context(), principal(r).AccountID)
	if err != nil {
		a.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

func (a *api) usage(w http.ResponseWriter, r *http.Request) {
	limit := defaultUsageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeAPIError(w, http.StatusBadRequest, APIError{Code: CodeInvalidRequest, Message: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxUsageLimit)
	}

	events, err := a.Ledger.UsageHistory(r.Context(), principal(r).AccountID, limit)
	if err != nil {
		a.errs.write(w, r, err)
		return
	}
	out := make([]usageEventView, 0, len(events))
	for _, e := range events {
		out = append(out, usageEventView{
			Kind:      e.Kind,
			Amount:    e.Amount,
			Metadata:  e.Metadata,
			CreatedAt: e.CreatedAt.UTC(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (a *api) generateOutfits(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, APIError{Code: CodeInvalidRequest, Message: "unreadable body"})
		return
	}
	res, err := a.Outfits.Generate(r.Context(), principal(r).AccountID, body)
	if err != nil {
		a.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res.Body, "entitlement": res.Entitlement})
}
