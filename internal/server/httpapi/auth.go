package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/server/models"
	"github.com/dmitrijs2005/stylist/internal/server/services"
)

const maxJSONBody = 64 << 10

type credentialsRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type accountView struct {
	ID          string    `json:"id"`
	Email       *string   `json:"email,omitempty"`
	DisplayName string    `json:"display_name"`
	Guest       bool      `json:"guest"`
	CreatedAt   time.Time `json:"created_at"`
}

type sessionResponse struct {
	Account     accountView         `json:"account"`
	Entitlement models.Entitlement  `json:"entitlement"`
	Tokens      *services.TokenPair `json:"tokens"`
}

type meResponse struct {
	Account     accountView        `json:"account"`
	Entitlement models.Entitlement `json:"entitlement"`
}

func viewOf(acc *models.Account) accountView {
	return accountView{
		ID:          acc.ID,
		Email:       acc.Email,
		DisplayName: acc.DisplayName,
		Guest:       acc.IsGuest(),
		CreatedAt:   acc.CreatedAt,
	}
}

func sessionOf(s *services.Session) sessionResponse {
	return sessionResponse{Account: viewOf(s.Account), Entitlement: s.Entitlement, Tokens: s.Tokens}
}

// decodeJSON reads at most maxJSONBody bytes of JSON into v. An empty body
// leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return fmt.Errorf("%w: malformed JSON body", common.ErrorValidation)
	}
	return nil
}

func (a *api) register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		a.errs.write(w, r, err)
		return
	}
	s, err := a.Accounts.Register(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		a.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionOf(s))
}

func (a *api) guest(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		a.errs.write(w, r, err)
		return
	}
	s, err := a.Accounts.RegisterGuest(r.Context(), req.DisplayName)
	if err != nil {
		a.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionOf(s))
}

func (a *api) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		a.errs.write(w, r, err)
		return
	}
	s, err := a.Accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionOf(s))
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		a.errs.write(w, r, err)
		return
	}
	pair, err := a.Tokens.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		a.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

func (a *api) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		a.errs.write(w, r, err)
		return
	}
	if err := a.Accounts.Logout(r.Context(), req.RefreshToken); err != nil {
		a.errs.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
