package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/stylist/internal/common"
	"github.com/dmitrijs2005/stylist/internal/server/models"
)

const maxTryOnBody = 25 << 20

type tryOnRequest struct {
	PersonImage  string `json:"person_image"`
	GarmentImage string `json:"garment_image"`
}

type tryOnResponse struct {
	models.TryOnJob
	ContentType string              `json:"content_type,omitempty"`
	ImageBase64 string              `json:"image_base64,omitempty"`
	Entitlement *models.Entitlement `json:"entitlement,omitempty"`
}

// submitTryOn accepts JSON with base64 images or a multipart form with
// person_image and garment_image files, and blocks until the job finishes.
func (a *api) submitTryOn(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	r.Body = http.MaxBytesReader(w, r.Body, maxTryOnBody)

	person, garment, err := readTryOnImages(r)
	if err != nil {
		a.errs.write(w, r, err)
		return
	}

	if _, err := a.Ledger.CheckQuota(r.Context(), p.AccountID, 1); err != nil {
		a.errs.write(w, r, err)
		return
	}

	res, err := a.TryOns.Run(r.Context(), p.AccountID, person, garment)
	if err != nil {
		a.errs.write(w, r, err)
		return
	}

	out := tryOnResponse{TryOnJob: res.Job, ContentType: res.Image.ContentType, Entitlement: &res.Entitlement}
	if res.Job.ResultURL == "" {
		out.ImageBase64 = base64.StdEncoding.EncodeToString(res.Image.Data)
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) getTryOn(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Get(principal(r).AccountID, chi.URLParam(r, "id"))
	if err != nil {
		a.errs.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tryOnResponse{TryOnJob: job})
}

func readTryOnImages(r *http.Request) ([]byte, []byte, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxTryOnBody); err != nil {
			return nil, nil, fmt.Errorf("%w: malformed multipart body", common.ErrorValidation)
		}
		defer r.MultipartForm.RemoveAll()
		person, err := formFile(r.MultipartForm, "person_image")
		if err != nil {
			return nil, nil, err
		}
		garment, err := formFile(r.MultipartForm, "garment_image")
		if err != nil {
			return nil, nil, err
		}
		return person, garment, nil
	}

	var req tryOnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, nil, fmt.Errorf("%w: malformed JSON body", common.ErrorValidation)
	}
	person, err := decodeImage("person_image", req.PersonImage)
	if err != nil {
		return nil, nil, err
	}
	garment, err := decodeImage("garment_image", req.GarmentImage)
	if err != nil {
		return nil, nil, err
	}
	return person, garment, nil
}

func formFile(form *multipart.Form, field string) ([]byte, error) {
	files := form.File[field]
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s is required", common.ErrorValidation, field)
	}
	f, err := files[0].Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", common.ErrorValidation, field, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}

// decodeImage accepts bare base64 or a base64 data URI.
func decodeImage(field, s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); strings.HasPrefix(s, "data:") && i >= 0 {
		s = s[i+len(";base64,"):]
	}
	if s == "" {
		return nil, fmt.Errorf("%w: %s is required", common.ErrorValidation, field)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not valid base64", common.ErrorValidation, field)
	}
	return b, nil
}
