package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/stylist/internal/client/client"
	"github.com/dmitrijs2005/stylist/internal/client/models"
	"github.com/dmitrijs2005/stylist/internal/client/repositories/history"
	"github.com/dmitrijs2005/stylist/internal/filex"
)

const (
	// MaxInputImageSize bounds each image sent for a try-on.
	MaxInputImageSize = 10 << 20
	maxOutfitRequest  = 64 << 10
)

var ErrInvalidOutfitRequest = errors.New("outfit request must be a JSON object")

// TryOnOutcome describes a try-on whose image was saved locally.
type TryOnOutcome struct {
	Job        *models.TryOn
	OutputPath string
	Size       int
}

// StylingService runs try-ons and outfit generation for the CLI.
type StylingService interface {
	TryOn(ctx context.Context, personPath, garmentPath, outPath string) (*TryOnOutcome, error)
	Outfit(ctx context.Context, requestPath string) (*client.OutfitsResult, error)
	History(ctx context.Context, limit int) ([]models.HistoryEntry, error)
}

type stylingService struct {
	api     client.API
	history history.Repository
	now     func() time.Time
}

func NewStylingService(api client.API, h history.Repository) StylingService {
	return &stylingService{api: api, history: h, now: time.Now}
}

// TryOn uploads both images, waits for the server and writes the result
// to outPath. Successful runs are added to the local history.
func (s *stylingService) TryOn(ctx context.Context, personPath, garmentPath, outPath string) (*TryOnOutcome, error) {
	person, err := filex.ReadLimited(personPath, MaxInputImageSize)
	if err != nil {
		return nil, fmt.Errorf("person image: %w", err)
	}
	garment, err := filex.ReadLimited(garmentPath, MaxInputImageSize)
	if err != nil {
		return nil, fmt.Errorf("garment image: %w", err)
	}

	job, err := s.api.TryOn(ctx,
		client.Upload{Name: filepath.Base(personPath), Data: person},
		client.Upload{Name: filepath.Base(garmentPath), Data: garment})
	if err != nil {
		return nil, err
	}

	img, err := s.resultImage(ctx, job)
	if err != nil {
		return nil, err
	}
	if err := filex.WriteAtomic(outPath, img, 0o644); err != nil {
		return nil, fmt.Errorf("save result: %w", err)
	}

	created := job.SubmittedAt
	if created.IsZero() {
		created = s.now()
	}
	entry := models.HistoryEntry{
		JobID:       job.JobID,
		PersonPath:  personPath,
		GarmentPath: garmentPath,
		OutputPath:  outPath,
		Status:      job.Status,
		CreatedAt:   created,
	}
	if err := s.history.Add(ctx, entry); err != nil {
		return nil, err
	}
	return &TryOnOutcome{Job: job, OutputPath: outPath, Size: len(img)}, nil
}

func (s *stylingService) resultImage(ctx context.Context, job *models.TryOn) ([]byte, error) {
	switch {
	case job.ImageBase64 != "":
		img, err := base64.StdEncoding.DecodeString(job.ImageBase64)
		if err != nil {
			return nil, fmt.Errorf("decode result image: %w", err)
		}
		return img, nil
	case job.ImageURL != "":
		return s.api.Download(ctx, job.ImageURL)
	}
	return nil, errors.New("server returned no result image")
}

// Outfit forwards the JSON object stored at requestPath.
func (s *stylingService) Outfit(ctx context.Context, requestPath string) (*client.OutfitsResult, error) {
	body, err := filex.ReadLimited(requestPath, maxOutfitRequest)
	if err != nil {
		return nil, err
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutfitRequest, err)
	}
	return s.api.Outfits(ctx, body)
}

func (s *stylingService) History(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	return s.history.Recent(ctx, limit)
}
