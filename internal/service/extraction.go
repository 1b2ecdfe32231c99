package service

import (
	"context"

	"github.com/Strob0t/Upchuck/internal/domain/extraction"
	"github.com/Strob0t/Upchuck/internal/port/database"
)

// ExtractionService serves read access to extracted data points.
type ExtractionService struct {
	store database.Store
}

// NewExtractionService creates a new ExtractionService.
func NewExtractionService(store database.Store) *ExtractionService {
	return &ExtractionService{store: store}
}

// List returns extractions matching filter, newest first.
func (s *ExtractionService) List(ctx context.Context, filter database.ExtractionFilter) ([]extraction.ExtractedData, error) {
	return s.store.ListExtractions(ctx, filter)
}
