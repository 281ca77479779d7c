package clinic

import (
	"context"
	"fmt"

	"github.com/mlnyx/algo-dental/pkg/common/models"
)

type HistoryOptions struct {
	DefaultLimit int
	MaxLimit     int
}

type HistoryService struct {
	store Store
	opts  HistoryOptions
}

func NewHistoryService(store Store, opts HistoryOptions) *HistoryService {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 50
	}
	if opts.MaxLimit < opts.DefaultLimit {
		opts.MaxLimit = opts.DefaultLimit
	}
	return &HistoryService{store: store, opts: opts}
}

func (s *HistoryService) clamp(limit int) int {
	if limit <= 0 {
		return s.opts.DefaultLimit
	}
	if limit > s.opts.MaxLimit {
		return s.opts.MaxLimit
	}
	return limit
}

// Recent returns completed treatments, newest first.
func (s *HistoryService) Recent(ctx context.Context, limit int) ([]models.HistoryView, error) {
	records, err := s.store.ListRecentHistory(ctx, s.clamp(limit))
	if err != nil {
		return nil, err
	}
	views := make([]models.HistoryView, 0, len(records))
	for _, record := range records {
		views = append(views, record.View())
	}
	return views, nil
}

func (s *HistoryService) ChairEvents(ctx context.Context, chairID int, limit int) ([]models.ChairEvent, error) {
	if _, err := s.store.GetChair(ctx, chairID); err != nil {
		return nil, fmt.Errorf("chair events: %w", err)
	}
	events, err := s.store.ListChairEvents(ctx, chairID, s.clamp(limit))
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []models.ChairEvent{}
	}
	return events, nil
}
