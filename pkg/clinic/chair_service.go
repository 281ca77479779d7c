package clinic

import (
	"context"
	"fmt"
	"time"

	"github.com/mlnyx/algo-dental/pkg/common/logger"
	"github.com/mlnyx/algo-dental/pkg/common/models"
	"github.com/mlnyx/algo-dental/pkg/observability/metrics"
)

const (
	defaultEstimatedMinutes = 30
	defaultCompletionLabel  = "일반진료"
)

type ChairOptions struct {
	// EstimatedMinutes is the wait time shown while a chair is active.
	EstimatedMinutes int
	// CompletionLabel is the treatment type written to history.
	CompletionLabel string
}

// ChairService applies status transitions to chairs. Starting a treatment
// consumes the matching waiting patient; finishing one appends history.
type ChairService struct {
	store     Store
	locker    Locker
	publisher Publisher
	opts      ChairOptions
	now       func() time.Time
}

func NewChairService(store Store, locker Locker, publisher Publisher, opts ChairOptions) *ChairService {
	if locker == nil {
		locker = NewLocalLocker(0)
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if opts.EstimatedMinutes <= 0 {
		opts.EstimatedMinutes = defaultEstimatedMinutes
	}
	if opts.CompletionLabel == "" {
		opts.CompletionLabel = defaultCompletionLabel
	}
	return &ChairService{store: store, locker: locker, publisher: publisher, opts: opts, now: time.Now}
}

func (s *ChairService) List(ctx context.Context) ([]models.ChairView, error) {
	chairs, err := s.store.ListChairs(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]models.ChairView, 0, len(chairs))
	for _, chair := range chairs {
		views = append(views, chair.View())
	}
	return views, nil
}

type transition struct {
	action   string
	chair    models.Chair
	consumed *models.Patient
	history  *models.TreatmentHistory
}

func (s *ChairService) Update(ctx context.Context, chairID int, req models.ChairUpdateRequest) (models.ChairView, error) {
	release, err := s.locker.Lock(ctx, chairID)
	if err != nil {
		return models.ChairView{}, err
	}
	defer release()

	var result transition
	err = s.store.Transaction(ctx, func(tx Store) error {
		chair, err := tx.GetChair(ctx, chairID)
		if err != nil {
			return err
		}
		result, err = s.apply(ctx, tx, chair, req)
		return err
	})
	if err != nil {
		return models.ChairView{}, fmt.Errorf("update chair %d: %w", chairID, err)
	}

	s.announce(ctx, result)
	return result.chair.View(), nil
}

func (s *ChairService) apply(ctx context.Context, tx Store, chair models.Chair, req models.ChairUpdateRequest) (transition, error) {
	now := s.now()
	result := transition{action: models.ActionChairUpdated}
	payload := map[string]interface{}{
		"requested_status": req.Status,
		"previous_status":  chair.Status,
	}

	switch {
	case req.Status == models.ChairActive && chair.Status == models.ChairIdle:
		chair.Status = models.ChairActive
		chair.PatientName = req.PatientName
		chair.PatientPhone = req.PatientPhone
		chair.StartedAt = &now
		chair.WaitTime = s.opts.EstimatedMinutes
		chair.QueueEntryID = nil

		if req.PatientName != nil && *req.PatientName != "" {
			patient, found, err := tx.FindWaitingPatientByName(ctx, *req.PatientName)
			if err != nil {
				return transition{}, err
			}
			if found {
				if err := tx.MarkPatientConsumed(ctx, patient.ID); err != nil {
					return transition{}, err
				}
				patient.IsWaiting = false
				chair.QueueEntryID = &patient.ID
				result.consumed = &patient
				payload["queue_entry_id"] = patient.ID
			}
			payload["patient_name"] = *req.PatientName
		}
		result.action = models.ActionTreatmentStarted

	case req.Status == models.ChairIdle && chair.Status == models.ChairActive:
		if chair.PatientName != nil && *chair.PatientName != "" && chair.StartedAt != nil {
			duration := int(now.Sub(*chair.StartedAt) / time.Minute)
			if duration < 0 {
				duration = 0
			}
			phone := ""
			if chair.PatientPhone != nil {
				phone = *chair.PatientPhone
			}
			record := &models.TreatmentHistory{
				ChairID:       chair.ID,
				PatientName:   *chair.PatientName,
				PatientPhone:  phone,
				TreatmentType: s.opts.CompletionLabel,
				StartedAt:     *chair.StartedAt,
				EndedAt:       now,
				Duration:      &duration,
				QueueEntryID:  chair.QueueEntryID,
			}
			if err := tx.AppendHistory(ctx, record); err != nil {
				return transition{}, err
			}
			result.history = record
			payload["history_id"] = record.ID
			payload["duration"] = duration
		}
		chair.Status = models.ChairIdle
		chair.PatientName = nil
		chair.PatientPhone = nil
		chair.StartedAt = nil
		chair.QueueEntryID = nil
		chair.WaitTime = 0
		result.action = models.ActionTreatmentCompleted
	}

	if result.action != models.ActionChairUpdated {
		chair.UpdatedAt = &now
		if err := tx.SaveChair(ctx, &chair); err != nil {
			return transition{}, err
		}
	}
	result.chair = chair

	event := &models.ChairEvent{
		ChairID:   chair.ID,
		Action:    result.action,
		Payload:   payload,
		CreatedAt: now,
	}
	if err := tx.AppendChairEvent(ctx, event); err != nil {
		return transition{}, err
	}
	return result, nil
}

func (s *ChairService) announce(ctx context.Context, result transition) {
	chair := result.chair
	entry := logger.WithFields(map[string]interface{}{
		"chair_id": chair.ID,
		"action":   result.action,
		"status":   chair.Status,
	})

	switch result.action {
	case models.ActionTreatmentStarted:
		metrics.TreatmentStarted()
		data := map[string]interface{}{
			"key":        fmt.Sprintf("chair-%d", chair.ID),
			"chair_id":   chair.ID,
			"started_at": chair.StartedAt,
		}
		if chair.PatientName != nil {
			data["patient_name"] = *chair.PatientName
		}
		if result.consumed != nil {
			data["queue_entry_id"] = result.consumed.ID
		}
		publish(ctx, s.publisher, models.EventTreatmentStarted, data)
		entry.WithField("queue_matched", result.consumed != nil).Info("treatment started")

	case models.ActionTreatmentCompleted:
		if h := result.history; h != nil {
			metrics.TreatmentCompleted(*h.Duration)
			publish(ctx, s.publisher, models.EventTreatmentCompleted, map[string]interface{}{
				"key":          fmt.Sprintf("chair-%d", chair.ID),
				"chair_id":     chair.ID,
				"history_id":   h.ID,
				"patient_name": h.PatientName,
				"duration":     *h.Duration,
				"ended_at":     h.EndedAt,
			})
			entry = entry.WithField("duration", *h.Duration)
		}
		entry.Info("treatment completed")

	default:
		entry.Debug("chair update left state unchanged")
	}
}
