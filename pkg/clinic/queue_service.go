package clinic

import (
	"context"
	"fmt"
	"time"

	"github.com/mlnyx/algo-dental/pkg/common/logger"
	"github.com/mlnyx/algo-dental/pkg/common/models"
	"github.com/mlnyx/algo-dental/pkg/observability/metrics"
)

// QueueService manages the walk-in queue. Waiting rows are ordered high
// priority first, then by arrival.
type QueueService struct {
	store     Store
	publisher Publisher
	now       func() time.Time
}

func NewQueueService(store Store, publisher Publisher) *QueueService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &QueueService{store: store, publisher: publisher, now: time.Now}
}

func (s *QueueService) Enqueue(ctx context.Context, req models.PatientCreateRequest) (models.PatientView, error) {
	priority := req.Priority
	if priority == "" {
		priority = models.PriorityNormal
	}
	patient := &models.Patient{
		Name:          req.Name,
		Phone:         req.Phone,
		TreatmentType: req.TreatmentType,
		Priority:      priority,
		ArrivalTime:   s.now(),
		IsWaiting:     true,
	}
	if err := s.store.CreatePatient(ctx, patient); err != nil {
		return models.PatientView{}, fmt.Errorf("enqueue patient: %w", err)
	}

	metrics.QueueOperation("enqueue")
	publish(ctx, s.publisher, models.EventQueuePatientAdded, map[string]interface{}{
		"key":            fmt.Sprintf("patient-%d", patient.ID),
		"patient_id":     patient.ID,
		"name":           patient.Name,
		"priority":       patient.Priority,
		"treatment_type": patient.TreatmentType,
		"arrival_time":   patient.ArrivalTime,
	})
	logger.WithFields(map[string]interface{}{
		"patient_id": patient.ID,
		"priority":   patient.Priority,
	}).Info("patient queued")

	return patient.View(), nil
}

func (s *QueueService) List(ctx context.Context) ([]models.PatientView, error) {
	patients, err := s.store.ListWaitingPatients(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]models.PatientView, 0, len(patients))
	for _, p := range patients {
		views = append(views, p.View())
	}
	return views, nil
}

// Remove deletes the entry whether or not it is still waiting.
func (s *QueueService) Remove(ctx context.Context, id int64) error {
	if err := s.store.DeletePatient(ctx, id); err != nil {
		return fmt.Errorf("remove patient: %w", err)
	}

	metrics.QueueOperation("remove")
	publish(ctx, s.publisher, models.EventQueuePatientRemoved, map[string]interface{}{
		"key":        fmt.Sprintf("patient-%d", id),
		"patient_id": id,
	})
	logger.WithField("patient_id", id).Info("patient removed from queue")
	return nil
}
