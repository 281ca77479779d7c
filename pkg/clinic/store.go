package clinic

import (
	"context"
	"time"

	"github.com/mlnyx/algo-dental/pkg/common/models"
)

// Store is the persistence surface the clinic services run against.
// Implementations return ErrChairNotFound / ErrPatientNotFound for unknown ids.
type Store interface {
	// Transaction runs fn against a store bound to one database transaction.
	// Any error returned by fn rolls the transaction back.
	Transaction(ctx context.Context, fn func(tx Store) error) error

	ListChairs(ctx context.Context) ([]models.Chair, error)
	GetChair(ctx context.Context, id int) (models.Chair, error)
	SaveChair(ctx context.Context, chair *models.Chair) error
	CreateChairs(ctx context.Context, chairs []models.Chair) error
	CountChairs(ctx context.Context) (int64, error)

	CreatePatient(ctx context.Context, patient *models.Patient) error
	ListWaitingPatients(ctx context.Context) ([]models.Patient, error)
	FindWaitingPatientByName(ctx context.Context, name string) (models.Patient, bool, error)
	MarkPatientConsumed(ctx context.Context, id int64) error
	DeletePatient(ctx context.Context, id int64) error
	CountWaitingPatients(ctx context.Context) (int64, error)

	AppendHistory(ctx context.Context, record *models.TreatmentHistory) error
	ListRecentHistory(ctx context.Context, limit int) ([]models.TreatmentHistory, error)
	CountHistoryEndedBetween(ctx context.Context, from, to time.Time) (int64, error)

	AppendChairEvent(ctx context.Context, event *models.ChairEvent) error
	ListChairEvents(ctx context.Context, chairID int, limit int) ([]models.ChairEvent, error)
}
