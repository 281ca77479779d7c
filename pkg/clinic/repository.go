package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mlnyx/algo-dental/pkg/common/logger"
	"github.com/mlnyx/algo-dental/pkg/common/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type chairRow struct {
	ID           int        `gorm:"primaryKey;autoIncrement:false;column:id"`
	Status       string     `gorm:"column:status;size:32;not null"`
	PatientName  *string    `gorm:"column:patient_name"`
	PatientPhone *string    `gorm:"column:patient_phone"`
	WaitTime     int        `gorm:"column:wait_time;not null"`
	StartedAt    *time.Time `gorm:"column:started_at"`
	QueueEntryID *int64     `gorm:"column:queue_entry_id"`
	UpdatedAt    *time.Time `gorm:"column:updated_at;autoUpdateTime:false"`
}

func (chairRow) TableName() string { return "chairs" }

type patientRow struct {
	ID            int64     `gorm:"primaryKey;column:id"`
	Name          string    `gorm:"column:name;not null;index"`
	Phone         string    `gorm:"column:phone;not null"`
	TreatmentType string    `gorm:"column:treatment_type;not null"`
	Priority      string    `gorm:"column:priority;size:16;not null"`
	ArrivalTime   time.Time `gorm:"column:arrival_time;not null"`
	IsWaiting     bool      `gorm:"column:is_waiting;not null;index"`
}

func (patientRow) TableName() string { return "patients" }

type historyRow struct {
	ID            int64     `gorm:"primaryKey;column:id"`
	ChairID       int       `gorm:"column:chair_id;not null;index"`
	PatientName   string    `gorm:"column:patient_name;not null"`
	PatientPhone  string    `gorm:"column:patient_phone;not null"`
	TreatmentType string    `gorm:"column:treatment_type;not null"`
	StartedAt     time.Time `gorm:"column:started_at;not null"`
	EndedAt       time.Time `gorm:"column:ended_at;not null;index"`
	Duration      *int      `gorm:"column:duration"`
	Notes         *string   `gorm:"column:notes"`
	QueueEntryID  *int64    `gorm:"column:queue_entry_id"`
}

func (historyRow) TableName() string { return "treatment_history" }

type chairEventRow struct {
	ID        int64          `gorm:"primaryKey;column:id"`
	ChairID   int            `gorm:"column:chair_id;not null;index"`
	Action    string         `gorm:"column:action;size:64;not null"`
	Payload   datatypes.JSON `gorm:"column:payload"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime:false"`
}

func (chairEventRow) TableName() string { return "chair_events" }

var chairColumns = []string{
	"status", "patient_name", "patient_phone", "wait_time",
	"started_at", "queue_entry_id", "updated_at",
}

const waitingOrder = "CASE WHEN priority = 'high' THEN 1 ELSE 0 END DESC, arrival_time ASC, id ASC"

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&chairRow{},
		&patientRow{},
		&historyRow{},
		&chairEventRow{},
	)
}

func (r *Repository) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repository{db: tx})
	})
}

func (r *Repository) ListChairs(ctx context.Context) ([]models.Chair, error) {
	var rows []chairRow
	if err := r.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	chairs := make([]models.Chair, 0, len(rows))
	for _, row := range rows {
		chairs = append(chairs, row.toModel())
	}
	return chairs, nil
}

func (r *Repository) GetChair(ctx context.Context, id int) (models.Chair, error) {
	var row chairRow
	if err := r.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Chair{}, fmt.Errorf("chair %d: %w", id, ErrChairNotFound)
		}
		return models.Chair{}, err
	}
	return row.toModel(), nil
}

func (r *Repository) SaveChair(ctx context.Context, chair *models.Chair) error {
	row := chairFromModel(*chair)
	result := r.db.WithContext(ctx).Model(&chairRow{}).Where("id = ?", chair.ID).Select(chairColumns).Updates(&row)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("chair %d: %w", chair.ID, ErrChairNotFound)
	}
	return nil
}

func (r *Repository) CreateChairs(ctx context.Context, chairs []models.Chair) error {
	if len(chairs) == 0 {
		return nil
	}
	rows := make([]chairRow, 0, len(chairs))
	for _, chair := range chairs {
		rows = append(rows, chairFromModel(chair))
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *Repository) CountChairs(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&chairRow{}).Count(&count).Error
	return count, err
}

func (r *Repository) CreatePatient(ctx context.Context, patient *models.Patient) error {
	row := &patientRow{
		Name:          patient.Name,
		Phone:         patient.Phone,
		TreatmentType: patient.TreatmentType,
		Priority:      patient.Priority,
		ArrivalTime:   patient.ArrivalTime,
		IsWaiting:     patient.IsWaiting,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	patient.ID = row.ID
	return nil
}

func (r *Repository) ListWaitingPatients(ctx context.Context) ([]models.Patient, error) {
	var rows []patientRow
	if err := r.db.WithContext(ctx).Where("is_waiting = ?", true).Order(waitingOrder).Find(&rows).Error; err != nil {
		return nil, err
	}
	patients := make([]models.Patient, 0, len(rows))
	for _, row := range rows {
		patients = append(patients, row.toModel())
	}
	return patients, nil
}

func (r *Repository) FindWaitingPatientByName(ctx context.Context, name string) (models.Patient, bool, error) {
	var row patientRow
	err := r.db.WithContext(ctx).Where("name = ? AND is_waiting = ?", name, true).Order("id").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Patient{}, false, nil
	}
	if err != nil {
		return models.Patient{}, false, err
	}
	return row.toModel(), true, nil
}

func (r *Repository) MarkPatientConsumed(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).Model(&patientRow{}).Where("id = ?", id).Update("is_waiting", false).Error
}

func (r *Repository) DeletePatient(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&patientRow{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("patient %d: %w", id, ErrPatientNotFound)
	}
	return nil
}

func (r *Repository) CountWaitingPatients(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&patientRow{}).Where("is_waiting = ?", true).Count(&count).Error
	return count, err
}

func (r *Repository) AppendHistory(ctx context.Context, record *models.TreatmentHistory) error {
	row := &historyRow{
		ChairID:       record.ChairID,
		PatientName:   record.PatientName,
		PatientPhone:  record.PatientPhone,
		TreatmentType: record.TreatmentType,
		StartedAt:     record.StartedAt,
		EndedAt:       record.EndedAt,
		Duration:      record.Duration,
		Notes:         record.Notes,
		QueueEntryID:  record.QueueEntryID,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	record.ID = row.ID
	return nil
}

func (r *Repository) ListRecentHistory(ctx context.Context, limit int) ([]models.TreatmentHistory, error) {
	var rows []historyRow
	if err := r.db.WithContext(ctx).Order("ended_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	records := make([]models.TreatmentHistory, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.TreatmentHistory{
			ID:            row.ID,
			ChairID:       row.ChairID,
			PatientName:   row.PatientName,
			PatientPhone:  row.PatientPhone,
			TreatmentType: row.TreatmentType,
			StartedAt:     row.StartedAt,
			EndedAt:       row.EndedAt,
			Duration:      row.Duration,
			Notes:         row.Notes,
			QueueEntryID:  row.QueueEntryID,
		})
	}
	return records, nil
}

func (r *Repository) CountHistoryEndedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&historyRow{}).
		Where("ended_at >= ? AND ended_at < ?", from, to).
		Count(&count).Error
	return count, err
}

func (r *Repository) AppendChairEvent(ctx context.Context, event *models.ChairEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal chair event payload: %w", err)
	}
	row := &chairEventRow{
		ChairID:   event.ChairID,
		Action:    event.Action,
		Payload:   datatypes.JSON(payload),
		CreatedAt: event.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	event.ID = row.ID
	return nil
}

func (r *Repository) ListChairEvents(ctx context.Context, chairID int, limit int) ([]models.ChairEvent, error) {
	var rows []chairEventRow
	if err := r.db.WithContext(ctx).Where("chair_id = ?", chairID).Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	events := make([]models.ChairEvent, 0, len(rows))
	for _, row := range rows {
		events = append(events, models.ChairEvent{
			ID:        row.ID,
			ChairID:   row.ChairID,
			Action:    row.Action,
			Payload:   jsonMap(row.Payload),
			CreatedAt: row.CreatedAt,
		})
	}
	return events, nil
}

func (row chairRow) toModel() models.Chair {
	return models.Chair{
		ID:           row.ID,
		Status:       row.Status,
		PatientName:  row.PatientName,
		PatientPhone: row.PatientPhone,
		WaitTime:     row.WaitTime,
		StartedAt:    row.StartedAt,
		QueueEntryID: row.QueueEntryID,
		UpdatedAt:    row.UpdatedAt,
	}
}

func chairFromModel(chair models.Chair) chairRow {
	return chairRow{
		ID:           chair.ID,
		Status:       chair.Status,
		PatientName:  chair.PatientName,
		PatientPhone: chair.PatientPhone,
		WaitTime:     chair.WaitTime,
		StartedAt:    chair.StartedAt,
		QueueEntryID: chair.QueueEntryID,
		UpdatedAt:    chair.UpdatedAt,
	}
}

func (row patientRow) toModel() models.Patient {
	return models.Patient{
		ID:            row.ID,
		Name:          row.Name,
		Phone:         row.Phone,
		TreatmentType: row.TreatmentType,
		Priority:      row.Priority,
		ArrivalTime:   row.ArrivalTime,
		IsWaiting:     row.IsWaiting,
	}
}

func jsonMap(data datatypes.JSON) map[string]interface{} {
	if len(data) == 0 {
		return nil
	}
	var result map[string]interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		logger.Log.WithError(err).Warn("chair event payload is not a JSON object")
		return nil
	}
	return result
}
