package models

import (
	"time"
)

// Chair statuses. Maintenance is reserved; no transition produces it.
const (
	ChairIdle        = "idle"
	ChairActive      = "active"
	ChairMaintenance = "maintenance"
)

// Queue priorities, ordered high before normal.
const (
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Chair event actions recorded in the audit trail.
const (
	ActionTreatmentStarted   = "treatment_started"
	ActionTreatmentCompleted = "treatment_completed"
	ActionChairUpdated       = "chair_updated"
)

// Event types published on the clinic topic.
const (
	EventTreatmentStarted    = "treatment.started"
	EventTreatmentCompleted  = "treatment.completed"
	EventQueuePatientAdded   = "queue.patient_added"
	EventQueuePatientRemoved = "queue.patient_removed"
)

const (
	clockLayout    = "15:04:05"
	arrivalLayout  = "15:04"
	dateTimeLayout = "2006-01-02 15:04"
)

// Domain records

type Chair struct {
	ID           int
	Status       string
	PatientName  *string
	PatientPhone *string
	WaitTime     int
	StartedAt    *time.Time
	QueueEntryID *int64
	UpdatedAt    *time.Time
}

type Patient struct {
	ID            int64
	Name          string
	Phone         string
	TreatmentType string
	Priority      string
	ArrivalTime   time.Time
	IsWaiting     bool
}

type TreatmentHistory struct {
	ID            int64
	ChairID       int
	PatientName   string
	PatientPhone  string
	TreatmentType string
	StartedAt     time.Time
	EndedAt       time.Time
	Duration      *int
	Notes         *string
	QueueEntryID  *int64
}

type ChairEvent struct {
	ID        int64                  `json:"id"`
	ChairID   int                    `json:"chairId"`
	Action    string                 `json:"action"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// Requests

type ChairUpdateRequest struct {
	Status       string  `json:"status"`
	PatientName  *string `json:"patient_name,omitempty"`
	PatientPhone *string `json:"patient_phone,omitempty"`
}

type PatientCreateRequest struct {
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	TreatmentType string `json:"treatment_type"`
	Priority      string `json:"priority,omitempty"`
}

// Responses

type ChairView struct {
	ID           int     `json:"id"`
	Status       string  `json:"status"`
	Patient      *string `json:"patient"`
	PatientPhone *string `json:"patientPhone"`
	WaitTime     int     `json:"waitTime"`
	LastUpdate   *string `json:"lastUpdate"`
}

type PatientView struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	ArrivalTime string `json:"arrivalTime"`
}

type HistoryView struct {
	ID            int64   `json:"id"`
	ChairID       int     `json:"chairId"`
	PatientName   string  `json:"patientName"`
	PatientPhone  string  `json:"patientPhone"`
	TreatmentType string  `json:"treatmentType"`
	StartedAt     string  `json:"startedAt"`
	EndedAt       string  `json:"endedAt"`
	Duration      *int    `json:"duration"`
	Notes         *string `json:"notes"`
	QueueEntryID  *int64  `json:"queueEntryId,omitempty"`
}

type HourlyBucket struct {
	Hour       string `json:"hour"`
	Treatments int64  `json:"treatments"`
	Efficiency int64  `json:"efficiency"`
}

type Stats struct {
	TotalTreatments int64          `json:"totalTreatments"`
	ActiveChairs    int64          `json:"activeChairs"`
	AvgWaitTime     float64        `json:"avgWaitTime"`
	EquipmentUsage  float64        `json:"equipmentUsage"`
	HourlyData      []HourlyBucket `json:"hourlyData"`
	WaitingCount    int64          `json:"waitingCount"`
}

// Event Bus models
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}

func (c Chair) View() ChairView {
	view := ChairView{
		ID:           c.ID,
		Status:       c.Status,
		Patient:      c.PatientName,
		PatientPhone: c.PatientPhone,
		WaitTime:     c.WaitTime,
	}
	if c.UpdatedAt != nil {
		formatted := c.UpdatedAt.Local().Format(clockLayout)
		view.LastUpdate = &formatted
	}
	return view
}

func (p Patient) View() PatientView {
	return PatientView{
		ID:          p.ID,
		Name:        p.Name,
		Phone:       p.Phone,
		Type:        p.TreatmentType,
		Priority:    p.Priority,
		ArrivalTime: p.ArrivalTime.Local().Format(arrivalLayout),
	}
}

func (h TreatmentHistory) View() HistoryView {
	return HistoryView{
		ID:            h.ID,
		ChairID:       h.ChairID,
		PatientName:   h.PatientName,
		PatientPhone:  h.PatientPhone,
		TreatmentType: h.TreatmentType,
		StartedAt:     h.StartedAt.Local().Format(dateTimeLayout),
		EndedAt:       h.EndedAt.Local().Format(dateTimeLayout),
		Duration:      h.Duration,
		Notes:         h.Notes,
		QueueEntryID:  h.QueueEntryID,
	}
}
