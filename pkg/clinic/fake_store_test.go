package clinic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mlnyx/algo-dental/pkg/common/models"
)

// memStore is an in-memory Store. Transactions snapshot state and restore
// it when fn fails, so rollback behaviour can be asserted.
type memStore struct {
	mu       sync.Mutex
	chairs   map[int]models.Chair
	patients []models.Patient
	history  []models.TreatmentHistory
	events   []models.ChairEvent
	nextID   int64

	failAppendHistory error
	failCount         error
}

func newMemStore() *memStore {
	return &memStore{chairs: make(map[int]models.Chair)}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

type memSnapshot struct {
	chairs   map[int]models.Chair
	patients []models.Patient
	history  []models.TreatmentHistory
	events   []models.ChairEvent
}

func (m *memStore) snapshot() memSnapshot {
	chairs := make(map[int]models.Chair, len(m.chairs))
	for k, v := range m.chairs {
		chairs[k] = v
	}
	return memSnapshot{
		chairs:   chairs,
		patients: append([]models.Patient(nil), m.patients...),
		history:  append([]models.TreatmentHistory(nil), m.history...),
		events:   append([]models.ChairEvent(nil), m.events...),
	}
}

func (m *memStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	snap := m.snapshot()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.chairs, m.patients, m.history, m.events = snap.chairs, snap.patients, snap.history, snap.events
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) ListChairs(ctx context.Context) ([]models.Chair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Chair, 0, len(m.chairs))
	for _, c := range m.chairs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) GetChair(ctx context.Context, id int) (models.Chair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chairs[id]
	if !ok {
		return models.Chair{}, fmt.Errorf("chair %d: %w", id, ErrChairNotFound)
	}
	return c, nil
}

func (m *memStore) SaveChair(ctx context.Context, chair *models.Chair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.chairs[chair.ID]; !ok {
		return ErrChairNotFound
	}
	m.chairs[chair.ID] = *chair
	return nil
}

func (m *memStore) CreateChairs(ctx context.Context, chairs []models.Chair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chairs {
		m.chairs[c.ID] = c
	}
	return nil
}

func (m *memStore) CountChairs(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCount != nil {
		return 0, m.failCount
	}
	return int64(len(m.chairs)), nil
}

func (m *memStore) CreatePatient(ctx context.Context, patient *models.Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	patient.ID = m.id()
	m.patients = append(m.patients, *patient)
	return nil
}

func (m *memStore) ListWaitingPatients(ctx context.Context) ([]models.Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Patient, 0)
	for _, p := range m.patients {
		if p.IsWaiting {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := priorityRank(out[i].Priority), priorityRank(out[j].Priority)
		if ri != rj {
			return ri > rj
		}
		if !out[i].ArrivalTime.Equal(out[j].ArrivalTime) {
			return out[i].ArrivalTime.Before(out[j].ArrivalTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// priorityRank mirrors the repository's queue ordering: high first, anything
// else ranks with normal.
func priorityRank(priority string) int {
	if priority == models.PriorityHigh {
		return 1
	}
	return 0
}

func (m *memStore) FindWaitingPatientByName(ctx context.Context, name string) (models.Patient, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.patients {
		if p.IsWaiting && p.Name == name {
			return p, true, nil
		}
	}
	return models.Patient{}, false, nil
}

func (m *memStore) MarkPatientConsumed(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.patients {
		if m.patients[i].ID == id {
			m.patients[i].IsWaiting = false
		}
	}
	return nil
}

func (m *memStore) DeletePatient(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.patients {
		if m.patients[i].ID == id {
			m.patients = append(m.patients[:i], m.patients[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("patient %d: %w", id, ErrPatientNotFound)
}

func (m *memStore) CountWaitingPatients(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, p := range m.patients {
		if p.IsWaiting {
			n++
		}
	}
	return n, nil
}

func (m *memStore) AppendHistory(ctx context.Context, record *models.TreatmentHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppendHistory != nil {
		return m.failAppendHistory
	}
	record.ID = m.id()
	m.history = append(m.history, *record)
	return nil
}

func (m *memStore) ListRecentHistory(ctx context.Context, limit int) ([]models.TreatmentHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.TreatmentHistory(nil), m.history...)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EndedAt.Equal(out[j].EndedAt) {
			return out[i].EndedAt.After(out[j].EndedAt)
		}
		return out[i].ID > out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) CountHistoryEndedBetween(ctx context.Context, from, to time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, h := range m.history {
		if !h.EndedAt.Before(from) && h.EndedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) AppendChairEvent(ctx context.Context, event *models.ChairEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.ID = m.id()
	m.events = append(m.events, *event)
	return nil
}

func (m *memStore) ListChairEvents(ctx context.Context, chairID int, limit int) ([]models.ChairEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ChairEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.events[i].ChairID == chairID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

// seedChairs creates idle chairs 1..n.
func (m *memStore) seedChairs(n int, at time.Time) {
	for id := 1; id <= n; id++ {
		updated := at
		m.chairs[id] = models.Chair{ID: id, Status: models.ChairIdle, UpdatedAt: &updated}
	}
}

type recordedEvent struct {
	eventType string
	data      map[string]interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, eventType string, data map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, recordedEvent{eventType: eventType, data: data})
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.eventType)
	}
	return out
}

// clock is a manually advanced time source.
type clock struct {
	t time.Time
}

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

var errStoreDown = errors.New("store unavailable")

func strPtr(s string) *string { return &s }
