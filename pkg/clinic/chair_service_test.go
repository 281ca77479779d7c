package clinic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mlnyx/algo-dental/pkg/common/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clinicFixture struct {
	store   *memStore
	clock   *clock
	pub     *recordingPublisher
	chairs  *ChairService
	queue   *QueueService
	stats   *StatsService
	history *HistoryService
}

func newClinicFixture(t *testing.T) *clinicFixture {
	t.Helper()
	clk := &clock{t: time.Date(2026, 3, 2, 10, 15, 0, 0, time.Local)}
	store := newMemStore()
	store.seedChairs(5, clk.Now())
	pub := &recordingPublisher{}

	chairs := NewChairService(store, NewLocalLocker(0), pub, ChairOptions{})
	chairs.now = clk.Now
	queue := NewQueueService(store, pub)
	queue.now = clk.Now
	stats := NewStatsService(store, 5)
	stats.now = clk.Now

	return &clinicFixture{
		store:   store,
		clock:   clk,
		pub:     pub,
		chairs:  chairs,
		queue:   queue,
		stats:   stats,
		history: NewHistoryService(store, HistoryOptions{}),
	}
}

func (f *clinicFixture) enqueue(t *testing.T, name, priority string) models.PatientView {
	t.Helper()
	view, err := f.queue.Enqueue(context.Background(), models.PatientCreateRequest{
		Name:          name,
		Phone:         "010-0000-0000",
		TreatmentType: "checkup",
		Priority:      priority,
	})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	return view
}

func queueNames(t *testing.T, q *QueueService) []string {
	t.Helper()
	views, err := q.List(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(views))
	for _, v := range views {
		names = append(names, v.Name)
	}
	return names
}

func start(name string) models.ChairUpdateRequest {
	return models.ChairUpdateRequest{Status: models.ChairActive, PatientName: strPtr(name), PatientPhone: strPtr("010-9999-0000")}
}

func stop() models.ChairUpdateRequest {
	return models.ChairUpdateRequest{Status: models.ChairIdle}
}

func TestDashboardScenario(t *testing.T) {
	f := newClinicFixture(t)
	ctx := context.Background()

	f.enqueue(t, "Kim", models.PriorityNormal)
	f.enqueue(t, "Park", models.PriorityHigh)
	assert.Equal(t, []string{"Park", "Kim"}, queueNames(t, f.queue))

	view, err := f.chairs.Update(ctx, 1, start("Park"))
	require.NoError(t, err)
	assert.Equal(t, models.ChairActive, view.Status)
	assert.Equal(t, []string{"Kim"}, queueNames(t, f.queue))

	f.clock.Advance(12 * time.Minute)
	view, err = f.chairs.Update(ctx, 1, stop())
	require.NoError(t, err)
	assert.Equal(t, models.ChairIdle, view.Status)

	records, err := f.history.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].Duration)
	assert.Equal(t, 12, *records[0].Duration)
	assert.Equal(t, 1, records[0].ChairID)
	assert.Equal(t, "Park", records[0].PatientName)
}

func TestStartTreatmentConsumesMatchingPatient(t *testing.T) {
	f := newClinicFixture(t)
	ctx := context.Background()

	f.enqueue(t, "Lee", models.PriorityNormal)
	park := f.enqueue(t, "Park", models.PriorityHigh)
	f.enqueue(t, "Choi", models.PriorityNormal)
	f.enqueue(t, "Jung", models.PriorityHigh)

	view, err := f.chairs.Update(ctx, 2, start("Park"))
	require.NoError(t, err)

	assert.Equal(t, models.ChairActive, view.Status)
	require.NotNil(t, view.Patient)
	assert.Equal(t, "Park", *view.Patient)
	require.NotNil(t, view.PatientPhone)
	assert.Equal(t, "010-9999-0000", *view.PatientPhone)
	assert.Equal(t, 30, view.WaitTime)
	require.NotNil(t, view.LastUpdate)

	assert.Equal(t, []string{"Jung", "Lee", "Choi"}, queueNames(t, f.queue))

	chair, err := f.store.GetChair(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, chair.QueueEntryID)
	assert.Equal(t, park.ID, *chair.QueueEntryID)
	require.NotNil(t, chair.StartedAt)
	assert.True(t, chair.StartedAt.Equal(f.clock.Now()))

	assert.Equal(t,
		[]string{models.EventQueuePatientAdded, models.EventQueuePatientAdded, models.EventQueuePatientAdded,
			models.EventQueuePatientAdded, models.EventTreatmentStarted},
		f.pub.types())
}

func TestStartTreatmentWithoutMatchLeavesQueue(t *testing.T) {
	f := newClinicFixture(t)
	ctx := context.Background()

	f.enqueue(t, "Kim", models.PriorityNormal)
	f.enqueue(t, "Park", models.PriorityHigh)

	view, err := f.chairs.Update(ctx, 3, start("Walk-in Yoon"))
	require.NoError(t, err)

	assert.Equal(t, models.ChairActive, view.Status)
	assert.Equal(t, []string{"Park", "Kim"}, queueNames(t, f.queue))

	chair, err := f.store.GetChair(ctx, 3)
	require.NoError(t, err)
	assert.Nil(t, chair.QueueEntryID)
}

func TestStartTreatmentEmptyNameSkipsQueueMatch(t *testing.T) {
	f := newClinicFixture(t)
	ctx := context.Background()
	f.enqueue(t, "", models.PriorityNormal)

	_, err := f.chairs.Update(ctx, 1, models.ChairUpdateRequest{Status: models.ChairActive, PatientName: strPtr("")})
	require.NoError(t, err)

	waiting, err := f.store.CountWaitingPatients(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, waiting)
}

func TestDuplicateNamesConsumeFirstEntryOnly(t *testing.T) {
	f := newClinicFixture(t)
	ctx := context.Background()

	first := f.enqueue(t, "Kim", models.PriorityNormal)
	second := f.enqueue(t, "Kim", models.PriorityNormal)

	_, err := f.chairs.Update(ctx, 1, start("Kim"))
	require.NoError(t, err)

	views, err := f.queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, second.ID, views[0].ID)
	assert.NotEqual(t, first.ID, views[0].ID)
}

func TestStopTreatmentAppendsHistoryAndResets(t *testing.T) {
	f := newClinicFixture(t)
	ctx := context.Background()
	entry := f.enqueue(t, "Park", models.PriorityHigh)

	_, err := f.chairs.Update(ctx, 4, start("Park"))
	require.NoError(t, err)
	started := f.clock.Now()

	f.clock.Advance(25*time.Minute + 59*time.Second)
	view, err := f.chairs.Update(ctx, 4, stop())
	require.NoError(t, err)

	assert.Equal(t, models.ChairIdle, view.Status)
	assert.Nil(t, view.Patient)
	assert.Nil(t, view.PatientPhone)
	assert.Equal(t, 0, view.WaitTime)

	chair, err := f.store.GetChair(ctx, 4)
	require.NoError(t, err)
	assert.Nil(t, chair.StartedAt)
	assert.Nil(t, chair.QueueEntryID)

	require.Len(t, f.store.history, 1)
	record := f.store.history[0]
	assert.Equal(t, 4, record.ChairID)
	assert.Equal(t, "Park", record.PatientName)
	assert.Equal(t, "010-9999-0000", record.PatientPhone)
	assert.Equal(t, defaultCompletionLabel, record.TreatmentType)
	assert.True(t, record.StartedAt.Equal(started))
	assert.True(t, record.EndedAt.Equal(f.clock.Now()))
	require.NotNil(t, record.Duration)
	assert.Equal(t, 25, *record.Duration)
	assert.Nil(t, record.Notes)
	require.NotNil(t, record.QueueEntryID)
	assert.Equal(t, entry.ID, *record.QueueEntryID)

	types := f.pub.types()
	assert.Equal(t, models.EventTreatmentCompleted, types[len(types)-1])
}

func TestStopTreatmentWithoutPhoneStoresEmptyPhone(t *testing.T) {
	f := newClinicFixture(t)
	ctx := context.Background()

	_, err := f.chairs.Update(ctx, 1, models.ChairUpdateRequest{Status: models.ChairActive, PatientName: strPtr("Han")})
	require.NoError(t, err)
	f.clock.Advance(3 * time.Minute)
	_, err = f.chairs.Update(ctx, 1, stop())
	require.NoError(t, err)

	require.Len(t, f.store.history, 1)
	assert.Equal(t, "", f.store.history[0].PatientPhone)
}

func TestStopIdleChairIsNoop(t *testing.T) {
	f := newClinicFixture(t)
	ctx := context.Background()
	before, err := f.store.GetChair(ctx, 5)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	view, err := f.chairs.Update(ctx, 5, stop())
	require.NoError(t, err)

	assert.Equal(t, models.ChairIdle, view.Status)
	assert.Nil(t, view.Patient)
	assert.Equal(t, 0, view.WaitTime)
	assert.Empty(t, f.store.history)

	after, err := f.store.GetChair(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, f.pub.types())
}

func TestActiveToActiveKeepsCurrentPatient(t *testing.T) {
	f := newClinicFixture(t)
	ctx := context.Background()
	f.enqueue(t, "Seo", models.PriorityNormal)

	_, err := f.chairs.Update(ctx, 1, start("Kang"))
	require.NoError(t, err)
	view, err := f.chairs.Update(ctx, 1, start("Seo"))
	require.NoError(t, err)

	require.NotNil(t, view.Patient)
	assert.Equal(t, "Kang", *view.Patient)
	assert.Equal(t, []string{"Seo"}, queueNames(t, f.queue))
}

func TestUnrecognisedStatusIsNoop(t *testing.T) {
	f := newClinicFixture(t)
	ctx := context.Background()

	for _, status := range []string{models.ChairMaintenance, "broken", ""} {
		view, err := f.chairs.Update(ctx, 2, models.ChairUpdateRequest{Status: status})
		require.NoError(t, err)
		assert.Equal(t, models.ChairIdle, view.Status)
	}

	events, err := f.history.ChairEvents(ctx, 2, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, models.ActionChairUpdated, events[0].Action)
	assert.Equal(t, "", events[0].Payload["requested_status"])
}

func TestUpdateUnknownChair(t *testing.T) {
	f := newClinicFixture(t)

	_, err := f.chairs.Update(context.Background(), 6, start("Kim"))
	assert.True(t, errors.Is(err, ErrChairNotFound))
}

func TestHistoryFailureRollsBackTransition(t *testing.T) {
	f := newClinicFixture(t)
	ctx := context.Background()

	_, err := f.chairs.Update(ctx, 1, start("Kim"))
	require.NoError(t, err)

	f.store.failAppendHistory = errStoreDown
	f.clock.Advance(10 * time.Minute)
	_, err = f.chairs.Update(ctx, 1, stop())
	require.ErrorIs(t, err, errStoreDown)

	chair, err := f.store.GetChair(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.ChairActive, chair.Status)
	require.NotNil(t, chair.PatientName)
	assert.Equal(t, "Kim", *chair.PatientName)
}

func TestPublishFailureDoesNotFailUpdate(t *testing.T) {
	f := newClinicFixture(t)
	f.pub.err = errors.New("broker down")

	view, err := f.chairs.Update(context.Background(), 1, start("Kim"))
	require.NoError(t, err)
	assert.Equal(t, models.ChairActive, view.Status)
}

func TestBusyChairReturnsErrChairBusy(t *testing.T) {
	f := newClinicFixture(t)
	locker := NewLocalLocker(0)
	f.chairs.locker = locker

	release, err := locker.Lock(context.Background(), 1)
	require.NoError(t, err)
	defer release()

	_, err = f.chairs.Update(context.Background(), 1, start("Kim"))
	assert.ErrorIs(t, err, ErrChairBusy)

	_, err = f.chairs.Update(context.Background(), 2, start("Kim"))
	assert.NoError(t, err)
}

func TestConcurrentStartsOnlyOneTransitionWins(t *testing.T) {
	f := newClinicFixture(t)
	f.chairs.locker = NewLocalLocker(time.Second)
	f.enqueue(t, "A", models.PriorityNormal)
	f.enqueue(t, "B", models.PriorityNormal)

	var wg sync.WaitGroup
	for _, name := range []string{"A", "B"} {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := f.chairs.Update(context.Background(), 1, start(name))
			assert.NoError(t, err)
		}(name)
	}
	wg.Wait()

	started := 0
	for _, e := range f.store.events {
		if e.Action == models.ActionTreatmentStarted {
			started++
		}
	}
	assert.Equal(t, 1, started)
	waiting, err := f.store.CountWaitingPatients(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, waiting)
}

func TestListChairsOrderedByID(t *testing.T) {
	f := newClinicFixture(t)

	views, err := f.chairs.List(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 5)
	for i, v := range views {
		assert.Equal(t, i+1, v.ID)
		assert.Equal(t, models.ChairIdle, v.Status)
		assert.Nil(t, v.Patient)
	}
}
