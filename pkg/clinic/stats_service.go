package clinic

import (
	"context"
	"time"

	"github.com/mlnyx/algo-dental/pkg/common/models"
	"github.com/mlnyx/algo-dental/pkg/observability/metrics"
	"github.com/shopspring/decimal"
)

const (
	hourlyBuckets        = 8
	efficiencyPerVisit   = 20
	efficiencyCap        = 100
	defaultChairCapacity = 5
)

// StatsService derives dashboard metrics from current chairs and history.
// Nothing is cached; every call reads the store.
type StatsService struct {
	store      Store
	chairCount int
	now        func() time.Time
}

func NewStatsService(store Store, chairCount int) *StatsService {
	if chairCount <= 0 {
		chairCount = defaultChairCapacity
	}
	return &StatsService{store: store, chairCount: chairCount, now: time.Now}
}

func (s *StatsService) Compute(ctx context.Context) (models.Stats, error) {
	now := s.now()

	chairs, err := s.store.ListChairs(ctx)
	if err != nil {
		return models.Stats{}, err
	}
	var active int64
	var waitSum int
	for _, c := range chairs {
		if c.Status == models.ChairActive {
			active++
		}
		waitSum += c.WaitTime
	}
	avgWait := 0.0
	if len(chairs) > 0 {
		avgWait = float64(waitSum) / float64(len(chairs))
	}

	dayStart := startOfDay(now)
	total, err := s.store.CountHistoryEndedBetween(ctx, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return models.Stats{}, err
	}

	waiting, err := s.store.CountWaitingPatients(ctx)
	if err != nil {
		return models.Stats{}, err
	}

	hourly, err := s.hourly(ctx, now)
	if err != nil {
		return models.Stats{}, err
	}

	usage := 0.0
	if active > 0 {
		usage = float64(active) / float64(s.chairCount) * 100
	}

	metrics.ObserveClinic(active, waiting)

	return models.Stats{
		TotalTreatments: total,
		ActiveChairs:    active,
		AvgWaitTime:     round1(avgWait),
		EquipmentUsage:  round1(usage),
		HourlyData:      hourly,
		WaitingCount:    waiting,
	}, nil
}

// hourly returns the trailing buckets ending with the current hour, oldest first.
func (s *StatsService) hourly(ctx context.Context, now time.Time) ([]models.HourlyBucket, error) {
	current := startOfHour(now)
	buckets := make([]models.HourlyBucket, 0, hourlyBuckets)
	for i := 0; i < hourlyBuckets; i++ {
		start := current.Add(-time.Duration(hourlyBuckets-1-i) * time.Hour)
		count, err := s.store.CountHistoryEndedBetween(ctx, start, start.Add(time.Hour))
		if err != nil {
			return nil, err
		}
		buckets = append(buckets, models.HourlyBucket{
			Hour:       start.Format("15:00"),
			Treatments: count,
			Efficiency: efficiency(count),
		})
	}
	return buckets, nil
}

func efficiency(count int64) int64 {
	if count <= 0 {
		return 0
	}
	if v := count * efficiencyPerVisit; v < efficiencyCap {
		return v
	}
	return efficiencyCap
}

func round1(v float64) float64 {
	return decimal.NewFromFloat(v).Round(1).InexactFloat64()
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func startOfHour(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), 0, 0, 0, t.Location())
}
