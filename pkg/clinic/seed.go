package clinic

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mlnyx/algo-dental/pkg/common/logger"
	"github.com/mlnyx/algo-dental/pkg/common/models"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

type SeedPatient struct {
	Name          string `yaml:"name"`
	Phone         string `yaml:"phone"`
	TreatmentType string `yaml:"treatment_type"`
	Priority      string `yaml:"priority"`
}

type SeedData struct {
	Patients []SeedPatient `yaml:"patients"`
}

// LoadSeed reads seed data from path, or the embedded defaults when path is empty.
func LoadSeed(path string) (SeedData, error) {
	if path == "" {
		return ParseSeed(defaultSeed)
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return SeedData{}, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(content)
}

func ParseSeed(content []byte) (SeedData, error) {
	var data SeedData
	if err := yaml.Unmarshal(content, &data); err != nil {
		return SeedData{}, fmt.Errorf("parse seed: %w", err)
	}
	for i, p := range data.Patients {
		if p.Name == "" {
			return SeedData{}, fmt.Errorf("seed patient %d has no name", i)
		}
		if p.Priority == "" {
			data.Patients[i].Priority = models.PriorityNormal
		}
	}
	return data, nil
}

// Seeder prepares a fresh database. Each step only runs when its table is
// empty, so running it on every startup is safe.
type Seeder struct {
	store Store
	now   func() time.Time
}

func NewSeeder(store Store) *Seeder {
	return &Seeder{store: store, now: time.Now}
}

func (s *Seeder) Run(ctx context.Context, chairCount int, data SeedData) error {
	if err := s.seedChairs(ctx, chairCount); err != nil {
		return err
	}
	return s.seedPatients(ctx, data.Patients)
}

func (s *Seeder) seedChairs(ctx context.Context, chairCount int) error {
	return s.store.Transaction(ctx, func(tx Store) error {
		count, err := tx.CountChairs(ctx)
		if err != nil {
			return fmt.Errorf("count chairs: %w", err)
		}
		if count > 0 {
			return nil
		}
		now := s.now()
		chairs := make([]models.Chair, 0, chairCount)
		for id := 1; id <= chairCount; id++ {
			updated := now
			chairs = append(chairs, models.Chair{ID: id, Status: models.ChairIdle, UpdatedAt: &updated})
		}
		if err := tx.CreateChairs(ctx, chairs); err != nil {
			return fmt.Errorf("create chairs: %w", err)
		}
		logger.Log.WithField("chairs", chairCount).Info("seeded chairs")
		return nil
	})
}

func (s *Seeder) seedPatients(ctx context.Context, patients []SeedPatient) error {
	if len(patients) == 0 {
		return nil
	}
	return s.store.Transaction(ctx, func(tx Store) error {
		waiting, err := tx.CountWaitingPatients(ctx)
		if err != nil {
			return fmt.Errorf("count waiting patients: %w", err)
		}
		if waiting > 0 {
			return nil
		}
		now := s.now()
		for _, p := range patients {
			patient := &models.Patient{
				Name:          p.Name,
				Phone:         p.Phone,
				TreatmentType: p.TreatmentType,
				Priority:      p.Priority,
				ArrivalTime:   now,
				IsWaiting:     true,
			}
			if err := tx.CreatePatient(ctx, patient); err != nil {
				return fmt.Errorf("seed patient %q: %w", p.Name, err)
			}
		}
		logger.Log.WithField("patients", len(patients)).Info("seeded sample queue")
		return nil
	})
}
