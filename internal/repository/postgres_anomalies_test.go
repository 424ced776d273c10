package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carelink-telemetry/internal/models"
)

func newTestAnomalyEvent() *models.AnomalyEvent {
	return &models.AnomalyEvent{
		EventID:                 "evt-001",
		DeviceID:                "dev-001",
		ResidentID:              "res-001",
		Timestamp:               time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Category:                models.AnomalyCategoryVitalSigns,
		Severity:                models.SeverityCritical,
		Description:             "Heart rate 35 bpm outside normal range 60-100",
		Measurements:            []string{"heart_rate"},
		BaselineValue:           80,
		ObservedValue:           35,
		DeviationPercent:        56.25,
		Confidence:              0.92,
		RequiresImmediateAction: true,
		RecommendedActions:      []string{"Check resident immediately"},
		CreatedAt:               time.Date(2026, 3, 1, 10, 0, 1, 0, time.UTC),
	}
}

func TestAnomaliesRepository_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAnomaliesRepository(db, zap.NewNop())

	mock.ExpectExec("INSERT INTO anomaly_events").
		WithArgs(
			"evt-001",
			"dev-001",
			"res-001",
			sqlmock.AnyArg(),
			"vital_signs",
			"critical",
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			80.0,
			35.0,
			56.25,
			0.92,
			true,
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Insert(context.Background(), newTestAnomalyEvent())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnomaliesRepository_InsertDuplicateIsIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAnomaliesRepository(db, zap.NewNop())

	mock.ExpectExec("INSERT INTO anomaly_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Insert(context.Background(), newTestAnomalyEvent())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnomaliesRepository_ListByDevice(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewAnomaliesRepository(db, zap.NewNop())

	rows := sqlmock.NewRows([]string{
		"event_id", "device_id", "resident_id", "timestamp", "category", "severity",
		"description", "measurements", "baseline_value", "observed_value",
		"deviation_percent", "confidence", "requires_immediate_action",
		"recommended_actions", "created_at",
	}).AddRow(
		"evt-001", "dev-001", "res-001", time.Now(), "vital_signs", "critical",
		"Heart rate 35 bpm outside normal range 60-100", []byte(`["heart_rate"]`), 80.0, 35.0,
		56.25, 0.92, true,
		[]byte(`["Check resident immediately"]`), time.Now(),
	)

	mock.ExpectQuery("SELECT (.+) FROM anomaly_events").
		WithArgs("dev-001", 10).
		WillReturnRows(rows)

	events, err := repo.ListByDevice(context.Background(), "dev-001", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-001", events[0].EventID)
	assert.Equal(t, models.SeverityCritical, events[0].Severity)
	assert.Equal(t, []string{"heart_rate"}, events[0].Measurements)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeadLetterRepository_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewDeadLetterRepository(db, zap.NewNop())

	record := &models.DeadLetterRecord{
		ID:        "dev-001:1767261600:vital_signs",
		DeviceID:  "dev-001",
		Timestamp: time.Now(),
		DataType:  "vital_signs",
		Payload:   []byte(`{"hr":null}`),
		Reason:    "validation failed: resident_id: required",
		Stage:     "validated",
		CreatedAt: time.Now(),
	}

	mock.ExpectExec("INSERT INTO dead_letters").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Insert(context.Background(), record)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
