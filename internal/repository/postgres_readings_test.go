package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"carelink-telemetry/internal/models"
)

func newTestReading() *models.CanonicalReading {
	hr := 72.0
	return &models.CanonicalReading{
		DeviceID:   "dev-001",
		ResidentID: "res-001",
		Timestamp:  time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		DataType:   models.DataTypeVitalSigns,
		Measurements: models.MeasurementSet{
			HeartRate: &hr,
		},
		RawOriginal: []byte(`{"hr":72}`),
	}
}

func TestReadingsRepository_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewReadingsRepository(db, zap.NewNop())

	mock.ExpectExec("INSERT INTO telemetry_readings").
		WithArgs(
			"dev-001",
			"res-001",
			sqlmock.AnyArg(),
			"vital_signs",
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
			sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = repo.Insert(context.Background(), newTestReading())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadingsRepository_InsertDuplicateIsIdempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewReadingsRepository(db, zap.NewNop())

	// ON CONFLICT DO NOTHING：0 行受影响不是错误
	mock.ExpectExec("INSERT INTO telemetry_readings").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Insert(context.Background(), newTestReading())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadingsRepository_InsertTransientError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewReadingsRepository(db, zap.NewNop())

	// 连接类错误（SQLSTATE 08006）应归类为瞬时错误
	mock.ExpectExec("INSERT INTO telemetry_readings").
		WillReturnError(&pq.Error{Code: "08006", Message: "connection failure"})

	err = repo.Insert(context.Background(), newTestReading())
	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
}

func TestReadingsRepository_InsertPermanentError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewReadingsRepository(db, zap.NewNop())

	// 数据错误（SQLSTATE 22P02）不应重试
	mock.ExpectExec("INSERT INTO telemetry_readings").
		WillReturnError(&pq.Error{Code: "22P02", Message: "invalid input syntax"})

	err = repo.Insert(context.Background(), newTestReading())
	require.Error(t, err)
	assert.False(t, models.IsTransient(err))
}

func TestClassifyStoreError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"连接中断", &pq.Error{Code: "08006"}, true},
		{"资源不足", &pq.Error{Code: "53300"}, true},
		{"管理员关停", &pq.Error{Code: "57P01"}, true},
		{"死锁回滚", &pq.Error{Code: "40P01"}, true},
		{"超时", context.DeadlineExceeded, true},
		{"唯一约束冲突", &pq.Error{Code: "23505"}, false},
		{"普通错误", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classifyStoreError("test", tt.err)
			assert.Equal(t, tt.transient, models.IsTransient(classified))
			if !tt.transient {
				// 非瞬时错误原样返回
				assert.Equal(t, tt.err, classified)
			}
		})
	}
}

func TestStoreTransientError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := classifyStoreError("op", &pq.Error{Code: "08006", Message: cause.Error()})

	var transientErr *models.StoreTransientError
	require.True(t, errors.As(err, &transientErr))
	assert.Equal(t, "op", transientErr.Op)
	assert.NotNil(t, errors.Unwrap(err))
}
