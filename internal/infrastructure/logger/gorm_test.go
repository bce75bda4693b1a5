package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/returns/internal/domain/returns"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

var _ gormlogger.Interface = (*GormLogger)(nil)

func TestGormLogger_Options(t *testing.T) {
	gl := NewGormLogger(zap.NewNop(), gormlogger.Warn,
		WithSlowThreshold(500*time.Millisecond),
		WithIgnoreRecordNotFoundError(false),
	)
	assert.Equal(t, 500*time.Millisecond, gl.slowThreshold)
	assert.False(t, gl.ignoreRecordNotFoundError)

	quiet := gl.LogMode(gormlogger.Silent).(*GormLogger)
	assert.Equal(t, gormlogger.Silent, quiet.logLevel)
	assert.Equal(t, gormlogger.Warn, gl.logLevel, "LogMode returns a copy")
}

func TestGormLogger_Trace(t *testing.T) {
	update := func() (string, int64) {
		return `UPDATE "return_requests" SET "status"='APPROVED' WHERE id = 'x' AND status = 'PENDING' AND version = 3`, 0
	}

	tests := []struct {
		name      string
		level     gormlogger.LogLevel
		elapsed   time.Duration
		err       error
		wantLevel zapcore.Level
		wantMsg   string
		wantNone  bool
	}{
		{"query at info", gormlogger.Info, time.Millisecond, nil, zapcore.DebugLevel, "SQL Query", false},
		{"slow query", gormlogger.Warn, time.Second, nil, zapcore.WarnLevel, "SLOW SQL >= 200ms", false},
		{"error", gormlogger.Error, time.Millisecond, errors.New("deadlock detected"), zapcore.ErrorLevel, "SQL Error", false},
		{"record not found is ignored", gormlogger.Error, time.Millisecond, gormlogger.ErrRecordNotFound, 0, "", true},
		{"silent", gormlogger.Silent, time.Second, errors.New("boom"), 0, "", true},
		{"fast query below info", gormlogger.Warn, time.Millisecond, nil, 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, recorded := observer.New(zapcore.DebugLevel)
			gl := NewGormLogger(zap.New(core), tt.level)

			gl.Trace(context.Background(), time.Now().Add(-tt.elapsed), update, tt.err)

			if tt.wantNone {
				assert.Empty(t, recorded.All())
				return
			}
			logs := recorded.All()
			require.Len(t, logs, 1)
			assert.Equal(t, tt.wantLevel, logs[0].Level)
			assert.Equal(t, tt.wantMsg, logs[0].Message)
			assert.Equal(t, int64(0), logs[0].ContextMap()["rows"])
		})
	}
}

func TestGormLogger_Trace_RequestID(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Info)

	ctx, _ := WithRequestID(context.Background(), zap.NewNop(), "req-42")
	gl.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "req-42", logs[0].ContextMap()["request_id"])
}

func TestGormLogger_Messages(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Warn)
	ctx := context.Background()

	gl.Info(ctx, "migrated %d tables", 2)
	gl.Warn(ctx, "slow %s", "thing")
	gl.Error(ctx, "failed: %v", "boom")

	logs := recorded.All()
	require.Len(t, logs, 2)
	assert.Equal(t, "slow thing", logs[0].Message)
	assert.Equal(t, "failed: boom", logs[1].Message)
}

func TestGormLogger_ExpectedErrors(t *testing.T) {
	errDuplicate := errors.New("duplicate key value violates unique constraint")
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Warn,
		WithExpectedErrors(func(err error) bool { return errors.Is(err, errDuplicate) }))
	insert := func() (string, int64) { return `INSERT INTO "return_requests" ...`, 0 }

	gl.Trace(context.Background(), time.Now(), insert, errDuplicate)
	gl.Trace(context.Background(), time.Now(), insert, errors.New("connection reset"))

	logs := recorded.All()
	require.Len(t, logs, 2)
	assert.Equal(t, zapcore.DebugLevel, logs[0].Level)
	assert.Equal(t, "SQL constraint", logs[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, logs[1].Level)
}

func TestGormLogger_Trace_ActorFields(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Info)
	storeID := uuid.New()

	ctx, _ := WithActor(context.Background(), zap.NewNop(), returns.Actor{Kind: returns.ActorShop, StoreID: storeID})
	gl.Trace(ctx, time.Now(), func() (string, int64) { return "SELECT 1", 1 }, nil)

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, storeID.String(), logs[0].ContextMap()["store_id"])
	assert.Equal(t, string(returns.ActorShop), logs[0].ContextMap()["actor_kind"])
}

func TestMapGormLogLevel(t *testing.T) {
	tests := map[string]gormlogger.LogLevel{
		"silent":  gormlogger.Silent,
		"error":   gormlogger.Error,
		"warn":    gormlogger.Warn,
		"info":    gormlogger.Info,
		"debug":   gormlogger.Info,
		"unknown": gormlogger.Warn,
		"":        gormlogger.Warn,
	}
	for level, want := range tests {
		assert.Equal(t, want, MapGormLogLevel(level), level)
	}
}
