package gormlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fatflowers/billsync/pkg/logctx"
)

func sqlFn() (string, int64) { return "SELECT 1", 1 }

func TestZapLogger_Trace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core).Sugar())
	ctx := logctx.WithTraceID(context.Background(), "trace-1")

	l.Trace(ctx, time.Now(), sqlFn, gorm.ErrRecordNotFound)
	require.Zero(t, logs.Len())

	l.Trace(ctx, time.Now(), sqlFn, errors.New("deadlock"))
	errs := logs.FilterMessage("gorm_error").All()
	require.Len(t, errs, 1)
	require.Equal(t, "trace-1", errs[0].ContextMap()["trace_id"])

	l.Trace(ctx, time.Now().Add(-time.Second), sqlFn, nil)
	require.Equal(t, 1, logs.FilterMessage("gorm_slow").Len())

	l.Trace(ctx, time.Now(), sqlFn, nil)
	require.Zero(t, logs.FilterMessage("gorm").Len())

	l.LogMode(gormlogger.Info).Trace(ctx, time.Now(), sqlFn, nil)
	require.Equal(t, 1, logs.FilterMessage("gorm").Len())

	l.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), sqlFn, errors.New("ignored"))
	require.Equal(t, 1, logs.FilterMessage("gorm_error").Len())
}

func TestShortCaller(t *testing.T) {
	require.Equal(t, "internal/platform/db/postgres.go:38", shortCaller("/home/ci/src/internal/platform/db/postgres.go:38"))
	require.Equal(t, "b/c/d.go:1", shortCaller("/a/b/c/d.go:1"))
	require.Equal(t, "", shortCaller(""))
}
