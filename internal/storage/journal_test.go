package storage

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gormlogger "gorm.io/gorm/logger"

	"followreq/internal/ctxkeys"
	"followreq/internal/logger"
	"followreq/pkg/model"
)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open("", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournal_RecordAndRecent(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	recs := []model.ActionRecord{
		{ID: "a", Kind: model.ActionAccept, UserID: "1", Result: model.ResultOK, At: at},
		{ID: "b", Kind: model.ActionFollow, UserID: "2", Result: model.ResultRateLimited, Error: "rate limit reached", At: at},
		{ID: "c", Kind: model.ActionReject, UserID: "3", Result: model.ResultAPIError, At: at.Add(time.Second)},
	}
	for _, r := range recs {
		require.NoError(t, j.Record(ctx, r))
	}

	got, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, model.ActionReject, got[0].Kind)
	assert.Equal(t, "b", got[1].ID)
	assert.Equal(t, "rate limit reached", got[1].Error)
	assert.True(t, at.Equal(got[1].At))

	all, err := j.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestJournal_DefaultDSNIsPrivate(t *testing.T) {
	a := openJournal(t)
	b := openJournal(t)
	ctx := context.Background()
	require.NoError(t, a.Record(ctx, model.ActionRecord{ID: "only-a", Kind: model.ActionAccept, UserID: "1", Result: model.ResultOK, At: time.Now()}))

	got, err := b.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = a.Recent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.NotEqual(t, MemoryDSN(), MemoryDSN())
}

func TestJournal_DuplicateID(t *testing.T) {
	j := openJournal(t)
	ctx := context.Background()
	rec := model.ActionRecord{ID: "dup", Kind: model.ActionAccept, UserID: "1", Result: model.ResultOK, At: time.Now()}
	require.NoError(t, j.Record(ctx, rec))
	assert.Error(t, j.Record(ctx, rec))
}

func TestJournal_EmptyRecent(t *testing.T) {
	j := openJournal(t)
	got, err := j.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGormLogger_TraceLevels(t *testing.T) {
	var buf bytes.Buffer
	gl := NewGormLogger(logger.NewWithWriter(&buf, "debug"))
	ctx, traceID := ctxkeys.WithTraceID(context.Background())
	fc := func() (string, int64) { return "SELECT 1", 1 }

	// 默认级别不输出普通 SQL
	gl.Trace(ctx, time.Now(), fc, nil)
	assert.Empty(t, buf.String())

	gl.Trace(ctx, time.Now(), fc, assert.AnError)
	assert.Contains(t, buf.String(), traceID)
	assert.Contains(t, buf.String(), "SELECT 1")

	buf.Reset()
	gl.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), fc, assert.AnError)
	assert.Empty(t, buf.String())

	gl.LogMode(gormlogger.Info).Trace(ctx, time.Now(), fc, nil)
	assert.Contains(t, buf.String(), "SELECT 1")
}
