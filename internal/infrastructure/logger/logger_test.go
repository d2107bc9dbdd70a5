package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meterpay.log")

	l, err := New(Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	l.Debug("hidden")
	l.Info("checkout created", zap.String("tier", "Growth"))
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"checkout created"`)
	assert.Contains(t, string(data), `"tier":"Growth"`)
	assert.NotContains(t, string(data), "hidden")
}

func TestNew_UnwritableFile(t *testing.T) {
	_, err := New(Config{Output: filepath.Join(t.TempDir(), "missing", "x.log")})
	require.Error(t, err)
}

func spanContext() trace.SpanContext {
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02},
		SpanID:     trace.SpanID{0x03},
		TraceFlags: trace.FlagsSampled,
	})
}

func TestFields(t *testing.T) {
	t.Run("empty context", func(t *testing.T) {
		assert.Empty(t, Fields(context.Background()))
	})

	t.Run("all correlation ids", func(t *testing.T) {
		userID := uuid.New()
		ctx := trace.ContextWithSpanContext(context.Background(), spanContext())
		ctx = WithRequestID(ctx, "req-1")
		ctx = WithUserID(ctx, userID)

		core, logs := observer.New(zapcore.DebugLevel)
		L(WithContext(ctx, zap.New(core))).Info("hello")

		require.Equal(t, 1, logs.Len())
		fields := logs.All()[0].ContextMap()
		assert.Equal(t, spanContext().TraceID().String(), fields["trace_id"])
		assert.Equal(t, spanContext().SpanID().String(), fields["span_id"])
		assert.Equal(t, "req-1", fields["request_id"])
		assert.Equal(t, userID.String(), fields["user_id"])
	})

	t.Run("missing logger is a no-op", func(t *testing.T) {
		assert.NotPanics(t, func() { L(context.Background()).Info("dropped") })
	})
}

func TestGinMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	userID := uuid.New()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), "req-42"))
		c.Next()
	})
	r.Use(GinMiddleware(zap.New(core)))
	r.GET("/ok/:id", func(c *gin.Context) {
		c.Request = c.Request.WithContext(WithUserID(c.Request.Context(), userID))
		L(c.Request.Context()).Info("inside handler")
		c.Status(http.StatusOK)
	})
	r.GET("/fail", func(c *gin.Context) {
		c.Status(http.StatusBadGateway)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok/1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "inside handler", entries[0].Message)
	assert.Equal(t, "req-42", entries[0].ContextMap()["request_id"])
	assert.Equal(t, "HTTP Request", entries[1].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[1].Level)
	assert.Equal(t, "/ok/:id", entries[1].ContextMap()["route"])
	assert.Equal(t, userID.String(), entries[1].ContextMap()["user_id"])

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))
	last := logs.All()[logs.Len()-1]
	assert.Equal(t, zapcore.ErrorLevel, last.Level)
	assert.EqualValues(t, http.StatusBadGateway, last.ContextMap()["status"])
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	r := gin.New()
	r.Use(Recovery(zap.New(core)))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"INTERNAL_ERROR"`)
	require.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}

func TestGormLogger_Trace(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Warn, WithSlowThreshold(50*time.Millisecond))
	ctx := WithRequestID(context.Background(), "req-9")
	query := func() (string, int64) { return `UPDATE "payments" SET "status"='completed'`, 1 }

	gl.Trace(ctx, time.Now(), query, nil)
	assert.Equal(t, 0, logs.Len(), "fast queries stay quiet at warn")

	gl.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	require.Equal(t, 1, logs.FilterMessage("Slow SQL").Len())
	assert.Equal(t, "req-9", logs.All()[0].ContextMap()["request_id"])

	gl.Trace(ctx, time.Now(), query, gormlogger.ErrRecordNotFound)
	assert.Equal(t, 1, logs.Len(), "record not found is ignored")

	gl.Trace(ctx, time.Now(), query, errors.New("deadlock detected"))
	assert.Equal(t, 1, logs.FilterMessage("SQL error").Len())

	gl.LogMode(gormlogger.Silent).Trace(ctx, time.Now(), query, errors.New("ignored"))
	assert.Equal(t, 1, logs.FilterMessage("SQL error").Len())
}

func TestGormLogger_ParamsFilter(t *testing.T) {
	sql := `SELECT * FROM "payments" WHERE provider_reference = $1`

	gl := NewGormLogger(zap.NewNop(), gormlogger.Info)
	_, params := gl.ParamsFilter(context.Background(), sql, "cs_test_1")
	assert.Nil(t, params, "bind values are redacted by default")

	gl = NewGormLogger(zap.NewNop(), gormlogger.Info, WithParams(true))
	_, params = gl.ParamsFilter(context.Background(), sql, "cs_test_1")
	assert.Equal(t, []any{"cs_test_1"}, params)
}

func TestGormLogger_TruncatesSQL(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	gl := NewGormLogger(zap.New(core), gormlogger.Info, WithMaxSQLLength(10))

	gl.Trace(context.Background(), time.Now(), func() (string, int64) {
		return `INSERT INTO "usage_records" VALUES (1,2,3)`, 1
	}, nil)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, `INSERT INT...`, logs.All()[0].ContextMap()["sql"])
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("silent"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("info"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("bogus"))
}
