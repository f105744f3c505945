package observability

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tiffinbox/api/internal/platform/requestctx"
)

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	baseCore, baseLogs := observer.New(zapcore.DebugLevel)
	reqCore, reqLogs := observer.New(zapcore.DebugLevel)

	logEvent := EventLogger(zap.New(baseCore))

	logEvent(context.Background(), "payment.expired", map[string]any{"paymentId": "pay_1"})
	ctx := requestctx.WithLogger(context.Background(), zap.New(reqCore))
	logEvent(ctx, "payment.notify.failed", map[string]any{"error": errors.New("boom")})

	if baseLogs.Len() != 1 {
		t.Fatalf("expected one base entry, got %d", baseLogs.Len())
	}
	entry := baseLogs.All()[0]
	if entry.Level != zapcore.InfoLevel || entry.ContextMap()["paymentId"] != "pay_1" {
		t.Fatalf("unexpected base entry %+v", entry)
	}

	if reqLogs.Len() != 1 {
		t.Fatalf("expected one request entry, got %d", reqLogs.Len())
	}
	entry = reqLogs.All()[0]
	if entry.Level != zapcore.WarnLevel || entry.Message != "payment.notify.failed" {
		t.Fatalf("unexpected request entry %+v", entry)
	}
	if entry.ContextMap()["error"] != "boom" {
		t.Fatalf("expected error field, got %v", entry.ContextMap())
	}
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger("chatty")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected debug to be disabled")
	}
	if !logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("expected info to be enabled")
	}
}
