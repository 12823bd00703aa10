package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"

	"appointment-booking-api/internal/logging"
)

func TestWithContextFields(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	ctx := logging.WithRequestID(context.Background(), "req-1")
	ctx = logging.WithUserID(ctx, 42)
	logging.WithContext(ctx, l).Info("hello")

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if got["request_id"] != "req-1" {
		t.Errorf("request_id = %v", got["request_id"])
	}
	if got["user_id"] != float64(42) {
		t.Errorf("user_id = %v", got["user_id"])
	}
}

func TestWithContextEmpty(t *testing.T) {
	l := logging.Discard()
	if logging.WithContext(context.Background(), l) != logrus.FieldLogger(l) {
		t.Error("expected logger unchanged without context fields")
	}
}

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level string
		want  logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"warn", logrus.WarnLevel},
		{"nonsense", logrus.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			e := logging.New("svc", tt.level, "json")
			if e.Logger.GetLevel() != tt.want {
				t.Errorf("got %v, want %v", e.Logger.GetLevel(), tt.want)
			}
			if e.Data["service"] != "svc" {
				t.Errorf("service field = %v", e.Data["service"])
			}
		})
	}
}
