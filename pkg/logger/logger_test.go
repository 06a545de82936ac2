package logger_test

import (
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stock-sync/pkg/config"
	"github.com/stock-sync/pkg/logger"
)

func TestCustomTextFormatterRendersFields(t *testing.T) {
	f := &logger.CustomTextFormatter{
		TextFormatter: logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		},
	}

	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Time:    time.Date(2025, 8, 15, 10, 30, 0, 0, time.UTC),
		Level:   logrus.InfoLevel,
		Message: "Incremental sync completed",
		Data:    logrus.Fields{"symbol": "RELIANCE"},
	}

	out, err := f.Format(entry)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	line := string(out)
	if !strings.Contains(line, "INFO") {
		t.Errorf("line = %q, missing level", line)
	}
	if !strings.Contains(line, "Incremental sync completed") {
		t.Errorf("line = %q, missing message", line)
	}
	if !strings.Contains(line, "symbol=RELIANCE") {
		t.Errorf("line = %q, structured fields not rendered", line)
	}
	if strings.Contains(line, "%!") {
		t.Errorf("line = %q, contains a formatting artifact", line)
	}
}

func TestCustomTextFormatterNoFields(t *testing.T) {
	f := &logger.CustomTextFormatter{
		TextFormatter: logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		},
	}

	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Time:    time.Date(2025, 8, 15, 10, 30, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "Redis unavailable",
	}

	out, err := f.Format(entry)
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	line := string(out)
	if strings.Contains(line, "%!") {
		t.Errorf("line = %q, contains a formatting artifact", line)
	}
	if !strings.HasSuffix(line, "Redis unavailable\n") {
		t.Errorf("line = %q, want message at end of line", line)
	}
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := logger.New(&config.LoggingConfig{
		Level:  "chatty",
		Format: "text",
		Output: "stdout",
	})
	if err == nil {
		t.Fatal("expected error for invalid log level")
	}
}
