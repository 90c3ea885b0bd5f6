// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package logger

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	l := New(slog.LevelWarn)
	if l == nil {
		t.Fatal("expected logger to be non-nil")
	}
	if l.Enabled(t.Context(), slog.LevelInfo) {
		t.Error("expected info messages to be filtered")
	}
	if !l.Enabled(t.Context(), slog.LevelWarn) {
		t.Error("expected warn messages to be enabled")
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("configured log levels filter the output", func(t *testing.T) {
		tests := []struct {
			configured string
			want       []string
		}{
			{"DEBUG", []string{"DEBUG", "INFO", "WARN", "ERROR"}},
			{"info", []string{"INFO", "WARN", "ERROR"}},
			{"WARN", []string{"WARN", "ERROR"}},
			{"error", []string{"ERROR"}},
			{"INFO+4", []string{"WARN", "ERROR"}},
		}
		for _, tc := range tests {
			t.Run(tc.configured, func(t *testing.T) {
				var level slog.Level
				if err := level.UnmarshalText([]byte(tc.configured)); err != nil {
					t.Fatalf("failed to parse log level %q: %s", tc.configured, err)
				}
				buf := bytes.NewBuffer(nil)
				l := NewLogger(level, buf)
				l.Debug("lookup dispatched")
				l.Info("location resolved")
				l.Warn("device locator failed")
				l.Error("lookup failed")

				lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
				if len(lines) != len(tc.want) {
					t.Fatalf("expected %d log lines, got %d: %q", len(tc.want), len(lines), buf.String())
				}
				for i, want := range tc.want {
					if !strings.Contains(lines[i], "level="+want) {
						t.Errorf("expected line %d to have level %s, got %q", i, want, lines[i])
					}
				}
			})
		}
	})
	t.Run("scoped loggers keep their attributes", func(t *testing.T) {
		buf := bytes.NewBuffer(nil)
		l := NewLogger(slog.LevelInfo, buf)
		scoped := &Logger{Logger: l.With(slog.String("session", "f47ac10b"))}
		scoped.Info("websocket session started")

		want := `msg="websocket session started" session=f47ac10b`
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected log output to contain %q, got %q", want, buf.String())
		}
	})
}

func TestErr(t *testing.T) {
	t.Run("wrapped errors are logged with their chain", func(t *testing.T) {
		buf := bytes.NewBuffer(nil)
		l := NewLogger(slog.LevelDebug, buf)
		err := fmt.Errorf("lookup rejected: %w", errors.New("connection reset"))
		l.Error("lookup failed", Err(err))

		want := `error="lookup rejected: connection reset"`
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected log output to contain %q, got %q", want, buf.String())
		}
	})
	t.Run("the attribute key is error", func(t *testing.T) {
		attr := Err(errors.New("no fix"))
		if attr.Key != "error" {
			t.Errorf("expected attribute key to be error, got %s", attr.Key)
		}
	})
}
