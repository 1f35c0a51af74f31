// Copyright (C) 2025 ClerkDesk Labs (eng@clerkdesk.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := tt.level.String()
			if got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo}, // Unknown defaults to Info
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			got := tt.level.toSlogLevel()
			if got != tt.want {
				t.Errorf("Level.toSlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_Ordering(t *testing.T) {
	if LevelDebug >= LevelInfo {
		t.Error("LevelDebug should be < LevelInfo")
	}
	if LevelInfo >= LevelWarn {
		t.Error("LevelInfo should be < LevelWarn")
	}
	if LevelWarn >= LevelError {
		t.Error("LevelWarn should be < LevelError")
	}
}

// =============================================================================
// Logger Constructor Tests
// =============================================================================

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.slog == nil {
		t.Error("logger.slog is nil")
	}
	defer logger.Close()
}

func TestNew_WithLogDir(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "concierge",
		Quiet:   true,
	})
	defer logger.Close()

	logger.Info("file log entry", "key", "value")

	filename := "concierge_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(tmpDir, filename))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "file log entry") {
		t.Errorf("log file missing entry, got: %s", data)
	}
	if !strings.Contains(string(data), `"service":"concierge"`) {
		t.Errorf("log file missing service attribute, got: %s", data)
	}
}

func TestNew_WithLogDir_NoService(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{LogDir: tmpDir, Quiet: true})
	defer logger.Close()

	logger.Info("unnamed service entry")

	filename := "clerkdesk_" + time.Now().Format("2006-01-02") + ".log"
	if _, err := os.Stat(filepath.Join(tmpDir, filename)); err != nil {
		t.Errorf("expected default-named log file: %v", err)
	}
}

func TestNew_WithLogDir_InvalidPath(t *testing.T) {
	// Directory creation fails silently; logger still works via stderr.
	logger := New(Config{
		LogDir: string([]byte{0}),
	})
	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.file != nil {
		t.Error("expected no file handle for invalid path")
	}
	defer logger.Close()
}

func TestNew_WithExporter(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	if logger.exporter == nil {
		t.Error("logger.exporter is nil")
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	defer logger.Close()

	if logger.config.Level != LevelInfo {
		t.Errorf("Default level = %v, want LevelInfo", logger.config.Level)
	}
	if logger.config.Service != "clerkdesk" {
		t.Errorf("Default service = %v, want clerkdesk", logger.config.Service)
	}
}

// =============================================================================
// Logging Tests
// =============================================================================

func TestLogger_LevelFiltering(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelWarn,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	logger.Debug("filtered debug")
	logger.Info("filtered info")
	logger.Warn("kept warn")
	logger.Error("kept error")

	time.Sleep(100 * time.Millisecond)

	entries := exporter.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 exported entries, got %d", len(entries))
	}
	if entries[0].Message != "kept warn" {
		t.Errorf("first entry = %q, want %q", entries[0].Message, "kept warn")
	}
	if entries[1].Level != LevelError {
		t.Errorf("second entry level = %v, want LevelError", entries[1].Level)
	}
}

func TestLogger_ExportedAttrs(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Service:  "concierge",
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	logger.Info("turn completed", "mode", "recommend", "product_count", 3)

	time.Sleep(100 * time.Millisecond)

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Service != "concierge" {
		t.Errorf("entry service = %q, want concierge", entry.Service)
	}
	if entry.Attrs["mode"] != "recommend" {
		t.Errorf("entry mode attr = %v, want recommend", entry.Attrs["mode"])
	}
	if entry.Attrs["product_count"] != 3 {
		t.Errorf("entry product_count attr = %v, want 3", entry.Attrs["product_count"])
	}
}

func TestLogger_With(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "concierge",
		Quiet:   true,
	})
	defer logger.Close()

	child := logger.With("shop_id", "shop-1")
	child.Info("scoped entry")

	filename := "concierge_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(tmpDir, filename))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), `"shop_id":"shop-1"`) {
		t.Errorf("child logger missing shop_id attribute, got: %s", data)
	}
}

func TestLogger_With_SharesResources(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{Exporter: exporter, Quiet: true})
	defer logger.Close()

	child := logger.With("key", "value")
	if child.exporter != logger.exporter {
		t.Error("child logger should share the exporter")
	}
	if child.file != logger.file {
		t.Error("child logger should share the file handle")
	}
}

func TestLogger_Slog(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	if logger.Slog() == nil {
		t.Error("Slog() returned nil")
	}
}

func TestLogger_Close_NoResources(t *testing.T) {
	logger := New(Config{Quiet: true})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

func TestLogger_ConcurrentUse(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Level:    LevelInfo,
		Exporter: exporter,
		Quiet:    true,
	})
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Info("concurrent log", "n", n)
		}(i)
	}
	wg.Wait()
	time.Sleep(100 * time.Millisecond)

	entries := exporter.Entries()
	if len(entries) != 100 {
		t.Errorf("Expected 100 entries, got %d", len(entries))
	}
}

// =============================================================================
// multiHandler Tests
// =============================================================================

func TestMultiHandler_Handle(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&buf1, nil),
		slog.NewTextHandler(&buf2, nil),
	}}
	logger := slog.New(h)

	logger.Info("fan out")

	if !strings.Contains(buf1.String(), "fan out") {
		t.Error("first handler did not receive the record")
	}
	if !strings.Contains(buf2.String(), "fan out") {
		t.Error("second handler did not receive the record")
	}
}

func TestMultiHandler_Enabled(t *testing.T) {
	debugOpts := &slog.HandlerOptions{Level: slog.LevelDebug}
	errorOpts := &slog.HandlerOptions{Level: slog.LevelError}
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(os.Stderr, errorOpts),
		slog.NewTextHandler(os.Stderr, debugOpts),
	}}

	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled should be true when any handler accepts the level")
	}
}

func TestMultiHandler_Enabled_NoneEnabled(t *testing.T) {
	errorOpts := &slog.HandlerOptions{Level: slog.LevelError}
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(os.Stderr, errorOpts),
	}}

	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Enabled should be false when no handler accepts the level")
	}
}

func TestMultiHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &multiHandler{handlers: []slog.Handler{
		slog.NewJSONHandler(&buf, nil),
	}}
	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("service", "concierge")}))

	logger.Info("attributed")

	if !strings.Contains(buf.String(), `"service":"concierge"`) {
		t.Errorf("missing propagated attribute, got: %s", buf.String())
	}
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"tilde", "~/.clerkdesk/logs", filepath.Join(home, ".clerkdesk/logs")},
		{"absolute", "/var/log/clerkdesk", "/var/log/clerkdesk"},
		{"relative", "logs", "logs"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expandPath(tt.in); got != tt.want {
				t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestArgsToMap(t *testing.T) {
	got := argsToMap([]any{"key1", "value1", "key2", 123})
	if got["key1"] != "value1" {
		t.Errorf("key1 = %v, want value1", got["key1"])
	}
	if got["key2"] != 123 {
		t.Errorf("key2 = %v, want 123", got["key2"])
	}
}

func TestArgsToMap_OddArgs(t *testing.T) {
	got := argsToMap([]any{"key1", "value1", "dangling"})
	if len(got) != 1 {
		t.Errorf("expected dangling key to be dropped, got %v", got)
	}
}

func TestArgsToMap_NonStringKey(t *testing.T) {
	got := argsToMap([]any{42, "value"})
	if len(got) != 0 {
		t.Errorf("expected non-string key to be dropped, got %v", got)
	}
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestNopExporter(t *testing.T) {
	e := &NopExporter{}
	if err := e.Export(context.Background(), LogEntry{}); err != nil {
		t.Errorf("Export() error = %v", err)
	}
	if err := e.Flush(context.Background()); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestBufferedExporter_Entries_ReturnsCopy(t *testing.T) {
	e := NewBufferedExporter()
	_ = e.Export(context.Background(), LogEntry{Message: "original"})

	entries := e.Entries()
	entries[0].Message = "mutated"

	if e.Entries()[0].Message != "original" {
		t.Error("Entries() should return a copy")
	}
}

func TestWriterExporter_Export(t *testing.T) {
	var buf bytes.Buffer
	e := NewWriterExporter(&buf)

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     LevelInfo,
		Message:   "written entry",
		Attrs:     map[string]any{"key": "value"},
	}
	if err := e.Export(context.Background(), entry); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "written entry") {
		t.Errorf("output missing message: %s", out)
	}
	if !strings.Contains(out, "INFO") {
		t.Errorf("output missing level: %s", out)
	}
}
