package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/relay"
)

type recordedLog struct {
	level slog.Level
	msg   string
	attrs map[string]any
}

type recordingHandler struct {
	mu      *sync.Mutex
	records *[]recordedLog
	attrs   []slog.Attr
	groups  []string
}

func newRecordingLogger() (*slog.Logger, func() []recordedLog) {
	mu := &sync.Mutex{}
	records := &[]recordedLog{}
	logger := slog.New(&recordingHandler{mu: mu, records: records})
	return logger, func() []recordedLog {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedLog, len(*records))
		copy(out, *records)
		return out
	}
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	rec := recordedLog{level: r.Level, msg: r.Message, attrs: map[string]any{}}
	for _, a := range h.attrs {
		rec.attrs[h.key(a.Key)] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[h.key(a.Key)] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	*h.records = append(*h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &nh
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	nh := *h
	nh.groups = append(append([]string(nil), h.groups...), name)
	return &nh
}

func (h *recordingHandler) key(k string) string {
	if len(h.groups) == 0 {
		return k
	}
	return strings.Join(h.groups, ".") + "." + k
}

func warningCodes(records []recordedLog) map[string]recordedLog {
	out := map[string]recordedLog{}
	for _, r := range records {
		if r.level != slog.LevelWarn {
			continue
		}
		if code, ok := r.attrs["warning_code"].(string); ok {
			out[code] = r
		}
	}
	return out
}

func TestStartupSecurityWarnings_AuthModeNone(t *testing.T) {
	logger, records := newRecordingLogger()

	logStartupSecurityWarnings(logger, config.Config{
		Mode:     config.ModeDev,
		AuthMode: config.AuthModeNone,
	})

	r, ok := warningCodes(records())["auth_mode_none"]
	if !ok {
		t.Fatalf("expected warning_code=auth_mode_none, got %#v", records())
	}
	if r.attrs["auth_mode"] != config.AuthModeNone {
		t.Fatalf("auth_mode attr = %#v, want %q", r.attrs["auth_mode"], config.AuthModeNone)
	}
}

func TestStartupSecurityWarnings_AllowedOriginsWildcard(t *testing.T) {
	logger, records := newRecordingLogger()

	logStartupSecurityWarnings(logger, config.Config{
		Mode:           config.ModeDev,
		AuthMode:       config.AuthModeAPIKey,
		APIKey:         "secret",
		AllowedOrigins: []string{"*"},
	})

	if _, ok := warningCodes(records())["allowed_origins_wildcard"]; !ok {
		t.Fatalf("expected warning_code=allowed_origins_wildcard, got %#v", records())
	}
}

func TestStartupSecurityWarnings_ProdOnly(t *testing.T) {
	cfg := config.Config{
		AuthMode:        config.AuthModeAPIKey,
		APIKey:          "secret",
		DisconnectScope: relay.DisconnectScopeAll,
		ExposeRooms:     true,
	}
	prodCodes := []string{
		"disconnect_scope_all_in_prod",
		"max_room_members_unlimited_in_prod",
		"rooms_endpoint_in_prod",
		"connect_rate_unlimited_in_prod",
	}

	cfg.Mode = config.ModeDev
	logger, records := newRecordingLogger()
	logStartupSecurityWarnings(logger, cfg)
	if got := warningCodes(records()); len(got) != 0 {
		t.Fatalf("dev mode warnings=%v, want none", got)
	}

	cfg.Mode = config.ModeProd
	logger, records = newRecordingLogger()
	logStartupSecurityWarnings(logger, cfg)
	got := warningCodes(records())
	for _, code := range prodCodes {
		if _, ok := got[code]; !ok {
			t.Fatalf("missing warning_code=%s in %v", code, got)
		}
	}
}

func TestStartupSecurityWarnings_HardenedProdIsQuiet(t *testing.T) {
	logger, records := newRecordingLogger()

	logStartupSecurityWarnings(logger, config.Config{
		Mode:                      config.ModeProd,
		AuthMode:                  config.AuthModeAPIKey,
		APIKey:                    "secret",
		AllowedOrigins:            []string{"https://app.example.com"},
		DisconnectScope:           relay.DisconnectScopeRoom,
		MaxRoomMembers:            2,
		MaxConnectsPerIPPerSecond: 5,
	})

	if got := warningCodes(records()); len(got) != 0 {
		t.Fatalf("warnings=%v, want none", got)
	}
}
