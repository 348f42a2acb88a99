package config

import (
	"errors"
	"flag"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/relay"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func emptyLookup(string) (string, bool) { return "", false }

func TestDefaultsDev(t *testing.T) {
	cfg, err := load(emptyLookup, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeDev)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("logLevel=%v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("ListenAddr=%q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.AuthMode != AuthModeNone {
		t.Fatalf("AuthMode=%q, want %q", cfg.AuthMode, AuthModeNone)
	}
	if cfg.MaxRoomMembers != 0 {
		t.Fatalf("MaxRoomMembers=%d, want 0", cfg.MaxRoomMembers)
	}
	if cfg.DisconnectScope != relay.DisconnectScopeAll {
		t.Fatalf("DisconnectScope=%q, want %q", cfg.DisconnectScope, relay.DisconnectScopeAll)
	}
	if !cfg.RoomsEndpointEnabled() {
		t.Fatalf("RoomsEndpointEnabled=false in dev mode")
	}
	if cfg.SignalingWSPingInterval != DefaultSignalingWSPingInterval {
		t.Fatalf("SignalingWSPingInterval=%v, want %v", cfg.SignalingWSPingInterval, DefaultSignalingWSPingInterval)
	}
	if cfg.SignalingSendQueueBytes != DefaultSignalingSendQueueBytes {
		t.Fatalf("SignalingSendQueueBytes=%d, want %d", cfg.SignalingSendQueueBytes, DefaultSignalingSendQueueBytes)
	}
	if len(cfg.ICEServers) != 0 {
		t.Fatalf("ICEServers=%v, want empty", cfg.ICEServers)
	}
	if cfg.ICEConfigError() != nil {
		t.Fatalf("ICEConfigError=%v", cfg.ICEConfigError())
	}
}

func TestDefaultsProdWhenModeFlagSet(t *testing.T) {
	cfg, err := load(emptyLookup, []string{"--mode", "prod"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeProd {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeProd)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatJSON)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("logLevel=%v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
	if cfg.RoomsEndpointEnabled() {
		t.Fatalf("RoomsEndpointEnabled=true in prod without --expose-rooms")
	}
}

func TestDefaultsProdWhenModeEnvSet(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envVarMode: "production"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeProd {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeProd)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatJSON)
	}
}

func TestLogFormatExplicitOverride(t *testing.T) {
	cfg, err := load(emptyLookup, []string{"--mode", "prod", "--log-format", "text"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
}

func TestFlagOverridesEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarListenAddr:     "0.0.0.0:1",
		envVarMaxRoomMembers: "4",
	}), []string{"--listen-addr", "127.0.0.1:9999", "--max-room-members", "2"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9999" {
		t.Fatalf("ListenAddr=%q, want flag value", cfg.ListenAddr)
	}
	if cfg.MaxRoomMembers != 2 {
		t.Fatalf("MaxRoomMembers=%d, want 2", cfg.MaxRoomMembers)
	}
	if got := cfg.RelayConfig().MaxRoomMembers; got != 2 {
		t.Fatalf("RelayConfig().MaxRoomMembers=%d, want 2", got)
	}
}

func TestRoomSettingsFromEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarMaxRoomMembers:  "2",
		envVarDisconnectScope: "room",
		envVarExposeRooms:     "true",
		envVarMode:            "prod",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DisconnectScope != relay.DisconnectScopeRoom {
		t.Fatalf("DisconnectScope=%q, want %q", cfg.DisconnectScope, relay.DisconnectScopeRoom)
	}
	if !cfg.RoomsEndpointEnabled() {
		t.Fatalf("RoomsEndpointEnabled=false with EXPOSE_ROOMS=true")
	}
	rc := cfg.RelayConfig()
	if rc.MaxRoomMembers != 2 || rc.DisconnectScope != relay.DisconnectScopeRoom {
		t.Fatalf("RelayConfig=%+v", rc)
	}
}

func TestInvalidValues(t *testing.T) {
	for _, tc := range []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{name: "mode", args: []string{"--mode", "staging"}, want: "invalid mode"},
		{name: "log level", args: []string{"--log-level", "loud"}, want: "invalid log level"},
		{name: "auth mode", env: map[string]string{envVarAuthMode: "jwt"}, want: "invalid AUTH_MODE"},
		{name: "api key required", env: map[string]string{envVarAuthMode: "api_key"}, want: "API_KEY must be set"},
		{name: "disconnect scope", env: map[string]string{envVarDisconnectScope: "world"}, want: "invalid disconnect scope"},
		{name: "negative room cap", args: []string{"--max-room-members", "-1"}, want: "max-room-members"},
		{name: "negative connect rate", env: map[string]string{envVarMaxConnectsPerIPPerSecond: "-2"}, want: "max-connects-per-ip-per-second"},
		{name: "bad bool", env: map[string]string{envVarExposeRooms: "maybe"}, want: "invalid EXPOSE_ROOMS"},
		{name: "bad duration", env: map[string]string{envVarSignalingWSIdleTimeout: "soon"}, want: "invalid SIGNALING_WS_IDLE_TIMEOUT"},
		{
			name: "ping not below idle",
			args: []string{"--signaling-ws-idle-timeout", "10s", "--signaling-ws-ping-interval", "10s"},
			want: "must be <",
		},
		{
			name: "send queue below frame size",
			args: []string{"--max-signaling-message-bytes", "2048", "--signaling-send-queue-bytes", "1024"},
			want: "signaling-send-queue-bytes",
		},
		{name: "bad origin", args: []string{"--allowed-origins", "example.com"}, want: "invalid origin"},
		{
			name: "turn rest prefix colon",
			env: map[string]string{
				envVarTURNRESTSharedSecret:   "s3cret",
				envVarTURNRESTUsernamePrefix: "a:b",
			},
			want: "must not contain ':'",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(lookupMap(tc.env), tc.args)
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v, want mention of %q", err, tc.want)
			}
		})
	}
}

func TestAPIKeyMode(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarAuthMode: "API_KEY",
		envVarAPIKey:   "secret",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AuthMode != AuthModeAPIKey || cfg.APIKey != "secret" {
		t.Fatalf("auth=(%q,%q)", cfg.AuthMode, cfg.APIKey)
	}
}

func TestAllowedOriginsNormalized(t *testing.T) {
	cfg, err := load(emptyLookup, []string{"--allowed-origins", "HTTPS://Example.COM:443, *,"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := strings.Join(cfg.AllowedOrigins, ","); got != "https://example.com,*" {
		t.Fatalf("AllowedOrigins=%q", got)
	}
}

func TestSignalingDurationsFromEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarSignalingWSIdleTimeout:  "30s",
		envVarSignalingWSPingInterval: "5s",
		envVarShutdownTimeout:         "3s",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SignalingWSIdleTimeout != 30*time.Second {
		t.Fatalf("SignalingWSIdleTimeout=%v", cfg.SignalingWSIdleTimeout)
	}
	if cfg.SignalingWSPingInterval != 5*time.Second {
		t.Fatalf("SignalingWSPingInterval=%v", cfg.SignalingWSPingInterval)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("ShutdownTimeout=%v", cfg.ShutdownTimeout)
	}
}

func TestICEConfigErrorDoesNotFailLoad(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envTurnURLs: "turn:turn.example.com:3478",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ICEConfigError() == nil {
		t.Fatalf("expected ICEConfigError for TURN without credentials")
	}
}

func TestICEServersWithTURNREST(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envStunURLs:                "stun:stun.example.com:3478",
		envTurnURLs:                "turn:turn.example.com:3478",
		envVarTURNRESTSharedSecret: "s3cret",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.ICEConfigError(); err != nil {
		t.Fatalf("ICEConfigError=%v", err)
	}
	if len(cfg.ICEServers) != 2 {
		t.Fatalf("ICEServers=%v, want 2 entries", cfg.ICEServers)
	}
	if !cfg.TURNREST.Enabled() {
		t.Fatalf("TURNREST.Enabled=false")
	}
	if cfg.TURNREST.TTLSeconds != DefaultTURNRESTTTLSeconds {
		t.Fatalf("TTLSeconds=%d, want %d", cfg.TURNREST.TTLSeconds, DefaultTURNRESTTTLSeconds)
	}
}

func TestHelpFlag(t *testing.T) {
	_, err := load(emptyLookup, []string{"--help"})
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("err=%v, want flag.ErrHelp", err)
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []LogFormat{LogFormatText, LogFormatJSON} {
		logger, err := NewLogger(Config{LogFormat: format, LogLevel: slog.LevelInfo})
		if err != nil {
			t.Fatalf("NewLogger(%q): %v", format, err)
		}
		if logger == nil {
			t.Fatalf("NewLogger(%q) returned nil", format)
		}
	}
	if _, err := NewLogger(Config{LogFormat: "xml"}); err == nil {
		t.Fatalf("expected error for unsupported log format")
	}
}

func TestMaxConnectsPerIPFlag(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envVarMaxConnectsPerIPPerSecond: "3"}), []string{"--max-connects-per-ip-per-second", "7"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxConnectsPerIPPerSecond != 7 {
		t.Fatalf("MaxConnectsPerIPPerSecond=%d, want 7", cfg.MaxConnectsPerIPPerSecond)
	}
}
