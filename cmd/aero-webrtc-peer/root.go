package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	envServerURL = "AERO_SIGNALING_URL"
	envAPIKey    = "AERO_SIGNALING_API_KEY"
	envLogLevel  = "AERO_PEER_LOG_LEVEL"

	defaultServerURL = "http://127.0.0.1:8080"
)

var (
	flagServerURL string
	flagAPIKey    string
	flagLogLevel  string
)

var rootCmd = &cobra.Command{
	Use:   "aero-webrtc-peer",
	Short: "Headless WebRTC endpoint for aero-webrtc-signaling rooms",
	Long: `aero-webrtc-peer joins a room on an aero-webrtc-signaling relay and runs the
same offer/answer negotiation as a browser client, sending synthetic audio and
video. Use it to smoke-test a relay deployment or as the other side of a call.`,
}

func execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printError(err.Error())
		stop()
		os.Exit(1)
	}
}

// settings are the resolved persistent flags: flag > env > default.
type settings struct {
	ServerURL *url.URL
	APIKey    string
	Logger    *slog.Logger
}

func loadSettings(lookup func(string) (string, bool)) (settings, error) {
	raw := firstNonEmpty(flagServerURL, lookupOr(lookup, envServerURL), defaultServerURL)
	u, err := url.Parse(raw)
	if err != nil {
		return settings{}, fmt.Errorf("invalid server url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return settings{}, fmt.Errorf("server url %q must use http or https", raw)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")

	level := slog.LevelWarn
	if rawLevel := firstNonEmpty(flagLogLevel, lookupOr(lookup, envLogLevel)); rawLevel != "" {
		if err := level.UnmarshalText([]byte(rawLevel)); err != nil {
			return settings{}, fmt.Errorf("invalid log level %q: %w", rawLevel, err)
		}
	}

	return settings{
		ServerURL: u,
		APIKey:    firstNonEmpty(flagAPIKey, lookupOr(lookup, envAPIKey)),
		Logger:    slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
	}, nil
}

// endpointURL joins path onto the server base URL.
func (s settings) endpointURL(path string) *url.URL {
	u := *s.ServerURL
	u.Path += path
	u.RawQuery = ""
	return &u
}

// wsURL is the relay's WebSocket endpoint.
func (s settings) wsURL() string {
	u := s.endpointURL("/ws")
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u.String()
}

func lookupOr(lookup func(string) (string, bool), key string) string {
	v, _ := lookup(key)
	return strings.TrimSpace(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "Relay base URL ("+envServerURL+", default "+defaultServerURL+")")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "API key for relays running AUTH_MODE=api_key ("+envAPIKey+")")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error ("+envLogLevel+", default warn)")
}
