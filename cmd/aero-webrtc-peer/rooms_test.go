package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/relay"
)

func TestFetchRooms(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rooms" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[{"id":"lobby","members":2}]`))
	}))
	defer ts.Close()

	rooms, err := fetchRooms(context.Background(), ts.Client(), testSettings(t, ts.URL))
	if err != nil {
		t.Fatalf("fetchRooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0] != (relay.RoomInfo{ID: "lobby", Members: 2}) {
		t.Fatalf("rooms=%+v", rooms)
	}
}

func TestFetchRooms_Disabled(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	if _, err := fetchRooms(context.Background(), ts.Client(), testSettings(t, ts.URL)); !errors.Is(err, errRoomsDisabled) {
		t.Fatalf("err=%v, want %v", err, errRoomsDisabled)
	}
}

func TestRoomsTableView(t *testing.T) {
	if got := roomsTableView(nil); !strings.Contains(got, "No active rooms") {
		t.Fatalf("empty view=%q", got)
	}
	view := roomsTableView([]relay.RoomInfo{{ID: "lobby", Members: 2}, {ID: "side", Members: 1}})
	for _, want := range []string{"Room", "Members", "lobby", "side"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q:\n%s", want, view)
		}
	}
}
