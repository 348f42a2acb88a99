package main

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
)

func TestNetworkOptions(t *testing.T) {
	opts, err := networkOptions(50000, 50010, []string{"203.0.113.7", " 2001:db8::1 "}, "10.0.0.5")
	if err != nil {
		t.Fatalf("networkOptions: %v", err)
	}
	if opts.UDPPortMin != 50000 || opts.UDPPortMax != 50010 {
		t.Fatalf("ports=%d-%d, want 50000-50010", opts.UDPPortMin, opts.UDPPortMax)
	}
	if want := []string{"203.0.113.7", "2001:db8::1"}; !reflect.DeepEqual(opts.NAT1To1IPs, want) {
		t.Fatalf("nat 1:1=%v, want %v", opts.NAT1To1IPs, want)
	}
	if opts.ListenIP.String() != "10.0.0.5" {
		t.Fatalf("listen ip=%v, want 10.0.0.5", opts.ListenIP)
	}

	opts, err = networkOptions(0, 0, nil, "")
	if err != nil {
		t.Fatalf("networkOptions(empty): %v", err)
	}
	if opts.NAT1To1IPs != nil || opts.ListenIP != nil {
		t.Fatalf("opts=%+v, want no addresses", opts)
	}

	for _, tc := range []struct {
		nat    []string
		listen string
		want   string
	}{
		{nat: []string{"relay.example.com"}, want: "--nat-1to1-ip"},
		{listen: "10.0.0", want: "--udp-listen-ip"},
	} {
		if _, err := networkOptions(0, 0, tc.nat, tc.listen); err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("networkOptions(%v, %q) err=%v, want mention of %s", tc.nat, tc.listen, err, tc.want)
		}
	}
}

func TestJoinRoom_LeavesDialTimeoutFlagAlone(t *testing.T) {
	oldTimeout, oldSkip := flagJoinDialTimeout, flagJoinSkipICEFetch
	t.Cleanup(func() { flagJoinDialTimeout, flagJoinSkipICEFetch = oldTimeout, oldSkip })
	flagJoinDialTimeout, flagJoinSkipICEFetch = 0, true

	// A closed server gives an address that refuses connections.
	ts := httptest.NewServer(nil)
	s := testSettings(t, ts.URL)
	ts.Close()
	s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	if err := joinRoom(context.Background(), s, "lobby"); err == nil {
		t.Fatalf("joinRoom succeeded against a closed server")
	}
	if flagJoinDialTimeout != 0 {
		t.Fatalf("flagJoinDialTimeout=%v, want it left at 0", flagJoinDialTimeout)
	}
}
