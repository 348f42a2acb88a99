// Command aero-webrtc-peer is a headless endpoint: it joins a room on an
// aero-webrtc-signaling relay and negotiates a call with synthetic media.
package main

func main() {
	execute()
}
