// Package signaling exposes the relay over WebSocket.
//
// Each accepted socket becomes one relay connection. Inbound JSON frames are
// parsed and handed to the relay sequentially by the socket's read loop;
// outbound events are encoded into a byte-bounded queue drained by a single
// writer goroutine. The package also carries a small Go client used by the
// headless peer and by tests.
package signaling
