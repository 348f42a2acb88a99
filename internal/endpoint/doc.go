// Package endpoint implements the peer side of a call: acquiring media,
// joining a room through a Signaler and walking the offer/answer exchange
// through a PeerTransport.
//
// Lifecycle: Idle -> MediaReady -> Negotiating -> Connected, with Closed
// reachable from every state. An Endpoint is single use; once Closed it never
// leaves that state.
package endpoint
