// Package bare is a CORS-bypass proxy engine compatible with version 3 of
// the bare server protocol.
//
// Clients send the real request description in X-Bare-* headers to
// <prefix>v3/ and receive the remote response wrapped in 200 responses:
//
// browser --- X-Bare-URL ---> [ bare ] ------> remote
//
// Websocket clients upgrade <prefix>v3/, describe the remote in a first
// "connect" message, and are then bridged frame by frame.
package bare
