// Package session owns commando session reliability settings.
//
// Ownership boundary:
// - connect/handshake/read/write timeouts
// - reconnect backoff
// - TLS wrapper validation for the stream transport
package session
