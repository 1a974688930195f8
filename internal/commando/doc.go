// Package commando is a client for the Core Lightning commando RPC plugin.
//
// A Client sends one JSON-RPC request at a time over a transport.Transport
// and reassembles the streamed reply. When the session drops mid-call the
// client releases the transport, waits the configured backoff, connects a
// new one from its factory and retries the call once. A second failure is
// returned to the caller and the client stays disconnected until the next
// call or an explicit Connect.
//
// The helpers in wallet.go map a small wallet vocabulary onto invoice RPCs:
// an address is a bolt11 invoice and a balance is what it has received.
package commando
