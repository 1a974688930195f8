// Package frame owns the commando wire format.
//
// Ownership boundary:
// - stream units ([type][length][body])
// - commando request encoding
// - reply classification and reassembly
// - init and ping/pong messages
package frame
