// Package dist implements the distribution protocol (spec component C10):
// worker discovery over a brokerage directory, toolchain manifest
// synchronization, and job dispatch/execution over a length-prefixed wire
// protocol. Grounded on the teacher's cmd/distri/builder.go (upload
// directory discipline, path-traversal guards, chunked file transfer) with
// its gRPC transport replaced by forge's own framing — built on
// graph.Writer/Reader, the same binary encoder the database file already
// uses, rather than introducing a second codec.
package dist

import "time"

// dialTimeout bounds how long Client.Dispatch waits to establish a
// connection to a worker; a failed dial is returned as an error and no
// other worker is tried.
const dialTimeout = 5 * time.Second
