// Package scanbridge is a single-process WebSocket broker that bridges
// browser clients to physical document scanners on the host.
//
// # Architecture
//
// The broker is a small set of components supervised from cmd/scanbridge:
//
//	┌─────────────────────────────────────┐
//	│            Gateway                  │  WebSocket server, origin
//	│   (connection registry + codec)     │  admission, JSON protocol
//	└─────────────────────────────────────┘
//	           ↓ dispatches
//	┌──────────────────┬──────────────────┐
//	│    Discovery     │  Job Controller  │  scanimage -L parsing;
//	│ (device listing) │ (scanjob package)│  per-connection job slots
//	└──────────────────┴──────────────────┘
//	           ↓ supervises
//	┌─────────────────────────────────────┐
//	│        scanimage subprocess         │  one per active job,
//	│  (or simulated test-device backend) │  SIGTERM → SIGKILL teardown
//	└─────────────────────────────────────┘
//
// Every event produced by a job or a discovery run is delivered only to the
// connection that requested it. A connection owns at most one active job;
// closing the connection tears the job down.
//
// Supporting packages:
//   - component: lifecycle contract shared by long-running components
//   - config: JSON file + environment configuration with schema validation
//   - errors: classified error wrapping (transient / invalid / fatal)
//   - metric: prometheus registry and the metrics/health HTTP server
//   - protocol: wire-level message types and codec
package scanbridge
