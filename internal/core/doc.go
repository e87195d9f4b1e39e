// Package core provides the import service that sits between the transports
// (HTTP, CLI) and the ingestion pipeline.
//
// It has no knowledge of HTTP or flags; web handlers, the CLI and tests all
// drive it the same way.
//
// # Service
//
// [Service] wraps [ingest.Pipeline] with everything a running system needs:
//
//   - Dialect resolution, including detection for "auto".
//   - An [ImportLimiter] capping concurrent imports.
//   - A per-import timeout.
//   - Persistence of accepted records and of every run through a [Store].
//   - Prometheus metrics via [metrics.Registry].
//
// A typical import:
//
//	out, err := svc.Import(ctx, core.ImportRequest{
//	    Dialect:  "auto",
//	    FileName: "roster.csv",
//	    Data:     data,
//	    Expected: 560,
//	})
//	if err != nil {
//	    ue := core.NewUserError(err)
//	    // ue.User.Code, ue.Hints; out may still carry the partial report
//	}
//
// [Service.Preview] runs the same pipeline without touching the store.
//
// # Import History
//
// Every import, successful or not, is stored as an [ImportRun] with its
// report, error code and duration. [Service.StartRetentionScheduler] purges
// runs older than the retention window.
//
// # Error Handling
//
// Technical errors are mapped to user-facing messages with [MapError]. Codes
// are grouped by category:
//
//   - IMP001-IMP006: ingestion failures and unknown dialects
//   - FILE001-FILE004: file size, presence, type and readability
//   - DB001-DB007: store errors
//   - UPL001-UPL003: busy, cancelled, timed out
//   - RATE001: rate limited
package core
