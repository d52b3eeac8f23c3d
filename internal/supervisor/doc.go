// Heliotrack - Space Weather Event Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/heliotrack

/*
Package supervisor runs the long-lived Heliotrack services under suture v4.

The tree has three layers that restart independently:

	RootSupervisor ("heliotrack")
	├── DataSupervisor ("data-layer")
	│   ├── JournalCompactorService (if WAL enabled)
	│   └── retention sweeper
	├── IngestSupervisor ("ingest-layer")
	│   └── ingest poller
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

A poller that keeps failing against an upstream feed backs off without
taking the HTTP server down with it, and the API keeps serving what is
already stored.

Lifecycle events are logged through sutureslog using the process slog
logger.
*/
package supervisor
