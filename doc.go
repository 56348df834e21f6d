// Package greentea is the root of the tgvisd Telegram history
// ingestion daemon.
//
// # Architecture
//
// The daemon visits Telegram chats through a session bridge socket and
// persists their messages to MySQL. Work flows through three layers:
//
//   - tdclient: typed client over the bridge transport, pairing
//     requests with responses and fanning updates out to callbacks
//   - workqueue: bounded worker pool with a free-slot ring, a grower
//     and idle eviction, shared by every producer in the process
//   - storage: MySQL pool with schema migration and upsert-style
//     writers for chats, senders and messages
//
// Two producers feed the queue. The ingest component consumes live
// message updates as they arrive. The optional scraper sweeps chat
// histories on an interval, walking each chat backwards from the
// newest message.
//
// The daemon package wires everything together: it starts components
// in dependency order, exposes their health on the metrics listener
// and drains producers before workers on shutdown.
//
// # Packages
//
//   - cmd/tgvisd: process entry point
//   - daemon: lifecycle assembly and shutdown ordering
//   - ingest, scraper: queue producers
//   - workqueue: work dispatch substrate
//   - tdclient: Telegram session bridge client
//   - storage: MySQL persistence
//   - config: environment and file configuration
//   - errors: classified error handling
//   - health, metric, component: observability and lifecycle contracts
//   - pkg/lockmap, pkg/retry, pkg/cache: small shared utilities
package greentea
