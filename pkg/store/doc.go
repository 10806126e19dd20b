// Package store provides SQLite-backed persistence for the share broker:
// datasets and their catalog tables, share objects and items, the resource
// policy ledger, synchronization task records, and the audit log.
//
// Entity type definitions live in sqlite.go alongside schema creation; the
// remaining files group methods by entity family. Request-path mutations
// that span entities (lifecycle.go, stewardship.go) run as single
// transactions, and status writes use compare-and-swap updates so concurrent
// transitions serialize instead of silently overwriting each other.
package store
