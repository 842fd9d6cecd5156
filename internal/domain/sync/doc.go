// Package sync defines the core types and ports for the storefront/ledger
// reconciliation engine. Records and the remote-system port interface live
// here; concrete protocol clients are in the infrastructure layer and the
// batch orchestration is in the application layer.
package sync
