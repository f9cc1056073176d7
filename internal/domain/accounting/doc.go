// Package accounting contains the domain model for the accounting
// integration hub: per-tenant accounting system configurations, the
// connector port implemented by each vendor adapter, sync/audit log and
// sync error entities, and the pure error classification rules shared by
// the retry executor and the job queue.
package accounting
