// Package repository implements the member and team queries on top of bun.
//
// Repositories are stateless: each call receives a *Session, the unit of work
// that owns the transaction and the identity map. Rows read through a session
// are merged into its identity map, so the same id always yields the same
// instance until the session is cleared. Changes to managed instances are
// written by Session.Flush or Session.Commit; instances loaded read-only are
// never written.
package repository
