// Package database owns the connection lifecycle for the member/team store:
// dialect selection, pool tuning, query hooks (debug output, slow query
// warnings, prometheus counters), versioned migrations with optional foreign
// keys, and environment-specific SQL seed files.
package database
