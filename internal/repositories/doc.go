// Package repositories implements SQLite persistence for the client's durable state.
//
// Only two things outlive a process:
//   - [SettingsRepository] : a key/value table holding the bearer token under a fixed key
//   - [SessionEventRepository] : an audit trail of sign-in and sign-out events (never the token itself)
//
// Everything else the request pipeline owns (refresh lock, drawers, query cache) lives in memory.
package repositories
