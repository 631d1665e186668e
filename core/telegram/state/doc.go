// Package state keeps per-user conversation sessions in memory with an
// inactivity TTL. Updates for one user are serialized through Store.Do.
package state
