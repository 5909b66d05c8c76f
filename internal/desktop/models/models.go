// Package models defines the entity kinds mirrored by the standalone desktop
// replica (clients, vehicles, deals, documents) together with their sync
// metadata and validation rules.
package models

import "time"

// Kind identifies one of the mirrored entity tables.
type Kind string

const (
	KindClient   Kind = "clients"
	KindVehicle  Kind = "vehicles"
	KindDeal     Kind = "deals"
	KindDocument Kind = "documents"
)

// Kinds lists the entity kinds in foreign-key order: parents before the
// records that reference them. Sync pushes and pulls in this order.
func Kinds() []Kind {
	return []Kind{KindClient, KindVehicle, KindDeal, KindDocument}
}

// NowMillis returns the current wall-clock time in Unix milliseconds, the
// timestamp unit used for all record metadata.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// SyncMeta carries the per-record sync bookkeeping shared by every entity.
//
// A record is dirty (eligible for push) when SyncedAt is nil or earlier than
// UpdatedAt. SyncedAt marks the last state known to match the remote system.
type SyncMeta struct {
	// ID is the client-assigned identity, generated at creation and never
	// reassigned. The remote system either adopts it or maps it to a
	// canonical id, in which case the store remaps all references.
	ID string `json:"id"`

	// CreatedAt is set once at creation and never mutated.
	CreatedAt int64 `json:"created_at"`

	// UpdatedAt is rewritten on every local mutation, monotonically
	// non-decreasing for a given record.
	UpdatedAt int64 `json:"updated_at"`

	// SyncedAt is nil until the record has been pushed successfully.
	SyncedAt *int64 `json:"synced_at,omitempty"`

	// Deleted marks a tombstone retained until the delete is pushed.
	Deleted bool `json:"deleted,omitempty"`
}

// Dirty reports whether the record has local changes not yet pushed.
func (m *SyncMeta) Dirty() bool {
	return m.SyncedAt == nil || *m.SyncedAt < m.UpdatedAt
}

// Touch bumps UpdatedAt to now, keeping it strictly increasing even when the
// wall clock has not advanced between two edits.
func (m *SyncMeta) Touch(now int64) {
	if now <= m.UpdatedAt {
		now = m.UpdatedAt + 1
	}
	m.UpdatedAt = now
}

// MarkPulled stamps the record as just received from the remote system:
// reconciled, with SyncedAt equal to the authoritative UpdatedAt.
func (m *SyncMeta) MarkPulled() {
	ts := m.UpdatedAt
	m.SyncedAt = &ts
}
