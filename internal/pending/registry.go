// Package pending holds the in-flight state of create and update flows,
// keyed by the user who started them. Entries live only as long as their
// flow: every terminal path deletes them.
package pending

import (
	"sync"
	"time"

	"github.com/m3rciful/systembot/internal/systems"
)

// Creation is a create flow waiting for its attachment.
type Creation struct {
	// FlowID ties the entry to the session that owns it.
	FlowID      string
	UserID      int64
	SystemName  string
	Description string
	StartedAt   time.Time
	ChatID      int64
}

// CreationFile is the attachment captured for a Creation, awaiting confirmation.
type CreationFile struct {
	FlowID      string
	File        systems.File
	SystemName  string
	Description string
}

// Update is an update flow for one field of an existing record.
type Update struct {
	FlowID     string
	UserID     int64
	SystemName string
	Field      systems.Field
	StartedAt  time.Time
	ChatID     int64
	// NewValue is set once the replacement text has been captured.
	NewValue string
	HasValue bool
}

// UpdateFile is the replacement attachment of an update flow.
type UpdateFile struct {
	FlowID string
	File   systems.File
}

type table[T any] struct {
	mu sync.RWMutex
	m  map[int64]T
}

func newTable[T any]() *table[T] {
	return &table[T]{m: make(map[int64]T)}
}

func (t *table[T]) set(uid int64, v T) {
	t.mu.Lock()
	t.m[uid] = v
	t.mu.Unlock()
}

func (t *table[T]) get(uid int64) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.m[uid]
	return v, ok
}

func (t *table[T]) delIf(uid int64, match func(T) bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.m[uid]
	if !ok || !match(v) {
		return false
	}
	delete(t.m, uid)
	return true
}

func (t *table[T]) amend(uid int64, fn func(*T) bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.m[uid]
	if !ok || !fn(&v) {
		return false
	}
	t.m[uid] = v
	return true
}

func (t *table[T]) snapshot() map[int64]T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int64]T, len(t.m))
	for k, v := range t.m {
		out[k] = v
	}
	return out
}

func (t *table[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.m)
}

// Registry groups the four pending categories.
type Registry struct {
	creations     *table[Creation]
	creationFiles *table[CreationFile]
	updates       *table[Update]
	updateFiles   *table[UpdateFile]
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		creations:     newTable[Creation](),
		creationFiles: newTable[CreationFile](),
		updates:       newTable[Update](),
		updateFiles:   newTable[UpdateFile](),
	}
}

// SetCreation stores the entry of a create flow waiting for its file.
func (r *Registry) SetCreation(uid int64, c Creation) { r.creations.set(uid, c) }

// Creation returns the waiting create entry of uid.
func (r *Registry) Creation(uid int64) (Creation, bool) { return r.creations.get(uid) }

// SetCreationFile stores the attachment of a create flow awaiting confirmation.
func (r *Registry) SetCreationFile(uid int64, f CreationFile) { r.creationFiles.set(uid, f) }

// CreationFile returns the captured create attachment of uid.
func (r *Registry) CreationFile(uid int64) (CreationFile, bool) { return r.creationFiles.get(uid) }

// SetUpdate stores the entry of an update flow.
func (r *Registry) SetUpdate(uid int64, u Update) { r.updates.set(uid, u) }

// Update returns the update entry of uid.
func (r *Registry) Update(uid int64) (Update, bool) { return r.updates.get(uid) }

// SetUpdateFile stores the replacement attachment of an update flow.
func (r *Registry) SetUpdateFile(uid int64, f UpdateFile) { r.updateFiles.set(uid, f) }

// UpdateFile returns the captured replacement attachment of uid.
func (r *Registry) UpdateFile(uid int64) (UpdateFile, bool) { return r.updateFiles.get(uid) }

// ReleaseCreate drops the creation entries of uid that belong to flowID.
// Entries written by a newer flow of the same user survive.
func (r *Registry) ReleaseCreate(uid int64, flowID string) {
	r.creations.delIf(uid, func(c Creation) bool { return c.FlowID == flowID })
	r.creationFiles.delIf(uid, func(f CreationFile) bool { return f.FlowID == flowID })
}

// ReleaseUpdate drops the update entries of uid that belong to flowID.
func (r *Registry) ReleaseUpdate(uid int64, flowID string) {
	r.updates.delIf(uid, func(u Update) bool { return u.FlowID == flowID })
	r.updateFiles.delIf(uid, func(f UpdateFile) bool { return f.FlowID == flowID })
}

// AmendUpdate applies fn to the update entry of uid when it belongs to flowID.
func (r *Registry) AmendUpdate(uid int64, flowID string, fn func(*Update)) bool {
	return r.updates.amend(uid, func(u *Update) bool {
		if u.FlowID != flowID {
			return false
		}
		fn(u)
		return true
	})
}

// Snapshot is a point-in-time copy of every category.
type Snapshot struct {
	Creations     map[int64]Creation
	CreationFiles map[int64]CreationFile
	Updates       map[int64]Update
	UpdateFiles   map[int64]UpdateFile
}

// Snapshot copies the registry contents.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		Creations:     r.creations.snapshot(),
		CreationFiles: r.creationFiles.snapshot(),
		Updates:       r.updates.snapshot(),
		UpdateFiles:   r.updateFiles.snapshot(),
	}
}

// Len returns the total number of entries across categories.
func (r *Registry) Len() int {
	return r.creations.len() + r.creationFiles.len() + r.updates.len() + r.updateFiles.len()
}
