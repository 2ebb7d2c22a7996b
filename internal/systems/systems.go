// Package systems holds the system record model and the storage contract
// every backend implements.
package systems

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound reports that no record matches the requested name.
var ErrNotFound = errors.New("systems: record not found")

// File describes the attachment stored with a record. URL holds the Telegram file id.
type File struct {
	URL       string `json:"url"`
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
}

// Record is one registered system.
type Record struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	File        *File     `json:"file,omitempty"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

// Clone returns a deep copy so callers may mutate the result freely.
func (r Record) Clone() Record {
	if r.File != nil {
		f := *r.File
		r.File = &f
	}
	return r
}

// HasFile reports whether a file is attached.
func (r Record) HasFile() bool { return r.File != nil && r.File.URL != "" }

// Store is durable, name-addressed storage of records. Names are matched
// case-insensitively; Upsert replaces any record with the same key.
type Store interface {
	All(ctx context.Context) ([]Record, error)
	Get(ctx context.Context, name string) (Record, bool, error)
	Upsert(ctx context.Context, rec Record) error
	Remove(ctx context.Context, name string) (bool, error)
}

// Key folds a name into its lookup form.
func Key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SameName reports whether a and b address the same record.
func SameName(a, b string) bool {
	return Key(a) == Key(b)
}

// Field names one editable part of a record.
type Field string

const (
	FieldName        Field = "name"
	FieldDescription Field = "description"
	FieldFile        Field = "file"
)

// Fields lists the editable fields in presentation order.
var Fields = []Field{FieldName, FieldDescription, FieldFile}

// ParseField maps a raw selector value onto a Field.
func ParseField(s string) (Field, bool) {
	switch Field(strings.ToLower(strings.TrimSpace(s))) {
	case FieldName:
		return FieldName, true
	case FieldDescription:
		return FieldDescription, true
	case FieldFile:
		return FieldFile, true
	}
	return "", false
}

// IsText reports whether the field is captured from a text reply.
func (f Field) IsText() bool { return f == FieldName || f == FieldDescription }
