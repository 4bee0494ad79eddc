// Package store keeps the export history and user settings.
package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/doc-scanner/pkg/types"
)

const (
	// DefaultHistoryLimit is the number of records listed when no limit is given
	DefaultHistoryLimit = 10

	// DefaultRetentionHours is the age after which records are pruned
	DefaultRetentionHours = 24

	// SettingAIEnhancement toggles AI enhancement of recognized text
	SettingAIEnhancement = "aiEnhancement"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// ListOptions filters a history listing. A zero Type lists every type and a
// non-positive Limit lists everything.
type ListOptions struct {
	Type  types.ScanType
	Limit int
}

// Store persists scan records and settings
type Store interface {
	// Save inserts or replaces a record, assigning ID and Date when empty
	Save(ctx context.Context, rec *types.ScanRecord) error
	Get(ctx context.Context, id string) (types.ScanRecord, error)
	// List returns records newest first
	List(ctx context.Context, opts ListOptions) ([]types.ScanRecord, error)
	Delete(ctx context.Context, id string) error
	DeleteOlderThan(ctx context.Context, hours int) (int, error)
	Clear(ctx context.Context) error

	GetSetting(ctx context.Context, key, def string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	AllSettings(ctx context.Context) (map[string]string, error)
	DeleteSetting(ctx context.Context, key string) error

	// Size is the approximate serialized size of everything stored, in bytes
	Size(ctx context.Context) (int64, error)
	ClearAll(ctx context.Context) error
	Close() error
}

// BoolSetting reads a boolean setting, returning def when unset or unparsable
func BoolSetting(ctx context.Context, s Store, key string, def bool) bool {
	v, err := s.GetSetting(ctx, key, strconv.FormatBool(def))
	if err != nil {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// SetBoolSetting writes a boolean setting
func SetBoolSetting(ctx context.Context, s Store, key string, v bool) error {
	return s.SetSetting(ctx, key, strconv.FormatBool(v))
}

func prepare(rec *types.ScanRecord, now time.Time) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Date.IsZero() {
		rec.Date = now
	}
}
