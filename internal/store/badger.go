// GeoSentry - Real-Time Geospatial Risk Assessment
// Copyright 2026 GeoSentry Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/geosentry/geosentry

// Package store persists alert history and archived session tracks in
// BadgerDB. Alert entries carry a TTL matching the configured retention
// so history ages out without an explicit sweeper.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"

	"github.com/geosentry/geosentry/internal/config"
	"github.com/geosentry/geosentry/internal/logging"
	"github.com/geosentry/geosentry/internal/metrics"
	"github.com/geosentry/geosentry/internal/models"
)

// Key prefixes for BadgerDB storage
const (
	alertKeyPrefix        = "alert:"
	alertTimeKeyPrefix    = "alert_ts:"
	alertSessionKeyPrefix = "alert_session:"
	trackKeyPrefix        = "track:"
)

var ErrAlertNotFound = errors.New("alert not found")

// Store is the BadgerDB-backed persistence layer.
type Store struct {
	db        *badger.DB
	retention time.Duration
}

// Open opens (or creates) the store at the configured path.
func Open(cfg config.StoreConfig) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path).WithInMemory(cfg.InMemory)
	if cfg.InMemory {
		opts.Dir = ""
		opts.ValueDir = ""
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	return &Store{db: db, retention: cfg.AlertRetention}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// timeKey orders alerts by creation time; the nanosecond component and
// the ID suffix keep keys unique.
func timeKey(prefix string, at time.Time, id string) []byte {
	return []byte(prefix + strconv.FormatInt(at.UnixNano(), 10) + ":" + id)
}

// PutAlert persists an alert and its time and session index entries.
func (s *Store) PutAlert(ctx context.Context, alert *models.Alert) error {
	start := time.Now()

	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(alertKeyPrefix+alert.ID), data).WithTTL(s.retention)
		if err := txn.SetEntry(entry); err != nil {
			return fmt.Errorf("set alert: %w", err)
		}

		tsEntry := badger.NewEntry(
			timeKey(alertTimeKeyPrefix, alert.CreatedAt, alert.ID),
			[]byte(alert.ID)).WithTTL(s.retention)
		if err := txn.SetEntry(tsEntry); err != nil {
			return fmt.Errorf("set time index: %w", err)
		}

		sessEntry := badger.NewEntry(
			timeKey(alertSessionKeyPrefix+alert.SessionID+":", alert.CreatedAt, alert.ID),
			[]byte(alert.ID)).WithTTL(s.retention)
		if err := txn.SetEntry(sessEntry); err != nil {
			return fmt.Errorf("set session index: %w", err)
		}

		return nil
	})

	metrics.RecordStoreOperation("put_alert", time.Since(start), err)
	return err
}

// GetAlert retrieves one alert by ID.
func (s *Store) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	var alert models.Alert

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(alertKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrAlertNotFound
		}
		if err != nil {
			return fmt.Errorf("get alert: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &alert)
		})
	})
	if err != nil {
		return nil, err
	}

	return &alert, nil
}

// ListAlerts returns alerts newest first, paged by limit and offset.
// When sessionID is non-empty only that session's alerts are returned.
func (s *Store) ListAlerts(ctx context.Context, sessionID string, limit, offset int) ([]models.Alert, error) {
	start := time.Now()

	prefix := alertTimeKeyPrefix
	if sessionID != "" {
		prefix = alertSessionKeyPrefix + sessionID + ":"
	}

	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek key past the whole prefix range.
		seek := append([]byte(prefix), 0xff)
		skipped := 0
		for it.Seek(seek); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			if len(ids) >= limit {
				break
			}
			if err := it.Item().Value(func(val []byte) error {
				ids = append(ids, string(val))
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	metrics.RecordStoreOperation("list_alerts", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	alerts := make([]models.Alert, 0, len(ids))
	for _, id := range ids {
		a, err := s.GetAlert(ctx, id)
		if errors.Is(err, ErrAlertNotFound) {
			// Index entry outlived the alert entry; skip.
			continue
		}
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, nil
}

// ArchiveTrack persists a session's track for audit when the session is
// torn down.
func (s *Store) ArchiveTrack(ctx context.Context, sessionID string, track []models.LocationPing) error {
	start := time.Now()

	data, err := json.Marshal(track)
	if err != nil {
		return fmt.Errorf("marshal track: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(trackKeyPrefix+sessionID), data).WithTTL(s.retention)
		return txn.SetEntry(entry)
	})
	metrics.RecordStoreOperation("put_track", time.Since(start), err)
	return err
}

// GetArchivedTrack retrieves an archived session track. A missing
// archive returns an empty track, not an error.
func (s *Store) GetArchivedTrack(ctx context.Context, sessionID string) ([]models.LocationPing, error) {
	var track []models.LocationPing

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(trackKeyPrefix + sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get track: %w", err)
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &track)
		})
	})
	if err != nil {
		return nil, err
	}

	return track, nil
}

// RunGC runs one value-log garbage collection cycle. Badger asks
// callers to do this periodically; ErrNoRewrite just means there was
// nothing to collect.
func (s *Store) RunGC() {
	start := time.Now()
	err := s.db.RunValueLogGC(0.5)
	if errors.Is(err, badger.ErrNoRewrite) {
		err = nil
	}
	metrics.RecordStoreOperation("gc", time.Since(start), err)
	if err != nil {
		logging.Warn().Err(err).Msg("badger value log GC failed")
	}
}

// Sink adapts the store to the alert dispatcher.
type Sink struct {
	store *Store
}

// NewSink wraps a Store as an alert delivery sink.
func NewSink(store *Store) *Sink {
	return &Sink{store: store}
}

// Name implements the dispatcher sink interface.
func (s *Sink) Name() string { return "store" }

// Deliver persists the alert.
func (s *Sink) Deliver(ctx context.Context, alert *models.Alert) error {
	return s.store.PutAlert(ctx, alert)
}
