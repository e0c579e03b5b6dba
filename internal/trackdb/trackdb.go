/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package trackdb is a small badger-backed track database: track names,
// aliases, per-track and global preferences, and collection scanning.
package trackdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/friendsincode/grimnir_jukebox/internal/choose"
	"github.com/rs/zerolog"
)

const version uint32 = 1

type recordType byte

const (
	recordTypeVersion recordType = iota
	recordTypeTrack
	recordTypePrefs
	recordTypeGlobal
)

var (
	ErrNoSuchTrack     = errors.New("no such track")
	ErrVersionMismatch = errors.New("version mismatch")
)

// trackData is the stored record for one track name.
type trackData struct {
	AliasFor string
	Noticed  int64
}

// DB is the track database.
type DB struct {
	db       *badger.DB
	inMemory bool
	logger   zerolog.Logger

	mu    sync.RWMutex
	roots []string

	now func() time.Time
}

// Open opens the database at path; ":memory:" gives a throwaway one.
func Open(path string, logger zerolog.Logger) (*DB, error) {
	var opts badger.Options
	inMemory := path == ":memory:"
	if inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open track database: %w", err)
	}

	if v, err := checkVersion(db); err != nil {
		db.Close()
		return nil, err
	} else if v != version {
		db.Close()
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrVersionMismatch, version, v)
	}

	return &DB{
		db:       db,
		inMemory: inMemory,
		logger:   logger.With().Str("component", "trackdb").Logger(),
		now:      time.Now,
	}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// GC reclaims value log space.
func (d *DB) GC() (err error) {
	if d.inMemory {
		return nil
	}
	err = d.db.RunValueLogGC(0.5)
	for err == nil {
		err = d.db.RunValueLogGC(0.5)
	}
	if errors.Is(err, badger.ErrNoRewrite) {
		err = nil
	}
	return
}

// SetCollections replaces the list of collection roots.
func (d *DB) SetCollections(roots []string) {
	clean := make([]string, 0, len(roots))
	for _, r := range roots {
		clean = append(clean, filepath.Clean(r))
	}
	d.mu.Lock()
	d.roots = clean
	d.mu.Unlock()
}

// FindRoot returns the collection root containing track.
func (d *DB) FindRoot(track string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, root := range d.roots {
		if track == root || strings.HasPrefix(track, root+string(filepath.Separator)) {
			return root, true
		}
	}
	return "", false
}

// Exists reports whether track is known, as a real track or an alias.
func (d *DB) Exists(track string) (bool, error) {
	_, err := d.getTrack(track)
	if errors.Is(err, ErrNoSuchTrack) {
		return false, nil
	}
	return err == nil, err
}

// Resolve returns the canonical name of track, following an alias.
func (d *DB) Resolve(track string) (string, error) {
	td, err := d.getTrack(track)
	if err != nil {
		return "", err
	}
	if td.AliasFor != "" {
		return td.AliasFor, nil
	}
	return track, nil
}

// Noticed returns when track was first seen, or the zero time.
func (d *DB) Noticed(track string) (time.Time, error) {
	td, err := d.getTrack(track)
	if err != nil {
		return time.Time{}, err
	}
	if td.Noticed == 0 {
		return time.Time{}, nil
	}
	return time.Unix(td.Noticed, 0), nil
}

// AddTrack records track, setting its noticed time if it is new. It
// reports whether the track was new.
func (d *DB) AddTrack(track string) (bool, error) {
	added := false
	err := d.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(trackKey(track)); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		added = true
		return putGob(txn, trackKey(track), trackData{Noticed: d.now().Unix()})
	})
	if err != nil {
		return false, fmt.Errorf("add track %s: %w", track, err)
	}
	return added, nil
}

// AddAlias records alias as another name for target.
func (d *DB) AddAlias(alias, target string) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		return putGob(txn, trackKey(alias), trackData{AliasFor: target})
	})
	if err != nil {
		return fmt.Errorf("add alias %s: %w", alias, err)
	}
	return nil
}

// RemoveTrack forgets track and its preferences.
func (d *DB) RemoveTrack(track string) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(trackKey(track)); err != nil {
			return err
		}
		return txn.Delete(prefsKey(track))
	})
	if err != nil {
		return fmt.Errorf("remove track %s: %w", track, err)
	}
	return nil
}

// Pref returns a track preference, or "" when unset.
func (d *DB) Pref(track, key string) (string, error) {
	var prefs map[string]string
	err := d.db.View(func(txn *badger.Txn) error {
		var err error
		prefs, err = getPrefs(txn, track)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("get pref %s for %s: %w", key, track, err)
	}
	return prefs[key], nil
}

// SetPref sets a track preference; an empty value unsets it.
func (d *DB) SetPref(track, key, value string) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		prefs, err := getPrefs(txn, track)
		if err != nil {
			return err
		}
		if value == "" {
			delete(prefs, key)
		} else {
			prefs[key] = value
		}
		if len(prefs) == 0 {
			return txn.Delete(prefsKey(track))
		}
		return putGob(txn, prefsKey(track), prefs)
	})
	if err != nil {
		return fmt.Errorf("set pref %s for %s: %w", key, track, err)
	}
	return nil
}

// GlobalPref returns a global preference, or "" when unset.
func (d *DB) GlobalPref(key string) (string, error) {
	var value string
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(globalKey(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("get global pref %s: %w", key, err)
	}
	return value, nil
}

// SetGlobalPref sets a global preference; an empty value unsets it.
func (d *DB) SetGlobalPref(key, value, who string) error {
	err := d.db.Update(func(txn *badger.Txn) error {
		if value == "" {
			return txn.Delete(globalKey(key))
		}
		return txn.Set(globalKey(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("set global pref %s: %w", key, err)
	}
	d.logger.Info().Str("key", key).Str("value", value).Str("who", who).Msg("global preference changed")
	return nil
}

// MarkPlayed records when track last started playing.
func (d *DB) MarkPlayed(track string, when time.Time) error {
	return d.SetPref(track, choose.PrefPlayedTime, strconv.FormatInt(when.Unix(), 10))
}

// Scan calls fn for every stored track name in key order.
func (d *DB) Scan(ctx context.Context, fn func(choose.Candidate) error) error {
	return d.db.View(func(txn *badger.Txn) error {
		prefix := []byte{byte(recordTypeTrack)}
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			track := string(item.Key()[1:])
			var td trackData
			if err := item.Value(func(val []byte) error {
				return gob.NewDecoder(bytes.NewReader(val)).Decode(&td)
			}); err != nil {
				return fmt.Errorf("decode track %s: %w", track, err)
			}
			prefs, err := getPrefs(txn, track)
			if err != nil {
				return err
			}
			_, inCollection := d.FindRoot(track)
			c := choose.Candidate{
				Track:        track,
				InCollection: inCollection,
				Alias:        td.AliasFor != "",
				Prefs:        prefs,
			}
			if td.Noticed != 0 {
				c.Noticed = time.Unix(td.Noticed, 0)
			}
			if err := fn(c); err != nil {
				return err
			}
		}
		return nil
	})
}

func (d *DB) getTrack(track string) (td trackData, err error) {
	err = d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(trackKey(track))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNoSuchTrack
		} else if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return gob.NewDecoder(bytes.NewReader(val)).Decode(&td)
		})
	})
	if err != nil && !errors.Is(err, ErrNoSuchTrack) {
		err = fmt.Errorf("get track %s: %w", track, err)
	} else if err != nil {
		err = fmt.Errorf("%w: %s", ErrNoSuchTrack, track)
	}
	return
}

func getPrefs(txn *badger.Txn, track string) (map[string]string, error) {
	prefs := make(map[string]string)
	item, err := txn.Get(prefsKey(track))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return prefs, nil
	} else if err != nil {
		return nil, err
	}
	err = item.Value(func(val []byte) error {
		return gob.NewDecoder(bytes.NewReader(val)).Decode(&prefs)
	})
	return prefs, err
}

func putGob(txn *badger.Txn, key []byte, v any) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return err
	}
	return txn.Set(key, buf.Bytes())
}

func trackKey(track string) []byte {
	return append([]byte{byte(recordTypeTrack)}, track...)
}

func prefsKey(track string) []byte {
	return append([]byte{byte(recordTypePrefs)}, track...)
}

func globalKey(key string) []byte {
	return append([]byte{byte(recordTypeGlobal)}, key...)
}

func checkVersion(db *badger.DB) (v uint32, err error) {
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte{byte(recordTypeVersion)})
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v = binary.BigEndian.Uint32(val)
			return nil
		})
	})
	// First run
	if errors.Is(err, badger.ErrKeyNotFound) {
		err = db.Update(func(txn *badger.Txn) error {
			var versionBytes [4]byte
			binary.BigEndian.PutUint32(versionBytes[:], version)
			return txn.Set([]byte{byte(recordTypeVersion)}, versionBytes[:])
		})
		v = version
	}
	return
}
