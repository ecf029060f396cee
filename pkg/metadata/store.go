// Package metadata implements the volume metadata store (C8): durable
// key-value persistence of volume_id -> StorageInfo across process
// restarts. No embedded KV library (bbolt, badger, etc.) appears anywhere
// in the example corpus this driver is built from, so persistence follows
// the teacher's own pattern for durable local state — a JSON file rewritten
// atomically via a temp file plus rename (pkg/driver/format_registry.go) —
// generalized from its single fixed record type to the StorageInfo tagged
// union this store persists.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fenio/zed-csi/pkg/storage"
	"k8s.io/klog/v2"
)

// record is the on-disk key/value pair. Keys are "<type>::<volume_id>" per
// spec.md §4.8; the value is stored as a json.RawMessage so a record whose
// StorageInfo fails to decode later can still be skipped individually
// rather than corrupting the whole file.
type record struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Store is a process-wide, concurrency-safe volume_id -> StorageInfo
// key-value store, opened once at start-up and closed at shutdown.
type Store struct {
	path string

	mu      sync.RWMutex
	entries map[string]json.RawMessage
}

// Open loads path if it exists (a missing file starts an empty store) and
// returns a ready-to-use Store.
func Open(path string) (*Store, error) {
	s := &Store{path: path, entries: map[string]json.RawMessage{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			klog.V(4).Infof("metadata: %s does not exist yet, starting empty", path)
			return s, nil
		}
		return nil, fmt.Errorf("metadata: reading %s: %w", path, err)
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("metadata: parsing %s: %w", path, err)
	}
	for _, r := range records {
		s.entries[r.Key] = r.Value
	}
	klog.Infof("metadata: loaded %d volume records from %s", len(s.entries), path)
	return s, nil
}

// Close is a no-op: every Set already flushes durably, so there is nothing
// left to persist at shutdown. Kept as an explicit method so the façade's
// lifecycle (open once, close at shutdown, per spec.md §3) has a symmetric
// call site.
func (s *Store) Close() error { return nil }

func key(kind storage.Kind, volumeID string) string {
	return fmt.Sprintf("%s::%s", kind, volumeID)
}

// Get returns the StorageInfo for (kind, volumeID). Both a missing key and a
// value that fails to decode return (zero, false) — spec.md §9's open
// question resolves the decode-failure case by logging a warning rather
// than silently dropping it, while still preserving the "missing => treat
// as deleted" behavior delete/unpublish recovery depends on.
func (s *Store) Get(kind storage.Kind, volumeID string) (storage.StorageInfo, bool) {
	s.mu.RLock()
	raw, ok := s.entries[key(kind, volumeID)]
	s.mu.RUnlock()
	if !ok {
		return storage.StorageInfo{}, false
	}

	var info storage.StorageInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		klog.Warningf("metadata: record for %s failed to decode, treating as missing: %v", volumeID, err)
		return storage.StorageInfo{}, false
	}
	return info, true
}

// Find locates a volume's StorageInfo without knowing its kind ahead of
// time — the lookup path used by delete_volume/controller_unpublish_volume/
// node_unstage_volume/node_unpublish_volume, which the CSI spec hands only
// a volume_id. There are exactly two kinds, so this is just two Gets.
func (s *Store) Find(volumeID string) (storage.StorageInfo, bool) {
	if info, ok := s.Get(storage.KindISCSI, volumeID); ok {
		return info, true
	}
	if info, ok := s.Get(storage.KindNFS, volumeID); ok {
		return info, true
	}
	return storage.StorageInfo{}, false
}

// Set durably persists info under (kind, volumeID): the write is flushed to
// disk before Set returns.
func (s *Store) Set(kind storage.Kind, volumeID string, info storage.StorageInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("metadata: encoding StorageInfo for %s: %w", volumeID, err)
	}

	s.mu.Lock()
	s.entries[key(kind, volumeID)] = raw
	s.mu.Unlock()

	return s.flush()
}

// Delete removes the record for (kind, volumeID), if present, and flushes.
func (s *Store) Delete(kind storage.Kind, volumeID string) error {
	s.mu.Lock()
	delete(s.entries, key(kind, volumeID))
	s.mu.Unlock()
	return s.flush()
}

// List returns every volume_id currently recorded (the "<type>::" prefix
// stripped). Only the tests call it; it is not exposed through any CSI RPC,
// since volume listing is an explicit spec.md Non-goal.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.entries))
	for k := range s.entries {
		if _, volumeID, ok := cutKey(k); ok {
			ids = append(ids, volumeID)
		}
	}
	return ids
}

func cutKey(k string) (kind, volumeID string, ok bool) {
	for i := 0; i+1 < len(k); i++ {
		if k[i] == ':' && k[i+1] == ':' {
			return k[:i], k[i+2:], true
		}
	}
	return "", "", false
}

// flush rewrites the whole store to disk via a temp file plus atomic
// rename, matching the teacher's format_registry.go durability pattern.
func (s *Store) flush() error {
	s.mu.RLock()
	records := make([]record, 0, len(s.entries))
	for k, v := range s.entries {
		records = append(records, record{Key: k, Value: v})
	}
	s.mu.RUnlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("metadata: marshaling store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("metadata: creating %s: %w", dir, err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o640); err != nil {
		return fmt.Errorf("metadata: writing %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("metadata: renaming %s to %s: %w", tmpPath, s.path, err)
	}
	return nil
}
