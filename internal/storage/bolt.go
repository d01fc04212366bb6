// Package storage — bolt.go
//
// BoltDB-backed persistent storage for the Federated Capability Kernel.
//
// Schema (BoltDB bucket layout):
//
//	/kv
//	    key:   opaque storage key (e.g. "acip.kernel.state.<agent_id>")
//	    value: opaque bytes (the canonical serialization the kernel wrote)
//
//	/ledger
//	    key:   RFC3339 UTC timestamp with a fixed 9-digit fraction + "_" + trace_id  [sortable]
//	    value: JSON-encoded LedgerEntry
//
//	/capsules
//	    key:   sha256(payload)  [32 bytes hex-encoded = 64 chars]
//	    value: raw skill-capsule payload bytes (content-addressed)
//
//	/meta
//	    key:   "schema_version"
//	    value: "1"
//
// Consistency model:
//   - Single-process, single-writer (BoltDB does not support concurrent writers).
//   - All writes use ACID transactions (bbolt Tx.Commit()).
//   - Reads use read-only transactions (bbolt.View()).
//   - CRC32 integrity check on database open (bbolt built-in).
//
// Retention:
//   - Ledger entries older than RetentionDays are pruned by
//     PruneOldLedgerEntries, which the daemon calls once at startup;
//     there is no periodic pruning while it runs.
//   - Skill capsules are never automatically pruned (operator action required).
//
// Failure modes:
//   - BoltDB file corruption: bbolt detects via CRC and returns an error
//     on Open(). The daemon logs a fatal event and refuses to start.
//     Recovery: restore from backup at /var/lib/fckd/db.bak.
//   - Disk full: bbolt.Update() returns an error. The daemon surfaces the
//     error to the caller; the kernel never silently drops a write.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// DefaultDBPath is the default BoltDB file location.
	DefaultDBPath = "/var/lib/fckd/fck.db"

	// SchemaVersion is the current database schema version.
	SchemaVersion = "1"

	// DefaultRetentionDays is the default ledger retention period.
	DefaultRetentionDays = 30

	bucketKV       = "kv"
	bucketLedger   = "ledger"
	bucketCapsules = "capsules"
	bucketMeta     = "meta"
)

// LedgerEntry is a single audit log record describing one kernel
// entrypoint invocation, recording the outcome for operator inspection.
// Entries are written only through AppendLedger.
type LedgerEntry struct {
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id"`
	TraceID   string    `json:"trace_id"`
	Entrypoint string   `json:"entrypoint"`
	OK        bool      `json:"ok"`
	ErrorTag  string    `json:"error_tag,omitempty"`
	FrameHash string    `json:"frame_hash,omitempty"`
}

// DB wraps a BoltDB instance and implements kernel.StorageAdapter plus
// an audit ledger and content-addressed skill-capsule store.
type DB struct {
	db            *bolt.DB
	retentionDays int
}

// Open opens (or creates) the BoltDB database at path. It initializes
// all required buckets and verifies the schema version, refusing to
// start on a corrupt or incompatible database.
func Open(path string, retentionDays int) (*DB, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		NoGrowSync:   false,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	d := &DB{db: bdb, retentionDays: retentionDays}

	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketKV, bucketLedger, bucketCapsules, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}

		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("write schema_version: %w", err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("database initialisation failed: %w", err)
	}

	if err := d.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return d, nil
}

func (d *DB) checkSchemaVersion() error {
	return d.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return fmt.Errorf(
				"schema version mismatch: database has %q, daemon requires %q. "+
					"Run migration or restore from backup.",
				string(v), SchemaVersion,
			)
		}
		return nil
	})
}

// Close closes the underlying BoltDB file.
func (d *DB) Close() error {
	return d.db.Close()
}

// ─── kernel.StorageAdapter ─────────────────────────────────────────────

// Get implements kernel.StorageAdapter.Get.
func (d *DB) Get(_ context.Context, key string) (string, bool, error) {
	var value []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketKV))
		v := b.Get([]byte(key))
		if v != nil {
			value = make([]byte, len(v))
			copy(value, v)
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("storage.Get(%q): %w", key, err)
	}
	if value == nil {
		return "", false, nil
	}
	return string(value), true, nil
}

// Set implements kernel.StorageAdapter.Set.
func (d *DB) Set(_ context.Context, key, value string) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketKV))
		if err := b.Put([]byte(key), []byte(value)); err != nil {
			return fmt.Errorf("storage.Set(%q): %w", key, err)
		}
		return nil
	})
}

// ─── Skill capsule store (content-addressed) ───────────────────────────

// capsuleKey computes the BoltDB key for a capsule payload: sha256(payload) hex-encoded.
func capsuleKey(payload []byte) []byte {
	h := sha256.Sum256(payload)
	key := make([]byte, hex.EncodedLen(len(h)))
	hex.Encode(key, h[:])
	return key
}

// PutCapsule stores payload content-addressed and returns its hex digest.
func (d *DB) PutCapsule(payload []byte) (string, error) {
	key := capsuleKey(payload)
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCapsules))
		return b.Put(key, payload)
	})
	if err != nil {
		return "", fmt.Errorf("PutCapsule: %w", err)
	}
	return string(key), nil
}

// GetCapsule retrieves a previously stored capsule by its hex digest.
// Returns (nil, false, nil) if absent.
func (d *DB) GetCapsule(digest string) ([]byte, bool, error) {
	var payload []byte
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCapsules))
		v := b.Get([]byte(digest))
		if v != nil {
			payload = make([]byte, len(v))
			copy(payload, v)
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("GetCapsule(%q): %w", digest, err)
	}
	return payload, payload != nil, nil
}

// ─── Ledger operations ──────────────────────────────────────────────────

// ledgerKey constructs a sortable BoltDB key for a ledger entry. The
// timestamp is UTC with a fixed 9-digit fraction, so every key has the
// same width up to "_" and lexicographic sort = chronological sort.
func ledgerKey(t time.Time, traceID string) []byte {
	return []byte(fmt.Sprintf("%s_%s", t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00"), traceID))
}

// AppendLedger writes a new audit ledger entry.
func (d *DB) AppendLedger(entry LedgerEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("AppendLedger marshal: %w", err)
	}

	key := ledgerKey(entry.Timestamp, entry.TraceID)

	return d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLedger))
		if err := b.Put(key, data); err != nil {
			return fmt.Errorf("AppendLedger bolt.Put: %w", err)
		}
		return nil
	})
}

// PruneOldLedgerEntries deletes ledger entries older than retentionDays.
// Returns the number of entries deleted.
func (d *DB) PruneOldLedgerEntries() (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -d.retentionDays)
	cutoffKey := ledgerKey(cutoff, "")

	var deleted int
	err := d.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLedger))
		c := b.Cursor()

		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) >= string(cutoffKey) {
				break
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			toDelete = append(toDelete, keyCopy)
		}

		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("PruneOldLedgerEntries delete: %w", err)
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// ReadLedger returns all ledger entries in chronological order. For
// operational use (operator socket's ledger_tail command); not called
// on the hot path.
func (d *DB) ReadLedger() ([]LedgerEntry, error) {
	var entries []LedgerEntry
	err := d.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketLedger))
		return b.ForEach(func(_, v []byte) error {
			var entry LedgerEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}
