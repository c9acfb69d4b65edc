// Package journal persists a record of every computation session in a
// bbolt database. Records carry identifiers, states, and timestamps only;
// key material never reaches the journal.
package journal

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"
)

const (
	metadataBucket = "metadata"
	sessionsBucket = "sessions"
	versionKey     = "version"

	dbVersion = 0
)

// ErrNotFound is returned when no record exists for an id.
var ErrNotFound = errors.New("journal: record not found")

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// Transition is one state change of a session.
type Transition struct {
	State string    `cbor:"1,keyasint"`
	At    time.Time `cbor:"2,keyasint"`
}

// Record is the journaled history of one session.
type Record struct {
	CorrelationID string       `cbor:"1,keyasint"`
	Circuit       string       `cbor:"2,keyasint"`
	State         string       `cbor:"3,keyasint"`
	Reason        string       `cbor:"4,keyasint,omitempty"`
	Error         string       `cbor:"5,keyasint,omitempty"`
	StartedAt     time.Time    `cbor:"6,keyasint"`
	UpdatedAt     time.Time    `cbor:"7,keyasint"`
	Signature     string       `cbor:"8,keyasint,omitempty"`
	Transitions   []Transition `cbor:"9,keyasint"`
}

// Store is a bbolt-backed session journal. It is safe for concurrent use.
type Store struct {
	db *bolt.DB
}

// Open creates or loads the journal at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(sessionsBucket)); err != nil {
			return err
		}
		if b := meta.Get([]byte(versionKey)); b != nil {
			if len(b) != 1 || b[0] != dbVersion {
				return fmt.Errorf("journal: incompatible version: %d", uint(b[0]))
			}
			return nil
		}
		return meta.Put([]byte(versionKey), []byte{dbVersion})
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Begin starts a record for a new session.
func (s *Store) Begin(id, circuit, state string, at time.Time) error {
	rec := &Record{
		CorrelationID: id,
		Circuit:       circuit,
		State:         state,
		StartedAt:     at,
		UpdatedAt:     at,
		Transitions:   []Transition{{State: state, At: at}},
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return put(tx.Bucket([]byte(sessionsBucket)), rec)
	})
}

// Transition appends a state change to an existing record. reason and
// errMsg are recorded when non-empty.
func (s *Store) Transition(id, state, reason, errMsg string, at time.Time) error {
	return s.Update(id, func(rec *Record) {
		rec.State = state
		rec.UpdatedAt = at
		if reason != "" {
			rec.Reason = reason
		}
		if errMsg != "" {
			rec.Error = errMsg
		}
		rec.Transitions = append(rec.Transitions, Transition{State: state, At: at})
	})
}

// Update applies fn to the record for id inside a single transaction.
func (s *Store) Update(id string, fn func(*Record)) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(sessionsBucket))
		rec, err := get(bkt, id)
		if err != nil {
			return err
		}
		fn(rec)
		return put(bkt, rec)
	})
}

// Get returns the record for id.
func (s *Store) Get(id string) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = get(tx.Bucket([]byte(sessionsBucket)), id)
		return err
	})
	return rec, err
}

// List returns up to limit records, most recently started first. A limit
// of zero or less returns every record.
func (s *Store) List(limit int) ([]*Record, error) {
	var recs []*Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(sessionsBucket)).ForEach(func(k, v []byte) error {
			rec := new(Record)
			if err := cbor.Unmarshal(v, rec); err != nil {
				return fmt.Errorf("journal: decode %s: %w", k, err)
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].StartedAt.After(recs[j].StartedAt)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if err := s.db.Sync(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

func get(bkt *bolt.Bucket, id string) (*Record, error) {
	raw := bkt.Get([]byte(id))
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec := new(Record)
	if err := cbor.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("journal: decode %s: %w", id, err)
	}
	return rec, nil
}

func put(bkt *bolt.Bucket, rec *Record) error {
	raw, err := encMode.Marshal(rec)
	if err != nil {
		return fmt.Errorf("journal: encode %s: %w", rec.CorrelationID, err)
	}
	return bkt.Put([]byte(rec.CorrelationID), raw)
}
