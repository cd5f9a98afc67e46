package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketSessions     = []byte("sessions")
	bucketRefreshIndex = []byte("refresh_index")
)

var errBoltCorrupt = errors.New("session index points at a missing record")

// BoltStore is a single-file [Store] backed by bbolt. Records are stored in
// their [Encode] form keyed by principal id; a second bucket maps refresh
// token digests to principal ids. Every mutation runs in one bbolt update
// transaction.
type BoltStore struct {
	db *bbolt.DB
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore wraps an open database and creates the buckets it needs.
func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketSessions, bucketRefreshIndex} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating session buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// OpenBoltStore opens (or creates) a bbolt file at path.
func OpenBoltStore(path string, options *bbolt.Options) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	s, err := NewBoltStore(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) UpsertSingleSession(ctx context.Context, rec *Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		index := tx.Bucket(bucketRefreshIndex)

		if err := deleteBoltLocked(sessions, index, rec.PrincipalID); err != nil {
			return err
		}
		if err := sessions.Put([]byte(rec.PrincipalID), data); err != nil {
			return err
		}
		return index.Put([]byte(refreshDigest(rec.RefreshToken)), []byte(rec.PrincipalID))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *BoltStore) FindByRefreshToken(ctx context.Context, token string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		principalID := tx.Bucket(bucketRefreshIndex).Get([]byte(refreshDigest(token)))
		if principalID == nil {
			return ErrNotFound
		}
		data := tx.Bucket(bucketSessions).Get(principalID)
		if data == nil {
			return errBoltCorrupt
		}
		decoded, err := Decode(data)
		if err != nil {
			return err
		}
		rec = decoded
		return nil
	})
	if err != nil {
		return nil, boltReadError(err)
	}
	if rec.RefreshToken != token {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *BoltStore) FindByPrincipalID(ctx context.Context, principalID string) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get([]byte(principalID))
		if data == nil {
			return ErrNotFound
		}
		decoded, err := Decode(data)
		if err != nil {
			return err
		}
		rec = decoded
		return nil
	})
	if err != nil {
		return nil, boltReadError(err)
	}
	return rec, nil
}

func (s *BoltStore) RotateAccessTokenID(ctx context.Context, rot Rotation) error {
	return s.modify(ctx, rot.PrincipalID, func(rec *Record) error {
		if !rot.matches(rec) {
			return ErrNotFound
		}
		rec.AccessTokenID = rot.AccessTokenID
		rec.LastUsedAt = rot.LastUsedAt
		return nil
	})
}

func (s *BoltStore) TouchSession(ctx context.Context, principalID, accessTokenID string, lastUsedAt time.Time) error {
	return s.modify(ctx, principalID, func(rec *Record) error {
		if rec.AccessTokenID != accessTokenID {
			return ErrNotFound
		}
		rec.LastUsedAt = lastUsedAt
		return nil
	})
}

// modify rewrites one record in place inside a single update transaction.
func (s *BoltStore) modify(ctx context.Context, principalID string, fn func(*Record) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		data := sessions.Get([]byte(principalID))
		if data == nil {
			return ErrNotFound
		}
		rec, err := Decode(data)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		encoded, err := Encode(rec)
		if err != nil {
			return err
		}
		return sessions.Put([]byte(principalID), encoded)
	})
	if err != nil {
		return boltReadError(err)
	}
	return nil
}

func (s *BoltStore) DeleteByPrincipalID(ctx context.Context, principalID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return deleteBoltLocked(tx.Bucket(bucketSessions), tx.Bucket(bucketRefreshIndex), principalID)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// DeleteExpired scans every record; bbolt has no secondary ordering to
// narrow the walk.
func (s *BoltStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	deleted := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		index := tx.Bucket(bucketRefreshIndex)

		var expired []string
		err := sessions.ForEach(func(k, v []byte) error {
			rec, err := Decode(v)
			if err != nil {
				return err
			}
			if rec.Expired(now) {
				expired = append(expired, string(k))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, principalID := range expired {
			if err := deleteBoltLocked(sessions, index, principalID); err != nil {
				return err
			}
		}
		deleted = len(expired)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return deleted, nil
}

// deleteBoltLocked removes a record and its refresh index entry. It must run
// inside an update transaction.
func deleteBoltLocked(sessions, index *bbolt.Bucket, principalID string) error {
	key := []byte(principalID)
	data := sessions.Get(key)
	if data == nil {
		return nil
	}
	if old, err := Decode(data); err == nil {
		if err := index.Delete([]byte(refreshDigest(old.RefreshToken))); err != nil {
			return err
		}
	}
	return sessions.Delete(key)
}

func boltReadError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
