package conversation

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var conversationsBucket = []byte("conversations")

// State is the durable record for one user: the turn counter and the
// retained message history. It is created lazily on first access.
type State struct {
	Turn     int       `json:"turn"`
	Messages []Message `json:"messages"`
}

// Store persists per-user conversation state.
type Store interface {
	GetState(userID string) (State, error)
	SaveState(userID string, st State) error
	DeleteState(userID string) error
	Close() error
}

// BoltStore keeps conversation state in a bbolt database, one JSON blob
// per user key.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(conversationsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating conversations bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) GetState(userID string) (State, error) {
	var st State
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(conversationsBucket).Get([]byte(userID))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &st)
	})
	return st, err
}

func (s *BoltStore) SaveState(userID string, st State) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(st)
		if err != nil {
			return err
		}
		return tx.Bucket(conversationsBucket).Put([]byte(userID), data)
	})
}

func (s *BoltStore) DeleteState(userID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).Delete([]byte(userID))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
