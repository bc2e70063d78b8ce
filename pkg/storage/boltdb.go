package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/lvs-agent/pkg/controlplane"
	"github.com/cuemby/lvs-agent/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketPools  = []byte("pools")
	bucketPorts  = []byte("ports")
	bucketHealth = []byte("member_health")
)

// ErrMemberNotFound is returned when a pool has no member with the given id.
var ErrMemberNotFound = errors.New("member not found")

// PortBinding records whether a VIP port is plugged on this agent.
type PortBinding struct {
	PortID    string    `json:"port_id"`
	Plugged   bool      `json:"plugged"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "lvs-agent.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketPools, bucketPorts, bucketHealth} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Pool operations

// PutPool stores the logical configuration of a pool, replacing any
// previous one. Members inherit the pool id.
func (s *BoltStore) PutPool(cfg *types.LogicalConfig) error {
	if cfg == nil || cfg.Pool.ID == "" {
		return fmt.Errorf("pool id is required")
	}
	for i := range cfg.Members {
		cfg.Members[i].PoolID = cfg.Pool.ID
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return putPool(tx, cfg)
	})
}

func putPool(tx *bolt.Tx, cfg *types.LogicalConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketPools).Put([]byte(cfg.Pool.ID), data)
}

func getPool(tx *bolt.Tx, id string) (*types.LogicalConfig, error) {
	data := tx.Bucket(bucketPools).Get([]byte(id))
	if data == nil {
		return nil, fmt.Errorf("%w: %s", controlplane.ErrPoolNotFound, id)
	}
	var cfg types.LogicalConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *BoltStore) GetPool(id string) (*types.LogicalConfig, error) {
	var cfg *types.LogicalConfig
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		cfg, err = getPool(tx, id)
		return err
	})
	return cfg, err
}

func (s *BoltStore) ListPools() ([]*types.LogicalConfig, error) {
	var pools []*types.LogicalConfig
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPools).ForEach(func(k, v []byte) error {
			var cfg types.LogicalConfig
			if err := json.Unmarshal(v, &cfg); err != nil {
				return err
			}
			pools = append(pools, &cfg)
			return nil
		})
	})
	return pools, err
}

// DeletePool removes a pool and the health recorded for its members.
func (s *BoltStore) DeletePool(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketPools).Delete([]byte(id)); err != nil {
			return err
		}
		return deleteHealth(tx, id)
	})
}

// Member operations

// PutMember adds or replaces a member in its pool.
func (s *BoltStore) PutMember(member types.Member) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		cfg, err := getPool(tx, member.PoolID)
		if err != nil {
			return err
		}
		replaced := false
		for i := range cfg.Members {
			if cfg.Members[i].ID == member.ID {
				cfg.Members[i] = member
				replaced = true
			}
		}
		if !replaced {
			cfg.Members = append(cfg.Members, member)
		}
		return putPool(tx, cfg)
	})
}

// DeleteMember removes a member from its pool and returns it.
func (s *BoltStore) DeleteMember(poolID, memberID string) (types.Member, error) {
	var removed types.Member
	err := s.db.Update(func(tx *bolt.Tx) error {
		cfg, err := getPool(tx, poolID)
		if err != nil {
			return err
		}
		m, ok := cfg.Member(memberID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrMemberNotFound, memberID)
		}
		removed = m

		kept := cfg.Members[:0]
		for _, member := range cfg.Members {
			if member.ID != memberID {
				kept = append(kept, member)
			}
		}
		cfg.Members = kept
		if err := putPool(tx, cfg); err != nil {
			return err
		}
		return tx.Bucket(bucketHealth).Delete(healthKey(poolID, memberID))
	})
	return removed, err
}

// Port operations

func (s *BoltStore) PlugPort(portID string) error {
	return s.putPort(portID, true)
}

func (s *BoltStore) UnplugPort(portID string) error {
	return s.putPort(portID, false)
}

func (s *BoltStore) putPort(portID string, plugged bool) error {
	if portID == "" {
		return fmt.Errorf("port id is required")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(PortBinding{PortID: portID, Plugged: plugged, UpdatedAt: time.Now().UTC()})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPorts).Put([]byte(portID), data)
	})
}

func (s *BoltStore) GetPortBinding(portID string) (*PortBinding, error) {
	var binding PortBinding
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPorts).Get([]byte(portID))
		if data == nil {
			return fmt.Errorf("port not found: %s", portID)
		}
		return json.Unmarshal(data, &binding)
	})
	return &binding, err
}

// Health operations

// healthKey is "<pool>/<member>" so a pool's entries share a prefix.
func healthKey(poolID, memberID string) []byte {
	return []byte(poolID + "/" + memberID)
}

func (s *BoltStore) PutMemberHealth(poolID string, health types.MemberHealth) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(health)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketHealth).Put(healthKey(poolID, health.MemberID), data)
	})
}

func (s *BoltStore) ListMemberHealth(poolID string) ([]types.MemberHealth, error) {
	var out []types.MemberHealth
	prefix := []byte(poolID + "/")
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHealth).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var h types.MemberHealth
			if err := json.Unmarshal(v, &h); err != nil {
				return err
			}
			out = append(out, h)
		}
		return nil
	})
	return out, err
}

func deleteHealth(tx *bolt.Tx, poolID string) error {
	prefix := []byte(poolID + "/")
	c := tx.Bucket(bucketHealth).Cursor()
	for k, _ := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, _ = c.Seek(prefix) {
		if err := c.Delete(); err != nil {
			return err
		}
	}
	return nil
}
