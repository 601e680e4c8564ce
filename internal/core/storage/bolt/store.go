// Package bolt 提供基于 bbolt 的持久化端口
//
// 作为 badger 主存储的回退：单文件、每个命名空间一个 bucket，
// 每次写入是一个独立的 bbolt 事务。
package bolt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/dep2p/go-docmesh/internal/core/storage/port"
	"github.com/dep2p/go-docmesh/pkg/lib/log"
)

var logger = log.Logger("storage/bolt")

// Name 后端名称
const Name = "bolt"

// Store bbolt 持久化端口
type Store struct {
	db   *bbolt.DB
	path string
}

// Open 打开（或创建）bbolt 文件
func Open(path string, syncWrites bool) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("bolt: create dir: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{
		Timeout: time.Second,
		NoSync:  !syncWrites,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}

	logger.Debug("bbolt 已打开", "path", path)
	return &Store{db: db, path: path}, nil
}

// Name 返回后端名称
func (s *Store) Name() string { return Name }

// Path 返回文件路径
func (s *Store) Path() string { return s.path }

// Get 读取值
func (s *Store) Get(ns port.Namespace, key string) ([]byte, error) {
	if err := port.Validate(ns, key); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(ns))
		if b == nil {
			return port.ErrNotFound
		}
		v := b.Get([]byte(key))
		if v == nil {
			return port.ErrNotFound
		}
		value = append([]byte(nil), v...)
		return nil
	})
	return value, err
}

// Put 写入值
func (s *Store) Put(ns port.Namespace, key string, value []byte) error {
	if err := port.Validate(ns, key); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(ns))
		if err != nil {
			return err
		}
		if value == nil {
			value = []byte{}
		}
		return b.Put([]byte(key), value)
	})
}

// GetAll 按键序列出命名空间内所有条目
func (s *Store) GetAll(ns port.Namespace) ([]port.Entry, error) {
	if ns == "" {
		return nil, port.ErrEmptyNamespace
	}

	var entries []port.Entry
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(ns))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			entries = append(entries, port.Entry{
				Key:   string(k),
				Value: append([]byte(nil), v...),
			})
			return nil
		})
	})
	return entries, err
}

// Delete 删除键
func (s *Store) Delete(ns port.Namespace, key string) error {
	if err := port.Validate(ns, key); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(ns))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// Clear 删除整个 bucket
func (s *Store) Clear(ns port.Namespace) error {
	if ns == "" {
		return port.ErrEmptyNamespace
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		err := tx.DeleteBucket([]byte(ns))
		if errors.Is(err, bbolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

// Close 关闭文件
func (s *Store) Close() error {
	return s.db.Close()
}

var _ port.Port = (*Store)(nil)
