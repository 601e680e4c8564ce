// Package kv 在引擎之上提供按命名空间隔离的键值视图
//
// # 键空间
//
//   - n/documents/current  文档集合快照
//   - n/changes/<seq>      离线编辑队列，键序即时间序
//
// # 使用示例
//
//	root := kv.New(eng, "n/")
//	docs := root.Namespace("documents")
//	docs.Put("current", blob) // 实际键: n/documents/current
package kv

import (
	"github.com/dep2p/go-docmesh/internal/core/storage/engine"
)

// Store 带前缀的键值视图
//
// Store 本身无状态，可以随意复制；并发安全性由引擎保证。
type Store struct {
	engine engine.Engine
	prefix string
}

// New 创建以 prefix 为根的视图
func New(eng engine.Engine, prefix string) *Store {
	return &Store{engine: eng, prefix: prefix}
}

// Namespace 返回子命名空间 "<prefix><name>/"
func (s *Store) Namespace(name string) *Store {
	return &Store{engine: s.engine, prefix: s.prefix + name + "/"}
}

// Prefix 返回完整前缀
func (s *Store) Prefix() string {
	return s.prefix
}

func (s *Store) key(k string) ([]byte, error) {
	if k == "" {
		return nil, engine.ErrEmptyKey
	}
	return []byte(s.prefix + k), nil
}

// Get 读取值，不存在时返回 engine.ErrNotFound
func (s *Store) Get(k string) ([]byte, error) {
	key, err := s.key(k)
	if err != nil {
		return nil, err
	}
	return s.engine.Get(key)
}

// Put 写入值
func (s *Store) Put(k string, value []byte) error {
	key, err := s.key(k)
	if err != nil {
		return err
	}
	return s.engine.Put(key, value)
}

// Delete 删除键
func (s *Store) Delete(k string) error {
	key, err := s.key(k)
	if err != nil {
		return err
	}
	return s.engine.Delete(key)
}

// Each 按键序遍历命名空间，回调收到去掉前缀的键
func (s *Store) Each(fn func(key string, value []byte) error) error {
	n := len(s.prefix)
	return s.engine.Scan([]byte(s.prefix), func(key, value []byte) error {
		return fn(string(key[n:]), value)
	})
}

// Len 返回命名空间内的键数量
func (s *Store) Len() (int, error) {
	count := 0
	err := s.Each(func(string, []byte) error {
		count++
		return nil
	})
	return count, err
}

// Clear 原子地删除命名空间内所有键
func (s *Store) Clear() error {
	return s.engine.DeletePrefix([]byte(s.prefix))
}
