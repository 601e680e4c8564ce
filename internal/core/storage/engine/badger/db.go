// Package badger 提供基于 BadgerDB 的持久化引擎
//
// docmesh 的主存储：文档快照与离线队列都写在这里。
// 支持落盘与纯内存两种模式，纯内存模式供 -memory 与测试使用。
package badger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dep2p/go-docmesh/internal/core/storage/engine"
	"github.com/dep2p/go-docmesh/pkg/lib/log"
)

var logger = log.Logger("storage/badger")

// gcDiscardRatio 值日志文件中可回收比例超过该值才重写
const gcDiscardRatio = 0.5

// Engine BadgerDB 引擎
type Engine struct {
	db     *badger.DB
	config *engine.Config
	closed atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New 打开 BadgerDB
func New(cfg *engine.Config) (*Engine, error) {
	if cfg == nil {
		return nil, engine.ErrInvalidConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.EnsureDir(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithMemTableSize(cfg.MemTableSize).
		WithValueLogFileSize(cfg.ValueLogFileSize).
		WithLogger(badgerLogger{}).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{db: db, config: cfg, ctx: ctx, cancel: cancel}, nil
}

// badgerLogger 把 badger 自身的日志转到组件 logger
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logger.Error(fmt.Sprintf(format, args...))
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logger.Warn(fmt.Sprintf(format, args...))
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}

// Start 启动值日志 GC
func (e *Engine) Start() error {
	if e.closed.Load() {
		return engine.ErrClosed
	}
	if e.config.GCInterval <= 0 || e.config.InMemory {
		return nil
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.config.GCInterval)
		defer ticker.Stop()
		for {
			select {
			case <-e.ctx.Done():
				return
			case <-ticker.C:
				e.collectGarbage()
			}
		}
	}()
	return nil
}

func (e *Engine) collectGarbage() {
	for !e.closed.Load() {
		if err := e.db.RunValueLogGC(gcDiscardRatio); err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				logger.Debug("值日志 GC 结束", "error", err)
			}
			return
		}
	}
}

func (e *Engine) check(key []byte) error {
	if e.closed.Load() {
		return engine.ErrClosed
	}
	if len(key) == 0 {
		return engine.ErrEmptyKey
	}
	return nil
}

// Get 读取值
func (e *Engine) Get(key []byte) ([]byte, error) {
	if err := e.check(key); err != nil {
		return nil, err
	}
	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, convertError(err)
	}
	return value, nil
}

// Put 写入值
func (e *Engine) Put(key, value []byte) error {
	if err := e.check(key); err != nil {
		return err
	}
	return convertError(e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	}))
}

// Delete 删除键
func (e *Engine) Delete(key []byte) error {
	if err := e.check(key); err != nil {
		return err
	}
	return convertError(e.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}))
}

// Scan 按键序遍历前缀
func (e *Engine) Scan(prefix []byte, fn func(key, value []byte) error) error {
	if e.closed.Load() {
		return engine.ErrClosed
	}
	err := e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), value); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, engine.ErrStopScan) {
		return nil
	}
	return convertError(err)
}

// DeletePrefix 在一个读写事务内删除前缀下所有键
func (e *Engine) DeletePrefix(prefix []byte) error {
	if e.closed.Load() {
		return engine.ErrClosed
	}
	return convertError(e.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	}))
}

// Close 停止 GC 并关闭数据库
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.cancel()
	e.wg.Wait()
	return e.db.Close()
}

func convertError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return engine.ErrNotFound
	case errors.Is(err, badger.ErrEmptyKey):
		return engine.ErrEmptyKey
	case errors.Is(err, badger.ErrTxnTooBig):
		return engine.ErrTooLarge
	case errors.Is(err, badger.ErrDBClosed):
		return engine.ErrClosed
	default:
		return err
	}
}

var _ engine.Engine = (*Engine)(nil)
