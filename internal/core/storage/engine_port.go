package storage

import (
	"github.com/dep2p/go-docmesh/internal/core/storage/engine"
	"github.com/dep2p/go-docmesh/internal/core/storage/kv"
	"github.com/dep2p/go-docmesh/internal/core/storage/port"
)

// namespaceRoot 所有命名空间共享的根前缀
const namespaceRoot = "n/"

// EnginePort 基于存储引擎的持久化端口
//
// 每个命名空间映射为 kv 子前缀 "n/<namespace>/"。
type EnginePort struct {
	name   string
	engine engine.Engine
	root   *kv.Store
}

// NewEnginePort 创建持久化端口
func NewEnginePort(name string, eng engine.Engine) *EnginePort {
	return &EnginePort{
		name:   name,
		engine: eng,
		root:   kv.New(eng, namespaceRoot),
	}
}

func (p *EnginePort) ns(ns port.Namespace) *kv.Store {
	return p.root.Namespace(string(ns))
}

// Name 返回后端名称
func (p *EnginePort) Name() string { return p.name }

// Start 启动引擎后台任务
func (p *EnginePort) Start() error { return p.engine.Start() }

// Get 读取值
func (p *EnginePort) Get(ns port.Namespace, key string) ([]byte, error) {
	if err := port.Validate(ns, key); err != nil {
		return nil, err
	}
	return p.ns(ns).Get(key)
}

// Put 写入值
func (p *EnginePort) Put(ns port.Namespace, key string, value []byte) error {
	if err := port.Validate(ns, key); err != nil {
		return err
	}
	return p.ns(ns).Put(key, value)
}

// GetAll 按键序列出所有条目
func (p *EnginePort) GetAll(ns port.Namespace) ([]port.Entry, error) {
	if ns == "" {
		return nil, port.ErrEmptyNamespace
	}
	var entries []port.Entry
	err := p.ns(ns).Each(func(key string, value []byte) error {
		entries = append(entries, port.Entry{Key: key, Value: value})
		return nil
	})
	return entries, err
}

// Delete 删除键
func (p *EnginePort) Delete(ns port.Namespace, key string) error {
	if err := port.Validate(ns, key); err != nil {
		return err
	}
	return p.ns(ns).Delete(key)
}

// Clear 原子地清空命名空间
func (p *EnginePort) Clear(ns port.Namespace) error {
	if ns == "" {
		return port.ErrEmptyNamespace
	}
	return p.ns(ns).Clear()
}

// Close 关闭引擎
func (p *EnginePort) Close() error {
	return p.engine.Close()
}

var (
	_ port.Port    = (*EnginePort)(nil)
	_ port.Starter = (*EnginePort)(nil)
)
