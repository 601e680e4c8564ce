// Package port 定义持久化端口
//
// 核心逻辑（文档存储、离线队列）只依赖 Port 接口，
// 不关心底层是 badger、bbolt 还是回退适配器。
package port

import (
	"errors"

	"github.com/dep2p/go-docmesh/internal/core/storage/engine"
)

// Namespace 持久化命名空间
type Namespace string

const (
	// NamespaceDocuments 文档集合快照（单键 KeyCurrent）
	NamespaceDocuments Namespace = "documents"

	// NamespaceChanges 离线编辑队列（每条一个键，键序即时间序）
	NamespaceChanges Namespace = "changes"

	// NamespaceResponses 外部查询的响应缓存（每次查询一个键）
	//
	// 同步核心不读写该命名空间，保留给嵌入方使用。
	NamespaceResponses Namespace = "responses"
)

// KeyCurrent 快照所在的键
const KeyCurrent = "current"

// ErrNotFound 键不存在
var ErrNotFound = engine.ErrNotFound

// ErrCorrupted 存储的值无法解码
var ErrCorrupted = engine.ErrCorrupted

// ErrEmptyNamespace 空命名空间
var ErrEmptyNamespace = errors.New("storage: empty namespace")

// Entry 命名空间中的一个键值对
type Entry struct {
	Key   string
	Value []byte
}

// Port 持久化端口
//
// 所有实现必须线程安全；GetAll 按键的字节序返回。
type Port interface {
	// Name 返回后端名称，用于日志和指标
	Name() string

	// Get 读取值，不存在时返回 ErrNotFound
	Get(ns Namespace, key string) ([]byte, error)

	// Put 写入值（整体替换）
	Put(ns Namespace, key string, value []byte) error

	// GetAll 列出命名空间内所有条目
	GetAll(ns Namespace) ([]Entry, error)

	// Delete 删除键，不存在不是错误
	Delete(ns Namespace, key string) error

	// Clear 清空命名空间
	Clear(ns Namespace) error

	// Close 释放资源
	Close() error
}

// Starter 需要启动后台任务的实现
type Starter interface {
	Start() error
}

// IsNotFound 检查是否为 key not found 错误
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Validate 检查命名空间与键
func Validate(ns Namespace, key string) error {
	if ns == "" {
		return ErrEmptyNamespace
	}
	if key == "" {
		return engine.ErrEmptyKey
	}
	return nil
}
