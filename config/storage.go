package config

import (
	"fmt"
	"path/filepath"
)

// 存储后端
const (
	// BackendBadger BadgerDB 持久化（默认）
	BackendBadger = "badger"
	// BackendBolt bbolt 持久化
	BackendBolt = "bolt"
	// BackendMemory 仅内存
	BackendMemory = "memory"

	// FallbackNone 不使用回退存储
	FallbackNone = "none"
)

// StorageConfig 存储配置
//
// 数据目录结构：
//
//	${DataDir}/
//	├── docmesh.db/         # BadgerDB 主存储
//	└── fallback.bolt       # bbolt 回退存储
type StorageConfig struct {
	// DataDir 数据目录路径
	// 默认值: "./data"
	DataDir string `json:"data_dir"`

	// Backend 主存储后端: "badger" | "bolt" | "memory"
	Backend string `json:"backend"`

	// Fallback 回退存储后端: "bolt" | "memory" | "none"
	// 主存储写入失败时使用
	Fallback string `json:"fallback"`

	// SyncWrites 每次写入是否 fsync
	SyncWrites bool `json:"sync_writes"`
}

// DefaultStorageConfig 返回默认的存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		DataDir:  "./data",
		Backend:  BackendBadger,
		Fallback: BackendBolt,
	}
}

// Validate 验证存储配置的有效性
func (c *StorageConfig) Validate() error {
	switch c.Backend {
	case BackendBadger, BackendBolt, BackendMemory:
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Backend)
	}
	switch c.Fallback {
	case BackendBolt, BackendMemory, FallbackNone, "":
	default:
		return fmt.Errorf("storage: unknown fallback %q", c.Fallback)
	}
	if c.Fallback == c.Backend {
		return fmt.Errorf("storage: fallback must differ from backend")
	}
	if c.needsDisk() && c.DataDir == "" {
		return fmt.Errorf("storage: data_dir cannot be empty")
	}
	return nil
}

func (c *StorageConfig) needsDisk() bool {
	return c.Backend != BackendMemory || c.Fallback == BackendBolt
}

// DBPath 返回 BadgerDB 数据库路径
func (c *StorageConfig) DBPath() string {
	return filepath.Join(c.DataDir, "docmesh.db")
}

// BoltPath 返回 bbolt 文件路径
func (c *StorageConfig) BoltPath() string {
	return filepath.Join(c.DataDir, "fallback.bolt")
}
