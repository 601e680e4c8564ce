package storage

import (
	"fmt"

	"github.com/dep2p/go-docmesh/config"
)

// Config Storage 模块配置
type Config struct {
	// Backend 主存储: badger | bolt | memory
	Backend string

	// Fallback 回退存储: bolt | memory | none
	Fallback string

	// BadgerPath BadgerDB 目录
	BadgerPath string

	// BoltPath bbolt 文件
	BoltPath string

	// SyncWrites 是否同步写入
	SyncWrites bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(nil)
}

// MemoryConfig 返回纯内存配置，主要用于测试
func MemoryConfig() Config {
	return Config{Backend: config.BackendMemory, Fallback: config.FallbackNone}
}

// ConfigFromUnified 从统一配置创建 Storage 配置
func ConfigFromUnified(cfg *config.Config) Config {
	sc := config.DefaultStorageConfig()
	if cfg != nil {
		sc = cfg.Storage
	}
	return Config{
		Backend:    sc.Backend,
		Fallback:   sc.Fallback,
		BadgerPath: sc.DBPath(),
		BoltPath:   sc.BoltPath(),
		SyncWrites: sc.SyncWrites,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	switch c.Backend {
	case config.BackendBadger, config.BackendBolt, config.BackendMemory:
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Backend)
	}
	switch c.Fallback {
	case "", config.FallbackNone, config.BackendBolt, config.BackendMemory:
	default:
		return fmt.Errorf("storage: unknown fallback %q", c.Fallback)
	}
	if c.Fallback == c.Backend {
		return fmt.Errorf("storage: fallback must differ from backend")
	}
	return nil
}
