package engine

import (
	"os"
	"path/filepath"
	"time"
)

// Config 引擎配置
type Config struct {
	// Path 数据目录，InMemory 时忽略
	Path string

	// InMemory 不落盘，进程退出即丢失
	InMemory bool

	// SyncWrites 每次写入都 fsync
	SyncWrites bool

	// MemTableSize 内存表大小（字节）
	MemTableSize int64

	// ValueLogFileSize 值日志文件大小（字节）
	ValueLogFileSize int64

	// GCInterval 值日志 GC 间隔，0 表示禁用
	GCInterval time.Duration
}

// DefaultConfig 返回落盘配置
//
// 快照和离线队列都很小，表大小按桌面节点缩小。
func DefaultConfig(path string) *Config {
	return &Config{
		Path:             path,
		MemTableSize:     8 << 20,
		ValueLogFileSize: 32 << 20,
		GCInterval:       10 * time.Minute,
	}
}

// InMemoryConfig 返回内存模式配置
func InMemoryConfig() *Config {
	cfg := DefaultConfig("")
	cfg.InMemory = true
	cfg.GCInterval = 0
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch {
	case !c.InMemory && c.Path == "":
		return ErrInvalidConfig
	case c.MemTableSize < 1<<20, c.ValueLogFileSize < 1<<20:
		return ErrInvalidConfig
	}
	return nil
}

// EnsureDir 创建数据目录并把 Path 改成绝对路径
func (c *Config) EnsureDir() error {
	if c.InMemory {
		return nil
	}
	abs, err := filepath.Abs(c.Path)
	if err != nil {
		return err
	}
	c.Path = abs
	return os.MkdirAll(abs, 0o755)
}
