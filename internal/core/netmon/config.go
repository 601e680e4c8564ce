package netmon

import (
	"time"

	"github.com/dep2p/go-docmesh/config"
)

// Config 监控器配置
type Config struct {
	// StartOnline 初始状态
	StartOnline bool

	// ProbeAddr 主动探测地址，为空则不探测
	ProbeAddr string

	// ProbeInterval 探测间隔
	ProbeInterval time.Duration

	// ProbeTimeout 单次探测超时
	ProbeTimeout time.Duration

	// FailureThreshold 连续失败多少次才转为离线
	FailureThreshold int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		StartOnline:      true,
		ProbeInterval:    15 * time.Second,
		ProbeTimeout:     3 * time.Second,
		FailureThreshold: 2,
	}
}

// FromUnified 从统一配置转换
func FromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.StartOnline = cfg.Connectivity.StartOnline
	c.ProbeAddr = cfg.Connectivity.ProbeAddr
	if d := cfg.Connectivity.ProbeInterval.Duration(); d > 0 {
		c.ProbeInterval = d
	}
	if d := cfg.Connectivity.ProbeTimeout.Duration(); d > 0 {
		c.ProbeTimeout = d
	}
	return c
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = d.ProbeTimeout
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	return c
}
