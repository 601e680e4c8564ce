package config

import (
	"fmt"
	"net"
	"time"
)

// ConnectivityConfig 联网状态配置
type ConnectivityConfig struct {
	// StartOnline 启动时是否视为在线
	// 默认值: true
	StartOnline bool `json:"start_online"`

	// ProbeAddr 主动探测地址（host:port），为空则只接受外部信号
	ProbeAddr string `json:"probe_addr"`

	// ProbeInterval 探测间隔
	// 默认值: 15s
	ProbeInterval Duration `json:"probe_interval"`

	// ProbeTimeout 单次探测超时
	// 默认值: 3s
	ProbeTimeout Duration `json:"probe_timeout"`
}

// DefaultConnectivityConfig 返回默认联网状态配置
func DefaultConnectivityConfig() ConnectivityConfig {
	return ConnectivityConfig{
		StartOnline:   true,
		ProbeInterval: Duration(15 * time.Second),
		ProbeTimeout:  Duration(3 * time.Second),
	}
}

// Validate 验证联网状态配置
func (c *ConnectivityConfig) Validate() error {
	if c.ProbeAddr == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.ProbeAddr); err != nil {
		return fmt.Errorf("connectivity: invalid probe_addr: %w", err)
	}
	if c.ProbeInterval <= 0 || c.ProbeTimeout <= 0 {
		return fmt.Errorf("connectivity: probe_interval and probe_timeout must be positive")
	}
	if c.ProbeTimeout >= c.ProbeInterval {
		return fmt.Errorf("connectivity: probe_timeout must be less than probe_interval")
	}
	return nil
}
