package config

import (
	"fmt"
	"time"
)

// LivenessConfig 会话存活检测配置
//
// 每隔 Interval 向每个 Open 会话发送 ping；
// 超过 Timeout 未收到任何消息的会话被关闭。
type LivenessConfig struct {
	// Enable 是否启用
	// 默认值: true
	Enable bool `json:"enable"`

	// Interval 心跳间隔
	// 默认值: 10s
	Interval Duration `json:"interval"`

	// Timeout 空闲超时
	// 默认值: 30s
	Timeout Duration `json:"timeout"`
}

// DefaultLivenessConfig 返回默认存活检测配置
func DefaultLivenessConfig() LivenessConfig {
	return LivenessConfig{
		Enable:   true,
		Interval: Duration(10 * time.Second),
		Timeout:  Duration(30 * time.Second),
	}
}

// Validate 验证存活检测配置
func (c *LivenessConfig) Validate() error {
	if !c.Enable {
		return nil
	}
	if c.Interval <= 0 {
		return fmt.Errorf("liveness: interval must be positive")
	}
	if c.Timeout <= c.Interval {
		return fmt.Errorf("liveness: timeout must be greater than interval")
	}
	return nil
}
