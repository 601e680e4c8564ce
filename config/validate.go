package config

import (
	"errors"
	"fmt"
)

// ValidateAll 验证整个配置的有效性
func ValidateAll(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}

// ValidateAndFix 验证配置并尝试自动修复常见问题
//
// 可修复的问题：
//   - 重连退避上下限颠倒 -> 交换值
//   - 存活超时不大于间隔 -> 取间隔的 3 倍
//   - 回退存储与主存储相同 -> 关闭回退
func ValidateAndFix(c *Config) (*Config, error) {
	if c == nil {
		return NewConfig(), nil
	}

	if c.Signaling.ReconnectMax < c.Signaling.ReconnectMin {
		c.Signaling.ReconnectMin, c.Signaling.ReconnectMax = c.Signaling.ReconnectMax, c.Signaling.ReconnectMin
	}

	if c.Liveness.Enable && c.Liveness.Timeout <= c.Liveness.Interval {
		c.Liveness.Timeout = c.Liveness.Interval * 3
	}

	if c.Storage.Fallback == c.Storage.Backend {
		c.Storage.Fallback = FallbackNone
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validation failed after fixes: %w", err)
	}
	return c, nil
}
