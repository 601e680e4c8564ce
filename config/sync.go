package config

import "fmt"

// SyncConfig 复制引擎配置
type SyncConfig struct {
	// CommandBuffer 引擎命令队列长度
	// 默认值: 256
	CommandBuffer int `json:"command_buffer"`

	// OutboxSize 每个会话的发送队列长度，满则关闭会话
	// 默认值: 128
	OutboxSize int `json:"outbox_size"`
}

// DefaultSyncConfig 返回默认复制引擎配置
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		CommandBuffer: 256,
		OutboxSize:    128,
	}
}

// Validate 验证复制引擎配置
func (c *SyncConfig) Validate() error {
	if c.CommandBuffer < 1 {
		return fmt.Errorf("sync: command_buffer must be >= 1")
	}
	if c.OutboxSize < 1 {
		return fmt.Errorf("sync: outbox_size must be >= 1")
	}
	return nil
}
