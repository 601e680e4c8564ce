package config

import (
	"fmt"
	"strings"
)

// RendezvousConfig rendezvous 服务端配置
type RendezvousConfig struct {
	// ListenAddr 监听地址
	// 默认值: ":7400"
	ListenAddr string `json:"listen_addr"`

	// Path websocket 路径
	// 默认值: "/ws"
	Path string `json:"path"`

	// MessagesPerSecond 每个连接的消息速率
	// 默认值: 50
	MessagesPerSecond float64 `json:"messages_per_second"`

	// Burst 突发上限
	// 默认值: 100
	Burst int `json:"burst"`
}

// DefaultRendezvousConfig 返回默认 rendezvous 配置
func DefaultRendezvousConfig() RendezvousConfig {
	return RendezvousConfig{
		ListenAddr:        ":7400",
		Path:              "/ws",
		MessagesPerSecond: 50,
		Burst:             100,
	}
}

// Validate 验证 rendezvous 配置
func (c *RendezvousConfig) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("rendezvous: listen_addr cannot be empty")
	}
	if !strings.HasPrefix(c.Path, "/") {
		return fmt.Errorf("rendezvous: path must start with /")
	}
	if c.MessagesPerSecond <= 0 || c.Burst < 1 {
		return fmt.Errorf("rendezvous: messages_per_second and burst must be positive")
	}
	return nil
}
