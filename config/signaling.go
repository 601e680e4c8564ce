package config

import (
	"fmt"
	"net/url"
	"time"
)

// SignalingConfig 信令配置
//
// rendezvous 客户端与 WebRTC ICE 参数。
type SignalingConfig struct {
	// URL rendezvous 的 websocket 地址，例如 "ws://127.0.0.1:7400/ws"
	// 为空表示不连接 rendezvous（只能通过其他方式建立会话）
	URL string `json:"url"`

	// ICEServers STUN/TURN 服务器列表
	ICEServers []string `json:"ice_servers"`

	// ConnectTimeout 单次会话协商超时
	// 默认值: 30s
	ConnectTimeout Duration `json:"connect_timeout"`

	// ReconnectMin rendezvous 断线后重连的初始退避
	// 默认值: 1s
	ReconnectMin Duration `json:"reconnect_min"`

	// ReconnectMax 重连退避上限
	// 默认值: 60s
	ReconnectMax Duration `json:"reconnect_max"`

	// RedialSuppress 协商失败的节点在此时间内不再重拨
	// 默认值: 30s
	RedialSuppress Duration `json:"redial_suppress"`
}

// DefaultSignalingConfig 返回默认信令配置
func DefaultSignalingConfig() SignalingConfig {
	return SignalingConfig{
		ICEServers:     []string{"stun:stun.l.google.com:19302"},
		ConnectTimeout: Duration(30 * time.Second),
		ReconnectMin:   Duration(1 * time.Second),
		ReconnectMax:   Duration(60 * time.Second),
		RedialSuppress: Duration(30 * time.Second),
	}
}

// Validate 验证信令配置
func (c *SignalingConfig) Validate() error {
	if c.URL != "" {
		u, err := url.Parse(c.URL)
		if err != nil {
			return fmt.Errorf("signaling: invalid url: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("signaling: url scheme must be ws or wss, got %q", u.Scheme)
		}
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("signaling: connect_timeout must be positive")
	}
	if c.ReconnectMin <= 0 || c.ReconnectMax < c.ReconnectMin {
		return fmt.Errorf("signaling: reconnect_max must be >= reconnect_min > 0")
	}
	if c.RedialSuppress < 0 {
		return fmt.Errorf("signaling: redial_suppress cannot be negative")
	}
	return nil
}
