package config

import (
	"errors"
	"strings"
)

// IdentityConfig 节点标识配置
type IdentityConfig struct {
	// PeerID 在 rendezvous 上通告的节点 ID
	// 为空时启动时随机生成（UUID）
	PeerID string `json:"peer_id"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	if c.PeerID != "" && strings.TrimSpace(c.PeerID) == "" {
		return errors.New("identity: peer_id cannot be blank")
	}
	if strings.ContainsAny(c.PeerID, "\r\n") {
		return errors.New("identity: peer_id cannot contain line breaks")
	}
	return nil
}
