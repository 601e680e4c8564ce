package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// EnvDataDir 覆盖 Storage.DataDir 的环境变量
const EnvDataDir = "DOCMESH_DATA_DIR"

// FromJSON 从 JSON 数据创建配置
//
// 未出现的字段保留默认值。
//
// 示例 JSON:
//
//	{
//	  "identity": {"peer_id": "alice"},
//	  "signaling": {"url": "ws://127.0.0.1:7400/ws"},
//	  "liveness": {"interval": "5s", "timeout": "15s"}
//	}
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadFile 从 JSON 文件加载配置并验证
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := FromJSON(data)
	if err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToJSON 序列化为带缩进的 JSON
func (c *Config) ToJSON() ([]byte, error) {
	if c == nil {
		return nil, errors.New("config is nil")
	}
	return json.MarshalIndent(c, "", "  ")
}

// ApplyEnv 应用环境变量覆盖
func ApplyEnv(cfg *Config) {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		cfg.Storage.DataDir = dir
	}
}

// CloneConfig 克隆配置
//
// 创建配置的深拷贝，用于安全地修改配置而不影响原始配置。
func CloneConfig(cfg *Config) *Config {
	if cfg == nil {
		return nil
	}
	cloned := *cfg
	cloned.Signaling.ICEServers = append([]string(nil), cfg.Signaling.ICEServers...)
	return &cloned
}
