package config

import "fmt"

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enable 是否收集指标
	// 默认值: true
	Enable bool `json:"enable"`

	// ListenAddr /metrics HTTP 监听地址，为空则不暴露
	ListenAddr string `json:"listen_addr"`
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{Enable: true}
}

// Validate 验证指标配置
func (c *MetricsConfig) Validate() error {
	if c.ListenAddr != "" && !c.Enable {
		return fmt.Errorf("metrics: listen_addr set while metrics disabled")
	}
	return nil
}
