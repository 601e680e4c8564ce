// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义
//   - 支持从 JSON 加载和保存配置
//   - 支持通过环境变量覆盖数据目录
//
// 使用示例：
//
//	// 创建默认配置
//	cfg := config.NewConfig()
//	cfg.Signaling.URL = "ws://127.0.0.1:7400/ws"
//
//	// 从 JSON 文件加载
//	cfg, err := config.LoadFile("docmesh.json")
package config

// Config 是 docmesh 的完整配置结构
//
// 配置按照功能模块组织：
//   - Identity: 节点标识
//   - Storage: 持久化（badger 主存储 + bbolt 回退）
//   - Signaling: rendezvous 与 ICE
//   - Liveness: 会话心跳
//   - Connectivity: 联网状态探测
//   - Sync: 复制引擎队列
//   - Metrics: Prometheus 指标
//   - Rendezvous: rendezvous 服务端
type Config struct {
	// Identity 节点标识配置
	Identity IdentityConfig `json:"identity"`

	// Storage 存储配置
	Storage StorageConfig `json:"storage"`

	// Signaling 信令配置
	Signaling SignalingConfig `json:"signaling"`

	// Liveness 会话存活检测配置
	Liveness LivenessConfig `json:"liveness"`

	// Connectivity 联网状态配置
	Connectivity ConnectivityConfig `json:"connectivity"`

	// Sync 复制引擎配置
	Sync SyncConfig `json:"sync"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics"`

	// Rendezvous rendezvous 服务端配置
	Rendezvous RendezvousConfig `json:"rendezvous"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Identity:     DefaultIdentityConfig(),
		Storage:      DefaultStorageConfig(),
		Signaling:    DefaultSignalingConfig(),
		Liveness:     DefaultLivenessConfig(),
		Connectivity: DefaultConnectivityConfig(),
		Sync:         DefaultSyncConfig(),
		Metrics:      DefaultMetricsConfig(),
		Rendezvous:   DefaultRendezvousConfig(),
	}
}

// Validate 验证配置的有效性
//
// 检查所有子配置，返回遇到的第一个错误。
func (c *Config) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Signaling.Validate(); err != nil {
		return err
	}
	if err := c.Liveness.Validate(); err != nil {
		return err
	}
	if err := c.Connectivity.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	if err := c.Rendezvous.Validate(); err != nil {
		return err
	}
	return nil
}
