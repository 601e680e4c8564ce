package docmesh

import (
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-docmesh/config"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
//
// 基础配置由 WithConfig 提供，其余选项记录为修改函数，
// 在 toConfig 中按调用顺序应用到基础配置之上，与选项顺序无关。
type options struct {
	base    *config.Config
	mutates []func(*config.Config)

	clock      clock.Clock
	registerer prometheus.Registerer
	fxOptions  []fx.Option
}

func newOptions() *options {
	return &options{}
}

func (o *options) mutate(fn func(*config.Config)) {
	o.mutates = append(o.mutates, fn)
}

// toConfig 生成最终配置并校验
func (o *options) toConfig() (*config.Config, error) {
	var cfg *config.Config
	if o.base != nil {
		cfg = config.CloneConfig(o.base)
	} else {
		cfg = config.NewConfig()
		config.ApplyEnv(cfg)
	}
	for _, fn := range o.mutates {
		fn(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              配置选项
// ════════════════════════════════════════════════════════════════════════════

// WithConfig 使用完整配置作为基础
//
// 其他选项在其之上生效。
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		o.base = cfg
		return nil
	}
}

// WithDataDir 设置数据目录
func WithDataDir(dir string) Option {
	return func(o *options) error {
		if dir == "" {
			return errors.New("data dir is empty")
		}
		o.mutate(func(c *config.Config) { c.Storage.DataDir = dir })
		return nil
	}
}

// WithPeerID 设置节点 ID，为空时启动时随机生成
func WithPeerID(id string) Option {
	return func(o *options) error {
		o.mutate(func(c *config.Config) { c.Identity.PeerID = id })
		return nil
	}
}

// WithSignaling 设置 rendezvous 地址与可选的 ICE 服务器
func WithSignaling(url string, iceServers ...string) Option {
	return func(o *options) error {
		o.mutate(func(c *config.Config) {
			c.Signaling.URL = url
			if len(iceServers) > 0 {
				c.Signaling.ICEServers = append([]string(nil), iceServers...)
			}
		})
		return nil
	}
}

// WithMemoryStorage 只在内存中保存文档，不落盘
func WithMemoryStorage() Option {
	return func(o *options) error {
		o.mutate(func(c *config.Config) {
			c.Storage.Backend = config.BackendMemory
			c.Storage.Fallback = config.FallbackNone
		})
		return nil
	}
}

// WithLiveness 设置会话心跳间隔与超时，interval 为 0 时关闭心跳
func WithLiveness(interval, timeout time.Duration) Option {
	return func(o *options) error {
		if interval > 0 && timeout <= interval {
			return errors.New("liveness timeout must exceed interval")
		}
		o.mutate(func(c *config.Config) {
			c.Liveness.Enable = interval > 0
			if interval > 0 {
				c.Liveness.Interval = config.Duration(interval)
				c.Liveness.Timeout = config.Duration(timeout)
			}
		})
		return nil
	}
}

// WithStartOffline 以离线状态启动，修改进入离线队列直到 SetOnline
func WithStartOffline() Option {
	return func(o *options) error {
		o.mutate(func(c *config.Config) { c.Connectivity.StartOnline = false })
		return nil
	}
}

// WithMetricsAddr 在指定地址暴露 /metrics
func WithMetricsAddr(addr string) Option {
	return func(o *options) error {
		o.mutate(func(c *config.Config) {
			c.Metrics.Enable = true
			c.Metrics.ListenAddr = addr
		})
		return nil
	}
}

// WithClock 注入时钟，测试中使用 mock 时钟
func WithClock(clk clock.Clock) Option {
	return func(o *options) error {
		o.clock = clk
		return nil
	}
}

// WithRegistry 把指标注册到外部注册表
func WithRegistry(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		o.mutate(func(c *config.Config) { c.Metrics.Enable = true })
		return nil
	}
}

// WithFxOptions 追加自定义 Fx 选项
func WithFxOptions(opts ...fx.Option) Option {
	return func(o *options) error {
		o.fxOptions = append(o.fxOptions, opts...)
		return nil
	}
}
