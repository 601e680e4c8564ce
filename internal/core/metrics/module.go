package metrics

import (
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"

	"github.com/dep2p/go-docmesh/config"
	"github.com/dep2p/go-docmesh/internal/core/replication"
	"github.com/dep2p/go-docmesh/internal/core/storage"
)

// Config 指标配置
type Config struct {
	// Enabled 是否启用指标收集
	Enabled bool

	// ListenAddr /metrics 监听地址，为空则不暴露
	ListenAddr string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Enabled: true,
	}
}

// ConfigFromUnified 从统一配置创建指标配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return Config{
		Enabled:    cfg.Metrics.Enable,
		ListenAddr: cfg.Metrics.ListenAddr,
	}
}

// Params Metrics 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Clock      clock.Clock    `optional:"true"`

	// External 外部注册表，设置后指标注册到其中而不是新建注册表
	External prometheus.Registerer `name:"metrics_registerer" optional:"true"`
}

// Result Metrics 模块提供的结果
//
// 禁用时各字段均为 nil，下游按可选依赖处理。
type Result struct {
	fx.Out

	Collector *Collector
	Registry  *prometheus.Registry
	Observer  replication.Observer
	Hook      storage.FailureHook
}

// Module 返回 metrics Fx 模块
func Module() fx.Option {
	return fx.Module("metrics",
		fx.Provide(ProvideCollector),
		fx.Invoke(registerServer),
	)
}

// ProvideCollector 创建收集器及其注册表
func ProvideCollector(p Params) Result {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	if !cfg.Enabled {
		return Result{}
	}

	if p.External != nil {
		c := NewCollector(p.External, p.Clock)
		res := Result{Collector: c, Observer: c, Hook: c.Hook()}
		if reg, ok := p.External.(*prometheus.Registry); ok {
			res.Registry = reg
		}
		return res
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c := NewCollector(reg, p.Clock)
	return Result{
		Collector: c,
		Registry:  reg,
		Observer:  c,
		Hook:      c.Hook(),
	}
}

type serverInput struct {
	fx.In

	LC         fx.Lifecycle
	UnifiedCfg *config.Config       `optional:"true"`
	Registry   *prometheus.Registry `optional:"true"`
}

func registerServer(in serverInput) {
	cfg := ConfigFromUnified(in.UnifiedCfg)
	if in.Registry == nil || cfg.ListenAddr == "" {
		return
	}
	srv := NewServer(cfg.ListenAddr, in.Registry)
	in.LC.Append(fx.Hook{
		OnStart: srv.Start,
		OnStop:  srv.Stop,
	})
}
