package netmon

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-docmesh/config"
)

// Module 返回 Fx 模块
func Module() fx.Option {
	return fx.Module("netmon",
		fx.Provide(ProvideMonitor),
		fx.Invoke(registerLifecycle),
	)
}

// monitorParams 监控器依赖参数
type monitorParams struct {
	fx.In

	Config *config.Config `optional:"true"`
	Clock  clock.Clock    `optional:"true"`
	Prober Prober         `optional:"true"`
}

// ProvideMonitor 提供联网状态监控器
//
// 显式注入的 Prober 优先；否则配置了 ProbeAddr 时使用 TCPProber。
func ProvideMonitor(params monitorParams) *Monitor {
	cfg := FromUnified(params.Config)
	m := NewMonitor(cfg, params.Clock)

	switch {
	case params.Prober != nil:
		m.SetProber(params.Prober)
	case cfg.ProbeAddr != "":
		m.SetProber(NewTCPProber(cfg.ProbeAddr))
	}
	return m
}

func registerLifecycle(lc fx.Lifecycle, m *Monitor) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return m.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return m.Stop()
		},
	})
}
