package webrtc

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-docmesh/config"
	"github.com/dep2p/go-docmesh/internal/core/replication"
	"github.com/dep2p/go-docmesh/internal/core/signaling"
)

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config `optional:"true"`
	Engine *replication.Engine
	Clock  clock.Clock `optional:"true"`
}

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Transport  *Transport
	Negotiator signaling.Negotiator
}

// ConfigFromUnified 从统一配置转换
func ConfigFromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.ICEServers = append([]string(nil), cfg.Signaling.ICEServers...)
	if d := cfg.Signaling.ConnectTimeout.Duration(); d > 0 {
		c.ConnectTimeout = d
	}
	return c
}

// ProvideTransport 提供 WebRTC 传输
func ProvideTransport(input ModuleInput) ModuleOutput {
	t := New(ConfigFromUnified(input.Config), input.Engine, input.Clock)
	return ModuleOutput{Transport: t, Negotiator: t}
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("transport/webrtc",
		fx.Provide(ProvideTransport),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, t *Transport) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return t.Close()
		},
	})
}
