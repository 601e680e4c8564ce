package signaling

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-docmesh/config"
	"github.com/dep2p/go-docmesh/internal/core/replication"
)

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config `optional:"true"`
	Engine *replication.Engine

	// Negotiator 由 WebRTC 传输模块提供
	Negotiator Negotiator `optional:"true"`

	Clock clock.Clock `optional:"true"`
}

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	// Client 未配置 URL 或没有协商方时为 nil
	Client *Client
}

// ProvideClient 提供信令客户端
func ProvideClient(input ModuleInput) ModuleOutput {
	cfg := ClientConfigFromUnified(input.Config)
	if cfg.URL == "" {
		logger.Info("未配置 rendezvous 地址，信令客户端不启用")
		return ModuleOutput{}
	}
	if input.Negotiator == nil {
		logger.Warn("没有可用的连接协商方，信令客户端不启用")
		return ModuleOutput{}
	}
	return ModuleOutput{
		Client: NewClient(cfg, input.Engine.ID(), input.Engine, input.Negotiator, input.Clock),
	}
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("signaling",
		fx.Provide(ProvideClient),
		fx.Invoke(registerLifecycle),
	)
}

func registerLifecycle(lc fx.Lifecycle, client *Client) {
	if client == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return client.Stop()
		},
	})
}
