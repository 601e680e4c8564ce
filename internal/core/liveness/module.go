package liveness

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-docmesh/config"
	"github.com/dep2p/go-docmesh/internal/core/replication"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

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

	Service *Service
}

// ProvideServices 提供存活检测服务
//
// 配置中 Enable=false 时仍然提供服务实例，但不会启动心跳循环。
func ProvideServices(input ModuleInput) ModuleOutput {
	cfg := config.DefaultLivenessConfig()
	if input.Config != nil {
		cfg = input.Config.Liveness
	}
	svc := NewService(Config{
		Interval: cfg.Interval.Duration(),
		Timeout:  cfg.Timeout.Duration(),
	}, input.Engine, input.Clock)
	return ModuleOutput{Service: svc}
}

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("liveness",
		fx.Provide(ProvideServices),
		fx.Invoke(registerLifecycle),
	)
}

type lifecycleInput struct {
	fx.In

	LC      fx.Lifecycle
	Config  *config.Config `optional:"true"`
	Service *Service
}

func registerLifecycle(input lifecycleInput) {
	if input.Config != nil && !input.Config.Liveness.Enable {
		logger.Info("存活检测已禁用")
		return
	}
	input.LC.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return input.Service.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return input.Service.Stop()
		},
	})
}
