package replication

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"

	"github.com/dep2p/go-docmesh/config"
	"github.com/dep2p/go-docmesh/internal/core/netmon"
	"github.com/dep2p/go-docmesh/internal/core/storage/port"
	"github.com/dep2p/go-docmesh/pkg/types"
)

// ============================================================================
//                              模块输入依赖
// ============================================================================

// ModuleInput 定义模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config `optional:"true"`
	Port   port.Port

	// Clock 可选，测试中注入 mock 时钟
	Clock clock.Clock `optional:"true"`

	// Observer 可选，指标模块提供
	Observer Observer `optional:"true"`
}

// ============================================================================
//                              模块输出服务
// ============================================================================

// ModuleOutput 定义模块输出服务
type ModuleOutput struct {
	fx.Out

	Engine *Engine
}

// ProvideEngine 提供复制引擎
func ProvideEngine(input ModuleInput) (ModuleOutput, error) {
	cfg := configFromUnified(input.Config)
	engine, err := New(cfg, input.Port, input.Clock, input.Observer)
	if err != nil {
		return ModuleOutput{}, err
	}
	return ModuleOutput{Engine: engine}, nil
}

func configFromUnified(c *config.Config) Config {
	if c == nil {
		c = config.NewConfig()
	}
	self := types.PeerID(c.Identity.PeerID)
	if self.IsEmpty() {
		self = types.NewPeerID()
		logger.Info("未配置节点 ID，已随机生成", "self", self)
	}
	return Config{
		Self:          self,
		CommandBuffer: c.Sync.CommandBuffer,
		OutboxSize:    c.Sync.OutboxSize,
		StartOnline:   c.Connectivity.StartOnline,
	}
}

// ============================================================================
//                              模块定义
// ============================================================================

// Module 返回 fx 模块配置
func Module() fx.Option {
	return fx.Module("replication",
		fx.Provide(ProvideEngine),
		fx.Invoke(registerLifecycle),
		fx.Invoke(bindConnectivity),
	)
}

func registerLifecycle(lc fx.Lifecycle, engine *Engine) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return engine.Start(ctx)
		},
		OnStop: func(_ context.Context) error {
			return engine.Stop()
		},
	})
}

type connectivityInput struct {
	fx.In

	LC      fx.Lifecycle
	Engine  *Engine
	Monitor *netmon.Monitor `optional:"true"`
}

// bindConnectivity 让引擎跟随联网状态监控器
func bindConnectivity(in connectivityInput) {
	if in.Monitor == nil {
		return
	}
	var (
		cancel context.CancelFunc
		done   <-chan struct{}
	)
	in.LC.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			done = in.Engine.Follow(ctx, in.Monitor)
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
}
