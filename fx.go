package docmesh

import (
	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/go-docmesh/config"
	"github.com/dep2p/go-docmesh/internal/core/liveness"
	"github.com/dep2p/go-docmesh/internal/core/metrics"
	"github.com/dep2p/go-docmesh/internal/core/netmon"
	"github.com/dep2p/go-docmesh/internal/core/replication"
	"github.com/dep2p/go-docmesh/internal/core/signaling"
	"github.com/dep2p/go-docmesh/internal/core/storage"
	"github.com/dep2p/go-docmesh/internal/core/transport/webrtc"
	"github.com/dep2p/go-docmesh/pkg/lib/log"
)

var fxLogger = log.Logger("docmesh/fx")

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. Storage → Metrics（提供存储失败钩子与引擎观察者）
//  2. Netmon → Replication（引擎跟随联网状态）
//  3. Liveness → WebRTC → Signaling
//
// 停止顺序与之相反：信令先断开，引擎最后关闭并等待持久化完成。
func buildFxApp(cfg *config.Config, o *options, node *Node) *fx.App {
	modules := []fx.Option{
		fx.Supply(cfg),
	}

	if o.clock != nil {
		clk := o.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}
	if o.registerer != nil {
		reg := o.registerer
		modules = append(modules, fx.Provide(fx.Annotated{
			Name:   "metrics_registerer",
			Target: func() prometheus.Registerer { return reg },
		}))
	}

	modules = append(modules,
		storage.Module(),
		metrics.Module(),
		netmon.Module(),
		replication.Module(),
		liveness.Module(),
		webrtc.Module(),
		signaling.Module(),
	)

	if len(o.fxOptions) > 0 {
		modules = append(modules, o.fxOptions...)
	}

	modules = append(modules,
		fx.Invoke(injectNodeComponents(node)),
		fx.NopLogger,
	)

	fxLogger.Debug("组装 Fx 应用", "modules", len(modules), "signaling", cfg.Signaling.URL != "")
	return fx.New(modules...)
}

// ════════════════════════════════════════════════════════════════════════════
// 组件注入
// ════════════════════════════════════════════════════════════════════════════

// nodeInjectParams Node 组件注入参数
type nodeInjectParams struct {
	fx.In

	// 核心组件（必需）
	Engine    *replication.Engine
	Monitor   *netmon.Monitor
	Transport *webrtc.Transport

	// 可选组件（未启用时为 nil）
	Liveness  *liveness.Service    `optional:"true"`
	Signaling *signaling.Client    `optional:"true"`
	Collector *metrics.Collector   `optional:"true"`
	Registry  *prometheus.Registry `optional:"true"`
}

func injectNodeComponents(node *Node) interface{} {
	return func(p nodeInjectParams) {
		node.engine = p.Engine
		node.monitor = p.Monitor
		node.transport = p.Transport
		node.liveness = p.Liveness
		node.signaling = p.Signaling
		node.collector = p.Collector
		node.registry = p.Registry
	}
}
