package storage

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"github.com/dep2p/go-docmesh/config"
	"github.com/dep2p/go-docmesh/internal/core/storage/bolt"
	"github.com/dep2p/go-docmesh/internal/core/storage/engine"
	"github.com/dep2p/go-docmesh/internal/core/storage/engine/badger"
	"github.com/dep2p/go-docmesh/internal/core/storage/port"
	"github.com/dep2p/go-docmesh/pkg/lib/log"
)

var logger = log.Logger("core/storage")

// Params Storage 模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Hook       FailureHook    `optional:"true"`
}

// Result Storage 模块提供的结果
type Result struct {
	fx.Out

	Port   port.Port
	Config Config
}

// Module 返回 Storage Fx 模块
//
// 提供:
//   - port.Port: 持久化端口（主存储 + 可选回退）
//   - Config: 存储配置
//
// 生命周期:
//   - OnStart: 启动后台任务（badger GC）
//   - OnStop: 关闭所有后端
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideStorage),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideStorage 提供持久化端口和配置
func ProvideStorage(p Params) (Result, error) {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	pt, err := NewPort(cfg, p.Hook)
	if err != nil {
		return Result{}, err
	}
	return Result{Port: pt, Config: cfg}, nil
}

func registerLifecycle(lc fx.Lifecycle, p port.Port) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			logger.Info("正在启动存储", "backend", p.Name())
			if s, ok := p.(port.Starter); ok {
				if err := s.Start(); err != nil {
					logger.Error("存储启动失败", "error", err)
					return err
				}
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			logger.Info("正在关闭存储")
			if err := p.Close(); err != nil {
				logger.Warn("存储关闭失败", "error", err)
				return err
			}
			return nil
		},
	})
}

// NewPort 根据配置创建持久化端口
//
// 回退存储打开失败只记录警告，主存储打开失败则返回错误。
func NewPort(cfg Config, hook FailureHook) (*Fallback, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	primary, err := openBackend(cfg.Backend, cfg)
	if err != nil {
		return nil, fmt.Errorf("open primary storage: %w", err)
	}

	var secondary port.Port
	if cfg.Fallback != "" && cfg.Fallback != config.FallbackNone {
		secondary, err = openBackend(cfg.Fallback, cfg)
		if err != nil {
			logger.Warn("回退存储不可用", "backend", cfg.Fallback, "error", err)
			secondary = nil
		}
	}

	logger.Debug("存储已创建", "primary", primary.Name(), "fallback", cfg.Fallback)
	return NewFallback(primary, secondary, hook), nil
}

func openBackend(name string, cfg Config) (port.Port, error) {
	switch name {
	case config.BackendBadger:
		ecfg := engine.DefaultConfig(cfg.BadgerPath)
		ecfg.SyncWrites = cfg.SyncWrites
		eng, err := badger.New(ecfg)
		if err != nil {
			return nil, err
		}
		return NewEnginePort(config.BackendBadger, eng), nil
	case config.BackendMemory:
		eng, err := badger.New(engine.InMemoryConfig())
		if err != nil {
			return nil, err
		}
		return NewEnginePort(config.BackendMemory, eng), nil
	case config.BackendBolt:
		return bolt.Open(cfg.BoltPath, cfg.SyncWrites)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", name)
	}
}

// NewMemoryPort 创建纯内存持久化端口
func NewMemoryPort() (port.Port, error) {
	p, err := NewPort(MemoryConfig(), nil)
	if err != nil {
		return nil, err
	}
	return p, nil
}
