package storage

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"

	"github.com/dep2p/go-docmesh/internal/core/storage/port"
)

// FailureHook 后端写入失败回调（用于指标）
type FailureHook func(backend string, err error)

// Fallback 主/回退双存储适配器
//
// 不变式：回退存储只保存“最近一次写入主存储失败”的键。
// 因此读取时回退存储优先；主存储写入成功后删除回退存储中的同名键。
type Fallback struct {
	primary   port.Port
	secondary port.Port
	onFailure FailureHook
}

// NewFallback 创建适配器，secondary 可为 nil
func NewFallback(primary, secondary port.Port, hook FailureHook) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, onFailure: hook}
}

// Name 返回后端名称
func (f *Fallback) Name() string {
	if f.secondary == nil {
		return f.primary.Name()
	}
	return f.primary.Name() + "+" + f.secondary.Name()
}

// Primary 返回主存储
func (f *Fallback) Primary() port.Port { return f.primary }

// Secondary 返回回退存储
func (f *Fallback) Secondary() port.Port { return f.secondary }

// Start 启动需要后台任务的后端
func (f *Fallback) Start() error {
	var err error
	for _, p := range []port.Port{f.primary, f.secondary} {
		if s, ok := p.(port.Starter); ok {
			err = multierr.Append(err, s.Start())
		}
	}
	return err
}

func (f *Fallback) failed(p port.Port, op string, err error) {
	logger.Warn("持久化失败", "backend", p.Name(), "op", op, "error", err)
	if f.onFailure != nil {
		f.onFailure(p.Name(), err)
	}
}

// Get 回退存储优先读取
func (f *Fallback) Get(ns port.Namespace, key string) ([]byte, error) {
	if f.secondary != nil {
		v, err := f.secondary.Get(ns, key)
		if err == nil {
			return v, nil
		}
		if !port.IsNotFound(err) {
			f.failed(f.secondary, "get", err)
		}
	}

	v, err := f.primary.Get(ns, key)
	if err != nil && !port.IsNotFound(err) {
		f.failed(f.primary, "get", err)
	}
	return v, err
}

// Put 写入主存储，失败时写入回退存储
func (f *Fallback) Put(ns port.Namespace, key string, value []byte) error {
	err := f.primary.Put(ns, key, value)
	if err == nil {
		if f.secondary != nil {
			if derr := f.secondary.Delete(ns, key); derr != nil {
				logger.Debug("清理回退存储失败", "namespace", ns, "key", key, "error", derr)
			}
		}
		return nil
	}

	f.failed(f.primary, "put", err)
	if f.secondary == nil {
		return err
	}
	if serr := f.secondary.Put(ns, key, value); serr != nil {
		f.failed(f.secondary, "put", serr)
		return multierr.Combine(err, serr)
	}
	logger.Info("已写入回退存储", "backend", f.secondary.Name(), "namespace", ns, "key", key)
	return nil
}

// GetAll 合并两个后端，回退存储覆盖同名键
func (f *Fallback) GetAll(ns port.Namespace) ([]port.Entry, error) {
	entries, err := f.primary.GetAll(ns)
	if err != nil {
		f.failed(f.primary, "getall", err)
		if f.secondary == nil {
			return nil, err
		}
	}
	if f.secondary == nil {
		return entries, nil
	}

	diverted, serr := f.secondary.GetAll(ns)
	if serr != nil {
		f.failed(f.secondary, "getall", serr)
		if err != nil {
			return nil, multierr.Combine(err, serr)
		}
		return entries, nil
	}
	if len(diverted) == 0 {
		return entries, nil
	}

	merged := make(map[string][]byte, len(entries)+len(diverted))
	for _, e := range entries {
		merged[e.Key] = e.Value
	}
	for _, e := range diverted {
		merged[e.Key] = e.Value
	}

	out := make([]port.Entry, 0, len(merged))
	for k, v := range merged {
		out = append(out, port.Entry{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete 从两个后端删除
func (f *Fallback) Delete(ns port.Namespace, key string) error {
	err := f.primary.Delete(ns, key)
	if f.secondary != nil {
		err = multierr.Append(err, f.secondary.Delete(ns, key))
	}
	return err
}

// Clear 清空两个后端的命名空间
func (f *Fallback) Clear(ns port.Namespace) error {
	err := f.primary.Clear(ns)
	if f.secondary != nil {
		err = multierr.Append(err, f.secondary.Clear(ns))
	}
	if err != nil {
		return fmt.Errorf("clear %s: %w", ns, err)
	}
	return nil
}

// Close 关闭两个后端
func (f *Fallback) Close() error {
	err := f.primary.Close()
	if f.secondary != nil {
		err = multierr.Append(err, f.secondary.Close())
	}
	return err
}

var (
	_ port.Port    = (*Fallback)(nil)
	_ port.Starter = (*Fallback)(nil)
)
