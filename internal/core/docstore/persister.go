package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"

	"github.com/dep2p/go-docmesh/internal/core/storage/port"
	"github.com/dep2p/go-docmesh/pkg/types"
)

// Persister 异步快照持久化
//
// Schedule 从不阻塞：只保留最新的快照，连续的修改被合并为一次写入。
// 每次写入整体替换 documents/current，读者不会看到部分写入。
type Persister struct {
	port    port.Port
	pending chan types.Snapshot
	onError func(error)

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	writes atomic.Int64
}

// NewPersister 创建持久化器，onError 可为 nil
func NewPersister(p port.Port, onError func(error)) *Persister {
	return &Persister{
		port:    p,
		pending: make(chan types.Snapshot, 1),
		onError: onError,
	}
}

// Schedule 调度一次持久化，旧的待写快照被替换
func (p *Persister) Schedule(snap types.Snapshot) {
	for {
		select {
		case p.pending <- snap:
			return
		default:
			select {
			case <-p.pending:
			default:
			}
		}
	}
}

// Start 启动写入 goroutine
func (p *Persister) Start() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop 停止并写出最后一个待写快照
func (p *Persister) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.cancel()
	p.wg.Wait()

	select {
	case snap := <-p.pending:
		p.write(snap)
	default:
	}
}

// Writes 返回成功写入次数
func (p *Persister) Writes() int64 {
	return p.writes.Load()
}

func (p *Persister) loop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-p.pending:
			p.write(snap)
		}
	}
}

func (p *Persister) write(snap types.Snapshot) {
	if err := SaveSnapshot(p.port, snap); err != nil {
		logger.Warn("快照持久化失败", "backend", p.port.Name(), "error", err)
		if p.onError != nil {
			p.onError(err)
		}
		return
	}
	p.writes.Add(1)
	logger.Debug("快照已持久化", "documents", len(snap.Documents), "lastUpdate", snap.LastUpdate)
}

// ============================================================================
//                              快照编码
// ============================================================================

// compressThreshold 超过该大小的快照以 zstd 帧保存
const compressThreshold = 4 << 10

// zstdMagic zstd 帧头，JSON 快照总以 '{' 开头，两者不会混淆
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
)

// SaveSnapshot 同步写入快照
func SaveSnapshot(p port.Port, snap types.Snapshot) error {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	return p.Put(port.NamespaceDocuments, port.KeyCurrent, data)
}

// EncodeSnapshot 编码快照，较大的快照被压缩
func EncodeSnapshot(snap types.Snapshot) ([]byte, error) {
	if snap.Documents == nil {
		snap.Documents = []types.Document{}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	if len(data) < compressThreshold {
		return data, nil
	}
	return encoder.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

// DecodeSnapshot 解码 EncodeSnapshot 的输出，同时接受未压缩的 JSON
func DecodeSnapshot(data []byte) (types.Snapshot, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		raw, err := decoder.DecodeAll(data, nil)
		if err != nil {
			return types.Snapshot{}, fmt.Errorf("%w: decompress snapshot: %v", port.ErrCorrupted, err)
		}
		data = raw
	}
	var snap types.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return types.Snapshot{}, fmt.Errorf("%w: decode snapshot: %v", port.ErrCorrupted, err)
	}
	return snap, nil
}

// LoadSnapshot 读取持久化的快照，不存在时返回 false
func LoadSnapshot(p port.Port) (types.Snapshot, bool, error) {
	data, err := p.Get(port.NamespaceDocuments, port.KeyCurrent)
	if port.IsNotFound(err) {
		return types.Snapshot{}, false, nil
	}
	if err != nil {
		return types.Snapshot{}, false, err
	}

	snap, err := DecodeSnapshot(data)
	if err != nil {
		return types.Snapshot{}, false, err
	}
	return snap, true, nil
}

var _ SnapshotSink = (*Persister)(nil)
