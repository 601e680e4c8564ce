// Package offline 实现离线编辑队列
//
// 断网期间的每次本地内容修改都会追加到队列并立即持久化
// （changes 命名空间，每条一个键）。恢复联网后按时间戳升序回放，
// 全部回放完成后才整体清空；中途失败则保留队列等待下次回放。
//
// Queue 不加锁：它只能由复制引擎的单个 goroutine 访问。
package offline

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/go-docmesh/internal/core/storage/port"
	"github.com/dep2p/go-docmesh/pkg/lib/log"
	"github.com/dep2p/go-docmesh/pkg/types"
)

var logger = log.Logger("core/offline")

// Queue 离线编辑队列
type Queue struct {
	port  port.Port
	clock clock.Clock

	entries []types.PendingEdit
	seq     uint64
}

// New 创建队列
func New(p port.Port, clk clock.Clock) *Queue {
	if clk == nil {
		clk = clock.New()
	}
	return &Queue{port: p, clock: clk}
}

// Load 从持久化存储恢复队列
func (q *Queue) Load() error {
	stored, err := q.port.GetAll(port.NamespaceChanges)
	if err != nil {
		return fmt.Errorf("load offline queue: %w", err)
	}

	entries := make([]types.PendingEdit, 0, len(stored))
	var maxSeq uint64
	for _, e := range stored {
		var edit types.PendingEdit
		if err := json.Unmarshal(e.Value, &edit); err != nil {
			logger.Warn("跳过损坏的离线条目", "key", e.Key, "error", err)
			continue
		}
		entries = append(entries, edit)

		var ts int64
		var seq uint64
		if _, err := fmt.Sscanf(e.Key, "%d-%d", &ts, &seq); err == nil && seq >= maxSeq {
			maxSeq = seq + 1
		}
	}
	sortByTimestamp(entries)

	q.entries = entries
	q.seq = maxSeq
	if len(entries) > 0 {
		logger.Info("已恢复离线队列", "entries", len(entries))
	}
	return nil
}

// Append 追加一条离线编辑
//
// Timestamp 为 0 时使用当前时钟。持久化失败时条目仍保留在内存中，
// 并返回错误供调用方记录。
func (q *Queue) Append(edit types.PendingEdit) error {
	if edit.DocumentID.IsEmpty() {
		return types.ErrEmptyDocumentID
	}
	if edit.Timestamp == 0 {
		edit.Timestamp = q.clock.Now().UnixMilli()
	}

	key := entryKey(edit.Timestamp, q.seq)
	q.seq++
	q.entries = append(q.entries, edit)
	sortByTimestamp(q.entries)

	data, err := json.Marshal(edit)
	if err != nil {
		return fmt.Errorf("encode offline edit: %w", err)
	}
	if err := q.port.Put(port.NamespaceChanges, key, data); err != nil {
		return fmt.Errorf("persist offline edit: %w", err)
	}
	return nil
}

// Pending 按时间戳升序返回待回放条目的副本
func (q *Queue) Pending() []types.PendingEdit {
	out := make([]types.PendingEdit, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len 返回待回放条目数
func (q *Queue) Len() int {
	return len(q.entries)
}

// Replay 按时间戳升序逐条回放，全部成功后清空队列
//
// apply 返回错误时立即停止，队列保持不变。
// 返回成功应用的条目数。
func (q *Queue) Replay(apply func(types.PendingEdit) error) (int, error) {
	batch := q.Pending()
	for i, edit := range batch {
		if err := apply(edit); err != nil {
			return i, fmt.Errorf("replay entry %d (%s): %w", i, edit.DocumentID, err)
		}
	}
	if err := q.Clear(); err != nil {
		return len(batch), err
	}
	return len(batch), nil
}

// Clear 清空队列；持久化清空失败时内存中的队列保留
func (q *Queue) Clear() error {
	if err := q.port.Clear(port.NamespaceChanges); err != nil {
		return fmt.Errorf("clear offline queue: %w", err)
	}
	q.entries = nil
	return nil
}

// entryKey 零填充保证键的字节序即时间序
func entryKey(ts int64, seq uint64) string {
	return fmt.Sprintf("%020d-%010d", ts, seq)
}

func sortByTimestamp(entries []types.PendingEdit) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp < entries[j].Timestamp
	})
}
