package docmesh

import (
	"github.com/dep2p/go-docmesh/internal/core/metrics"
	"github.com/dep2p/go-docmesh/internal/core/replication"
	"github.com/dep2p/go-docmesh/internal/core/session"
)

// ════════════════════════════════════════════════════════════════════════════
//                              版本信息
// ════════════════════════════════════════════════════════════════════════════

// Version 当前版本
const Version = "v0.1.0"

// BuildInfo 构建信息（通过 ldflags 注入）
var (
	// GitCommit Git 提交哈希
	GitCommit string

	// BuildDate 构建日期
	BuildDate string
)

// VersionInfo 返回完整版本信息字符串
func VersionInfo() string {
	info := "docmesh " + Version
	if GitCommit != "" {
		info += " (" + GitCommit[:min(8, len(GitCommit))] + ")"
	}
	if BuildDate != "" {
		info += " built " + BuildDate
	}
	return info
}

// ════════════════════════════════════════════════════════════════════════════
//                              类型别名
// ════════════════════════════════════════════════════════════════════════════

// Event 节点事件
type Event = replication.Event

// EventType 事件类型
type EventType = replication.EventType

// 事件类型
const (
	EventDocumentsChanged = replication.EventDocumentsChanged
	EventPeerOpened       = replication.EventPeerOpened
	EventPeerClosed       = replication.EventPeerClosed
	EventConnectivity     = replication.EventConnectivity
	EventReplayed         = replication.EventReplayed
)

// SessionInfo 会话快照
type SessionInfo = session.Info

// Stats 指标统计
type Stats = metrics.Stats
