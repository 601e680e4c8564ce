package docmesh

import (
	"errors"

	"github.com/dep2p/go-docmesh/internal/core/replication"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 节点生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotStarted 节点未启动
	ErrNotStarted = errors.New("node not started")

	// ErrAlreadyStarted 节点已启动
	ErrAlreadyStarted = errors.New("node already started")

	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("node closed")

	// ────────────────────────────────────────────────────────────────────────
	// 文档与会话错误（与引擎错误是同一个值，可直接 errors.Is）
	// ────────────────────────────────────────────────────────────────────────

	// ErrDocumentNotFound 文档不存在
	ErrDocumentNotFound = replication.ErrDocumentNotFound

	// ErrLastDocument 不允许删除最后一个文档
	ErrLastDocument = replication.ErrLastDocument

	// ErrPeerNotFound 没有与该节点的会话
	ErrPeerNotFound = replication.ErrPeerNotFound

	// ErrSelfConnect 不能与自己建立会话
	ErrSelfConnect = replication.ErrSelfConnect

	// ErrSignalingDisabled 未配置 rendezvous，无法按 ID 连接
	ErrSignalingDisabled = errors.New("signaling disabled")
)
