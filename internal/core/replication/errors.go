package replication

import "errors"

// 复制引擎相关错误
var (
	// ErrClosed 引擎已关闭
	ErrClosed = errors.New("replication engine closed")

	// ErrNotStarted 引擎尚未启动
	ErrNotStarted = errors.New("replication engine not started")

	// ErrDocumentNotFound 文档不存在
	ErrDocumentNotFound = errors.New("document not found")

	// ErrLastDocument 不允许在本地删除最后一个文档
	ErrLastDocument = errors.New("cannot delete the last document")

	// ErrSelfConnect 不能与自己建立会话
	ErrSelfConnect = errors.New("cannot connect to self")

	// ErrPeerNotFound 对端没有会话
	ErrPeerNotFound = errors.New("peer not found")
)
