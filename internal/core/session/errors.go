package session

import "errors"

// 会话注册表相关错误
var (
	// ErrSessionExists 对端已有未关闭的会话
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionNotFound 会话不存在
	ErrSessionNotFound = errors.New("session not found")

	// ErrStaleSession 事件属于已被替换的会话
	ErrStaleSession = errors.New("stale session")

	// ErrInvalidTransition 非法状态迁移
	ErrInvalidTransition = errors.New("invalid session state transition")

	// ErrNotOpen 会话尚未就绪
	ErrNotOpen = errors.New("session not open")

	// ErrOutboxFull 发送队列已满
	ErrOutboxFull = errors.New("session outbox full")

	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("session closed")

	// ErrNilChannel 通道为空
	ErrNilChannel = errors.New("nil channel")
)
