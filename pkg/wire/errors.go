package wire

import "errors"

var (
	// ErrUnknownKind 未知的消息类型
	ErrUnknownKind = errors.New("wire: unknown message kind")

	// ErrMalformed 消息格式错误
	ErrMalformed = errors.New("wire: malformed message")

	// ErrTooLarge 消息超过大小限制
	ErrTooLarge = errors.New("wire: message too large")
)
