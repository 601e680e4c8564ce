package signaling

import "errors"

// 预定义错误
var (
	// ErrNotConnected 未连接到 rendezvous
	ErrNotConnected = errors.New("signaling: not connected")

	// ErrPointClosed rendezvous 服务已关闭
	ErrPointClosed = errors.New("signaling: point closed")

	// ErrAlreadyStarted 已启动
	ErrAlreadyStarted = errors.New("signaling: already started")

	// ErrSelfDial 不能向自己发起协商
	ErrSelfDial = errors.New("signaling: cannot dial self")
)
