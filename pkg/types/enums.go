package types

// ============================================================================
//                              SessionState - 会话状态
// ============================================================================

// SessionState 对等会话状态
//
// Connecting → Open → Closed（终态）。
type SessionState int

const (
	// SessionConnecting 正在建立
	SessionConnecting SessionState = iota
	// SessionOpen 通道已就绪
	SessionOpen
	// SessionClosed 已关闭
	SessionClosed
)

// String 返回状态的字符串表示
func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionOpen:
		return "open"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CanTransition 检查状态迁移是否合法
func (s SessionState) CanTransition(to SessionState) bool {
	switch s {
	case SessionConnecting:
		return to == SessionOpen || to == SessionClosed
	case SessionOpen:
		return to == SessionClosed
	default:
		return false
	}
}

// ============================================================================
//                              Direction - 会话方向
// ============================================================================

// Direction 会话方向
type Direction int

const (
	// DirUnknown 未知方向
	DirUnknown Direction = iota
	// DirInbound 对方发起（收到 offer）
	DirInbound
	// DirOutbound 本地发起（发出 offer）
	DirOutbound
)

// String 返回方向的字符串表示
func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              Connectivity - 联网状态
// ============================================================================

// Connectivity 联网状态
type Connectivity int

const (
	// Offline 离线
	Offline Connectivity = iota
	// Online 在线
	Online
)

// String 返回联网状态的字符串表示
func (c Connectivity) String() string {
	if c == Online {
		return "online"
	}
	return "offline"
}
