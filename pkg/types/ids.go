package types

import (
	"strings"

	"github.com/google/uuid"
)

// ============================================================================
//                              PeerID - 节点标识
// ============================================================================

// PeerID 节点标识
//
// 在 rendezvous 上通告、在 roster 中出现、作为会话表索引。
// 对复制引擎来说是不透明字符串。
type PeerID string

// EmptyPeerID 空节点ID
const EmptyPeerID PeerID = ""

// NewPeerID 生成随机节点 ID
func NewPeerID() PeerID {
	return PeerID(uuid.NewString())
}

// String 返回字符串表示
func (id PeerID) String() string {
	return string(id)
}

// ShortString 返回前 8 个字符，用于日志
func (id PeerID) ShortString() string {
	s := string(id)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// IsEmpty 检查是否为空
func (id PeerID) IsEmpty() bool {
	return strings.TrimSpace(string(id)) == ""
}

// Less 按字典序比较
//
// 双方同时发现彼此时，只有较小的一方发起 offer。
func (id PeerID) Less(other PeerID) bool {
	return id < other
}

// Validate 校验节点 ID
func (id PeerID) Validate() error {
	if id.IsEmpty() {
		return ErrEmptyPeerID
	}
	return nil
}

// ============================================================================
//                              DocumentID - 文档标识
// ============================================================================

// DocumentID 文档标识，创建时分配，永不复用
type DocumentID string

// NewDocumentID 生成随机文档 ID
func NewDocumentID() DocumentID {
	return DocumentID(uuid.NewString())
}

// String 返回字符串表示
func (id DocumentID) String() string {
	return string(id)
}

// IsEmpty 检查是否为空
func (id DocumentID) IsEmpty() bool {
	return id == ""
}
