package wire

import (
	"encoding/json"
	"fmt"

	"github.com/dep2p/go-docmesh/pkg/types"
)

// Kind 消息类型标签
type Kind string

// 复制消息类型
const (
	KindInit    Kind = "init"
	KindContent Kind = "content"
	KindDelete  Kind = "delete"
	KindPing    Kind = "ping"
	KindPong    Kind = "pong"
)

// MaxMessageSize 单条消息的最大字节数
const MaxMessageSize = 16 << 20

// ============================================================================
//                              Message 变体
// ============================================================================

// Message 复制消息（封闭变体）
type Message interface {
	Kind() Kind
	Accept(h Handler)
}

// Handler 复制消息处理器
type Handler interface {
	HandleInit(Init)
	HandleContent(Content)
	HandleDelete(Delete)
	HandlePing(Ping)
	HandlePong(Pong)
}

// Init 会话建立时发送的完整快照
type Init struct {
	Documents  []types.Document `json:"documents"`
	LastUpdate int64            `json:"lastUpdate"`
}

// NewInit 从快照构造 init 消息
func NewInit(s types.Snapshot) Init {
	return Init{Documents: s.Clone().Documents, LastUpdate: s.LastUpdate}
}

// Snapshot 转为快照
func (m Init) Snapshot() types.Snapshot {
	return types.Snapshot{Documents: m.Documents, LastUpdate: m.LastUpdate}.Clone()
}

// Content 单个文档的内容更新
type Content struct {
	DocumentID types.DocumentID `json:"fileId"`
	Content    string           `json:"content"`
	Version    uint64           `json:"version"`
}

// Delete 删除文档，无版本检查
type Delete struct {
	DocumentID types.DocumentID `json:"fileId"`
}

// Ping 存活探测
type Ping struct {
	Nonce uint64 `json:"nonce"`
}

// Pong 存活响应，回显 Nonce
type Pong struct {
	Nonce uint64 `json:"nonce"`
}

func (Init) Kind() Kind    { return KindInit }
func (Content) Kind() Kind { return KindContent }
func (Delete) Kind() Kind  { return KindDelete }
func (Ping) Kind() Kind    { return KindPing }
func (Pong) Kind() Kind    { return KindPong }

func (m Init) Accept(h Handler)    { h.HandleInit(m) }
func (m Content) Accept(h Handler) { h.HandleContent(m) }
func (m Delete) Accept(h Handler)  { h.HandleDelete(m) }
func (m Ping) Accept(h Handler)    { h.HandlePing(m) }
func (m Pong) Accept(h Handler)    { h.HandlePong(m) }

// ============================================================================
//                              JSON 编码
// ============================================================================

// MarshalJSON 附加 type 字段，documents 永不为 null
func (m Init) MarshalJSON() ([]byte, error) {
	type alias Init
	if m.Documents == nil {
		m.Documents = []types.Document{}
	}
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindInit, alias(m)})
}

// MarshalJSON 附加 type 字段
func (m Content) MarshalJSON() ([]byte, error) {
	type alias Content
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindContent, alias(m)})
}

// MarshalJSON 附加 type 字段
func (m Delete) MarshalJSON() ([]byte, error) {
	type alias Delete
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindDelete, alias(m)})
}

// MarshalJSON 附加 type 字段
func (m Ping) MarshalJSON() ([]byte, error) {
	type alias Ping
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindPing, alias(m)})
}

// MarshalJSON 附加 type 字段
func (m Pong) MarshalJSON() ([]byte, error) {
	type alias Pong
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindPong, alias(m)})
}

// Encode 编码复制消息
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, ErrMalformed
	}
	return json.Marshal(m)
}

// Decode 解码复制消息
func Decode(data []byte) (Message, error) {
	kind, err := peekKind(data)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindInit:
		var m Init
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if m.Documents == nil {
			m.Documents = []types.Document{}
		}
		if err := m.Snapshot().Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return m, nil
	case KindContent:
		var m Content
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if m.DocumentID.IsEmpty() {
			return nil, fmt.Errorf("%w: content without fileId", ErrMalformed)
		}
		return m, nil
	case KindDelete:
		var m Delete
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if m.DocumentID.IsEmpty() {
			return nil, fmt.Errorf("%w: delete without fileId", ErrMalformed)
		}
		return m, nil
	case KindPing:
		var m Ping
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case KindPong:
		var m Pong
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

func peekKind(data []byte) (Kind, error) {
	if len(data) > MaxMessageSize {
		return "", ErrTooLarge
	}
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if head.Type == "" {
		return "", fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return head.Type, nil
}

func unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
