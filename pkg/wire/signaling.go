package wire

import (
	"encoding/json"
	"fmt"

	"github.com/dep2p/go-docmesh/pkg/types"
)

// 信令消息类型
const (
	KindJoin      Kind = "join"
	KindUsers     Kind = "users"
	KindOffer     Kind = "offer"
	KindAnswer    Kind = "answer"
	KindCandidate Kind = "candidate"
)

// ============================================================================
//                              Signal 变体
// ============================================================================

// Signal 信令消息（封闭变体）
type Signal interface {
	Kind() Kind
	Accept(h SignalHandler)
}

// SignalHandler 信令消息处理器
type SignalHandler interface {
	HandleJoin(Join)
	HandleUsers(Users)
	HandleOffer(Offer)
	HandleAnswer(Answer)
	HandleCandidate(Candidate)
}

// Join 向 rendezvous 通告自身
type Join struct {
	ID types.PeerID `json:"id"`
}

// Users 当前在线名单（包含接收方自己）
type Users struct {
	Users []types.PeerID `json:"users"`
}

// Route 协商消息的路由字段
type Route struct {
	From types.PeerID `json:"from,omitempty"`
	To   types.PeerID `json:"to"`
}

// Offer 连接协商 offer，负载对复制层不透明
type Offer struct {
	Offer json.RawMessage `json:"offer"`
	Route
}

// Answer 连接协商 answer
type Answer struct {
	Answer json.RawMessage `json:"answer"`
	Route
}

// Candidate ICE 候选
type Candidate struct {
	Candidate json.RawMessage `json:"candidate"`
	Route
}

func (Join) Kind() Kind      { return KindJoin }
func (Users) Kind() Kind     { return KindUsers }
func (Offer) Kind() Kind     { return KindOffer }
func (Answer) Kind() Kind    { return KindAnswer }
func (Candidate) Kind() Kind { return KindCandidate }

func (m Join) Accept(h SignalHandler)      { h.HandleJoin(m) }
func (m Users) Accept(h SignalHandler)     { h.HandleUsers(m) }
func (m Offer) Accept(h SignalHandler)     { h.HandleOffer(m) }
func (m Answer) Accept(h SignalHandler)    { h.HandleAnswer(m) }
func (m Candidate) Accept(h SignalHandler) { h.HandleCandidate(m) }

// MarshalJSON 附加 type 字段
func (m Join) MarshalJSON() ([]byte, error) {
	type alias Join
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindJoin, alias(m)})
}

// MarshalJSON 附加 type 字段，users 永不为 null
func (m Users) MarshalJSON() ([]byte, error) {
	type alias Users
	if m.Users == nil {
		m.Users = []types.PeerID{}
	}
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindUsers, alias(m)})
}

// MarshalJSON 附加 type 字段
func (m Offer) MarshalJSON() ([]byte, error) {
	type alias Offer
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindOffer, alias(m)})
}

// MarshalJSON 附加 type 字段
func (m Answer) MarshalJSON() ([]byte, error) {
	type alias Answer
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindAnswer, alias(m)})
}

// MarshalJSON 附加 type 字段
func (m Candidate) MarshalJSON() ([]byte, error) {
	type alias Candidate
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindCandidate, alias(m)})
}

// RouteOf 返回协商消息的路由；join/users 返回 false
func RouteOf(s Signal) (Route, bool) {
	switch m := s.(type) {
	case Offer:
		return m.Route, true
	case Answer:
		return m.Route, true
	case Candidate:
		return m.Route, true
	default:
		return Route{}, false
	}
}

// WithFrom 返回 from 字段被替换的副本
//
// rendezvous 用它把发送方的 join ID 盖到转发消息上。
func WithFrom(s Signal, from types.PeerID) Signal {
	switch m := s.(type) {
	case Offer:
		m.From = from
		return m
	case Answer:
		m.From = from
		return m
	case Candidate:
		m.From = from
		return m
	default:
		return s
	}
}

// EncodeSignal 编码信令消息
func EncodeSignal(s Signal) ([]byte, error) {
	if s == nil {
		return nil, ErrMalformed
	}
	return json.Marshal(s)
}

// DecodeSignal 解码信令消息
func DecodeSignal(data []byte) (Signal, error) {
	kind, err := peekKind(data)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindJoin:
		var m Join
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		if m.ID.IsEmpty() {
			return nil, fmt.Errorf("%w: join without id", ErrMalformed)
		}
		return m, nil
	case KindUsers:
		var m Users
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case KindOffer:
		var m Offer
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case KindAnswer:
		var m Answer
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	case KindCandidate:
		var m Candidate
		if err := unmarshal(data, &m); err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
