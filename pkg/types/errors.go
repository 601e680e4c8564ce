package types

import "errors"

var (
	// ErrEmptyPeerID 空节点 ID
	ErrEmptyPeerID = errors.New("empty peer ID")

	// ErrEmptyDocumentID 空文档 ID
	ErrEmptyDocumentID = errors.New("empty document ID")

	// ErrDuplicateDocument 快照中存在重复文档 ID
	ErrDuplicateDocument = errors.New("duplicate document ID")
)
