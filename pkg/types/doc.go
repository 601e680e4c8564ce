// Package types 定义 docmesh 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 docmesh 内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - ids.go       - PeerID, DocumentID
//   - document.go  - Document, Snapshot, PendingEdit
//   - enums.go     - SessionState, Direction, Connectivity
//   - errors.go    - 公共错误定义
//
// # 与 pkg/wire 的区别
//
// pkg/types 定义内存结构，pkg/wire 定义对等节点之间以及
// 与 rendezvous 之间传输的 JSON 消息。
package types
