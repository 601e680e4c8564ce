// Package storage 提供 docmesh 的持久化服务
//
// # 架构
//
//	┌─────────────────────────────────────────────────────────────┐
//	│              docstore（快照） | offline（离线队列）          │
//	└─────────────────────────────────────────────────────────────┘
//	                              │ port.Port
//	                              ▼
//	┌─────────────────────────────────────────────────────────────┐
//	│                     Fallback 适配器                          │
//	│       写：主存储失败时写回退存储；读：回退存储优先            │
//	└─────────────────────────────────────────────────────────────┘
//	              │                                 │
//	              ▼                                 ▼
//	┌───────────────────────────┐     ┌───────────────────────────┐
//	│ EnginePort (kv + badger)  │     │ bolt.Store (bbolt)        │
//	└───────────────────────────┘     └───────────────────────────┘
//
// # 键空间设计
//
//	前缀            | 命名空间   | 说明
//	----------------|------------|------------------
//	n/documents/    | documents  | 文档集合快照
//	n/changes/      | changes    | 离线编辑队列
//
// # 使用示例
//
//	app := fx.New(
//	    fx.Supply(cfg),
//	    storage.Module(),
//	)
//
// 持久化失败从不阻塞内存中的修改；调用方记录日志后继续。
package storage
