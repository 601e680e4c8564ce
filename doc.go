// Package docmesh 提供无中心服务器的多文档实时协作节点
//
// 每个节点持有一组文本文档的完整副本，通过点对点会话把本地修改广播给所有直接相连的对端。
// 冲突按文档版本号解决（更高的版本胜出），整个文档集合按 lastUpdate 时间戳整体采纳。
// 离线期间的修改进入本地队列，联网后按序重放。
//
// # 快速开始
//
//	node, err := docmesh.New(
//	    docmesh.WithDataDir("./data"),
//	    docmesh.WithSignaling("ws://127.0.0.1:7400/ws"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := node.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Close()
//
//	doc, _ := node.CreateDocument(ctx, "notes")
//	node.UpdateContent(ctx, doc.ID, "hello")
//
// # 组件
//
//	┌──────────────────────────────────────────────────────────────┐
//	│  Node（门面）                                                 │
//	├──────────────────────────────────────────────────────────────┤
//	│  replication.Engine   单 goroutine actor：文档、队列、会话     │
//	│  ├── docstore         文档集合与 lastUpdate                   │
//	│  ├── offline          离线修改队列                            │
//	│  └── session          对端会话注册表与发送队列                │
//	├──────────────────────────────────────────────────────────────┤
//	│  netmon    联网状态   liveness  心跳    metrics  Prometheus   │
//	│  signaling rendezvous 客户端     transport/webrtc 数据通道     │
//	├──────────────────────────────────────────────────────────────┤
//	│  storage   badger 主存储 + bbolt 回退 + 内存                  │
//	└──────────────────────────────────────────────────────────────┘
//
// 会话只在直接相连的节点之间复制，收到的更新不会被转发。
package docmesh
