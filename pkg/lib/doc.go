// Package lib 包含基础设施工具库
//
// 本目录包含与架构组件无关的通用工具库：
//
//   - log: 基于 log/slog 的分组件日志
//
// pkg/ 下其余目录：
//
//   - types/: 公共类型定义（文档、节点 ID、枚举）
//   - wire/: 复制消息与信令消息的线上格式
//
// # 使用示例
//
//	import "github.com/dep2p/go-docmesh/pkg/lib/log"
//
//	var logger = log.Logger("docmesh/example")
package lib
