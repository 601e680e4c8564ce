// Package engine 定义持久化引擎的字节级接口
//
// 文档快照与离线队列只需要点读写、按前缀有序扫描和整段清除，
// 引擎接口只暴露这几种能力，命名空间由上层 kv 包拼接前缀完成。
//
// 所有实现必须线程安全。
package engine

// Engine 字节级持久化引擎
type Engine interface {
	// Get 读取值，不存在时返回 ErrNotFound
	Get(key []byte) ([]byte, error)

	// Put 写入值（整体替换）
	Put(key, value []byte) error

	// Delete 删除键，键不存在不是错误
	Delete(key []byte) error

	// Scan 按键的字节序遍历前缀下的所有条目
	//
	// 回调收到的 key/value 是副本；回调返回 ErrStopScan 时提前结束且 Scan 返回 nil，
	// 返回其他错误时原样传出。
	Scan(prefix []byte, fn func(key, value []byte) error) error

	// DeletePrefix 在单个事务内删除前缀下的所有键
	DeletePrefix(prefix []byte) error

	// Start 启动后台任务（值日志 GC 等）
	Start() error

	// Close 关闭引擎，多次调用是安全的
	Close() error
}
