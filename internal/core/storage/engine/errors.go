package engine

import "errors"

var (
	// ErrNotFound 键不存在
	ErrNotFound = errors.New("storage: key not found")

	// ErrEmptyKey 空键
	ErrEmptyKey = errors.New("storage: empty key")

	// ErrClosed 引擎已关闭
	ErrClosed = errors.New("storage: engine closed")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("storage: invalid configuration")

	// ErrCorrupted 存储的值无法解码
	ErrCorrupted = errors.New("storage: data corrupted")

	// ErrTooLarge 单个事务放不下要清除的键
	ErrTooLarge = errors.New("storage: prefix too large for one transaction")

	// ErrStopScan 由 Scan 回调返回以提前结束遍历
	ErrStopScan = errors.New("storage: stop scan")
)

// IsNotFound 检查是否为 key not found 错误
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
