package metrics

import "time"

// Stats 统计快照
type Stats struct {
	MessagesIn      int64         // 累计入站消息
	MessagesOut     int64         // 累计出站消息（按会话计）
	Invalid         int64         // 无法解码的入站消息
	SendFailures    int64         // 投递失败
	OpenSessions    int           // 当前 Open 会话数
	PendingEdits    int           // 当前离线队列长度
	Replays         int64         // 离线回放次数
	StorageFailures int64         // 存储写入失败
	LastRTT         time.Duration // 最近一次 RTT
	RateIn          float64       // 入站速率（条/秒）
	RateOut         float64       // 出站速率（条/秒）
}
