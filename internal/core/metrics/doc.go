// Package metrics 提供复制与存储的运行指标
//
// Collector 同时实现 replication.Observer 与 storage.FailureHook，
// 把引擎回调转成 Prometheus 指标，并维护一份可直接读取的统计快照。
//
// # 快速开始
//
//	c := metrics.NewCollector(prometheus.NewRegistry(), clock.New())
//	engine, _ := replication.New(cfg, port, clk, c)
//
//	stats := c.Stats()
//	fmt.Printf("in: %d (%.2f/s), out: %d\n", stats.MessagesIn, stats.RateIn, stats.MessagesOut)
//
// # 指标
//
//	docmesh_messages_received_total{kind,result}
//	docmesh_messages_sent_total{kind}
//	docmesh_send_failures_total{kind}
//	docmesh_open_sessions
//	docmesh_pending_edits
//	docmesh_replays_total{result}
//	docmesh_replayed_edits_total
//	docmesh_rtt_seconds
//	docmesh_storage_failures_total{backend}
//	docmesh_messages_in_per_second
//	docmesh_messages_out_per_second
//
// 配置了 Metrics.ListenAddr 时，Server 在 /metrics 暴露这些指标。
package metrics
