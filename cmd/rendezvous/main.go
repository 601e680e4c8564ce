// Package main 提供独立的 rendezvous 信令服务
//
// rendezvous 只负责在节点之间转发 WebRTC 握手消息并广播在线名单，
// 不接触文档内容。
//
// 使用方法:
//
//	go run ./cmd/rendezvous -listen :7400 -path /ws
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-docmesh"
	"github.com/dep2p/go-docmesh/config"
	"github.com/dep2p/go-docmesh/internal/core/signaling"
	"github.com/dep2p/go-docmesh/pkg/lib/log"
)

var logger = log.Logger("docmesh/rendezvous")

const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Printf("❌ 错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	defaults := config.DefaultRendezvousConfig()
	configFile := flag.String("config", "", "配置文件路径（使用其中的 rendezvous 段）")
	listen := flag.String("listen", defaults.ListenAddr, "监听地址")
	path := flag.String("path", defaults.Path, "websocket 路径")
	rate := flag.Float64("rate", defaults.MessagesPerSecond, "每个连接每秒消息数")
	burst := flag.Int("burst", defaults.Burst, "每个连接突发上限")
	statsEvery := flag.Duration("stats", time.Minute, "统计输出间隔（0 关闭）")
	logLevel := flag.String("log", "info", "日志级别 (debug/info/warn/error)")
	flag.Parse()

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		return err
	}
	log.SetOutputWithLevel(os.Stderr, level)

	cfg := config.NewConfig()
	if *configFile != "" {
		if cfg, err = config.LoadFile(*configFile); err != nil {
			return fmt.Errorf("加载配置文件失败: %w", err)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Rendezvous.ListenAddr = *listen
		case "path":
			cfg.Rendezvous.Path = *path
		case "rate":
			cfg.Rendezvous.MessagesPerSecond = *rate
		case "burst":
			cfg.Rendezvous.Burst = *burst
		}
	})
	if err := cfg.Rendezvous.Validate(); err != nil {
		return err
	}

	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║            docmesh Rendezvous Server                 ║")
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println()

	point := signaling.NewPoint(signaling.PointConfigFromUnified(cfg))
	mux := http.NewServeMux()
	mux.Handle(cfg.Rendezvous.Path, point)
	srv := &http.Server{
		Addr:              cfg.Rendezvous.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("  版本:   %s\n", docmesh.VersionInfo())
	fmt.Printf("  地址:   ws://%s%s\n", cfg.Rendezvous.ListenAddr, cfg.Rendezvous.Path)
	fmt.Printf("  限速:   %.0f/s (burst %d)\n", cfg.Rendezvous.MessagesPerSecond, cfg.Rendezvous.Burst)
	fmt.Println()
	fmt.Println("按 Ctrl+C 退出")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("监听失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		reportStats(ctx, point, *statsEvery)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		fmt.Println("\n正在关闭...")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// websocket 连接已被劫持，Shutdown 不会等待它们，需要单独关闭
		return multierr.Append(point.Close(), srv.Shutdown(sctx))
	})
	return g.Wait()
}

// reportStats 定期输出转发统计
func reportStats(ctx context.Context, point *signaling.Point, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := point.Stats()
			logger.Info("rendezvous 统计",
				"connections", st.Connections,
				"members", st.Members,
				"routed", st.Routed,
				"dropped", st.Dropped,
				"limited", st.Limited)
		}
	}
}
