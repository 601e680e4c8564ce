// Package main 提供 docmesh 命令行入口
//
// 启动一个节点，从标准输入读取编辑命令：
//
//	docmesh -signal ws://localhost:7400/ws -data-dir ./alice
//	> new notes
//	> edit 2 hello world
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dep2p/go-docmesh"
	"github.com/dep2p/go-docmesh/config"
	"github.com/dep2p/go-docmesh/pkg/lib/log"
)

var logger = log.Logger("docmesh/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数覆盖配置文件，配置文件覆盖环境变量与默认值。
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	// ─────────────────────────────────────────────────────────────────────
	// 节点参数
	// ─────────────────────────────────────────────────────────────────────
	configFile = flag.String("config", "", "配置文件路径")
	dataDir    = flag.String("data-dir", "", "数据目录（默认: ./data）")
	peerID     = flag.String("peer-id", "", "节点 ID（默认随机生成）")
	signalURL  = flag.String("signal", "", "rendezvous 地址，例如 ws://host:7400/ws")
	offline    = flag.Bool("offline", false, "以离线状态启动")
	memory     = flag.Bool("memory", false, "只在内存中保存文档")

	// ─────────────────────────────────────────────────────────────────────
	// 观察
	// ─────────────────────────────────────────────────────────────────────
	metricsAddr = flag.String("metrics", "", "指标监听地址，例如 :9100")
	logLevel    = flag.String("log", "warn", "日志级别 (debug/info/warn/error)")

	// ─────────────────────────────────────────────────────────────────────
	// 信息显示
	// ─────────────────────────────────────────────────────────────────────
	showVersion = flag.Bool("version", false, "显示版本信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(docmesh.VersionInfo())
		return nil
	}

	level, err := log.ParseLevel(*logLevel)
	if err != nil {
		return err
	}
	log.SetOutputWithLevel(os.Stderr, level)

	opts, err := buildOptions()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node, err := docmesh.New(opts...)
	if err != nil {
		return fmt.Errorf("创建节点失败: %w", err)
	}
	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("启动失败: %w", err)
	}
	defer func() { _ = node.Close() }()

	logger.Info("节点已启动", "version", docmesh.Version, "id", node.ID())
	fmt.Printf("📦 %s\n", docmesh.VersionInfo())
	fmt.Printf("节点 ID: %s\n", node.ID())
	fmt.Println("输入 help 查看命令，Ctrl+C 或 quit 退出")

	sh := newShell(node, os.Stdout)
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	fmt.Print("> ")
	for {
		select {
		case <-signals:
			fmt.Println("\n正在关闭节点...")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := sh.exec(ctx, line)
			if err != nil {
				fmt.Printf("错误: %v\n", err)
			}
			if quit {
				fmt.Println("正在关闭节点...")
				return nil
			}
			fmt.Print("> ")
		}
	}
}

// buildOptions 构建选项
//
// 配置优先级（从高到低）：
//  1. 命令行参数
//  2. 配置文件
//  3. 环境变量（DOCMESH_* 前缀）与默认值
func buildOptions() ([]docmesh.Option, error) {
	var opts []docmesh.Option

	if *configFile != "" {
		cfg, err := config.LoadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		opts = append(opts, docmesh.WithConfig(cfg))
	}

	if isFlagSet("data-dir") && *dataDir != "" {
		opts = append(opts, docmesh.WithDataDir(*dataDir))
	}
	if isFlagSet("peer-id") {
		opts = append(opts, docmesh.WithPeerID(*peerID))
	}
	if isFlagSet("signal") {
		opts = append(opts, docmesh.WithSignaling(*signalURL))
	}
	if *memory {
		opts = append(opts, docmesh.WithMemoryStorage())
	}
	if *offline {
		opts = append(opts, docmesh.WithStartOffline())
	}
	if *metricsAddr != "" {
		opts = append(opts, docmesh.WithMetricsAddr(*metricsAddr))
	}
	return opts, nil
}

// isFlagSet 检查命令行参数是否被显式设置
func isFlagSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
