// zex-watch 终端界面实时查看执行回报
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zex-finance/gozex/internal/bootstrap"
	"github.com/zex-finance/gozex/internal/watch"
	"github.com/zex-finance/gozex/pkg/logger"
	"github.com/zex-finance/gozex/zex/types"
	"github.com/zex-finance/gozex/zex/websocket"
)

func main() {
	configPath := flag.String("config", os.Getenv("ZEX_CONFIG"), "config file (yaml/json)")
	logFile := flag.String("log", "logs/zex-watch.log", "log file")
	flag.Parse()

	if err := run(*configPath, *logFile); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath, logFile string) error {
	cfg, err := bootstrap.Load(configPath)
	if err != nil {
		return err
	}
	// 界面占用终端，日志只写文件
	cfg.Log.Quiet = true
	if cfg.Log.OutputFile == "" {
		cfg.Log.OutputFile = logFile
	}
	if err := logger.Init(cfg.Log); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := bootstrap.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	userID, _ := c.UserID()

	reports := make(chan types.ExecutionReport, 256)
	socket := websocket.NewSocketManager(c, bootstrap.SocketOptions(cfg)...).
		ExecutionReportSocket(websocket.ExecutionReportChannel(reports))
	if err := socket.Start(ctx); err != nil {
		return err
	}
	defer socket.Stop()

	return watch.Run(ctx, reports, watch.Options{
		Network: c.Network().String(),
		UserID:  userID,
		Status:  socket.LastError,
	})
}
