// zexd 本地 REST 网关：注册客户端后通过 HTTP 暴露行情、下单与撤单
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zex-finance/gozex/internal/bootstrap"
	"github.com/zex-finance/gozex/internal/gateway"
	"github.com/zex-finance/gozex/internal/journal"
	"github.com/zex-finance/gozex/internal/metrics"
	"github.com/zex-finance/gozex/pkg/config"
	"github.com/zex-finance/gozex/pkg/logger"
	"github.com/zex-finance/gozex/pkg/shutdown"
	"github.com/zex-finance/gozex/pkg/syncgroup"
	"github.com/zex-finance/gozex/zex/client"
	"github.com/zex-finance/gozex/zex/types"
	"github.com/zex-finance/gozex/zex/websocket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("ZEX_CONFIG"), "config file (yaml/json)")
	listen := flag.String("listen", "", "HTTP listen address (overrides gateway.listen)")
	noStream := flag.Bool("no-stream", false, "do not subscribe to execution reports")
	debugListen := flag.String("debug-listen", "", "expvar/pprof listen address, e.g. 127.0.0.1:6060")
	flag.Parse()

	cfg, err := bootstrap.Load(*configPath)
	if err != nil {
		logger.Errorf("加载配置失败: %v", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Gateway.Listen = *listen
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if *debugListen != "" {
		if _, err := metrics.StartAsync(ctx, *debugListen); err != nil {
			logger.Errorf("启动调试服务失败: %v", err)
			os.Exit(1)
		}
		logger.Infof("调试服务监听 %s", *debugListen)
	}

	if err := run(ctx, cfg, !*noStream); err != nil {
		logger.Errorf("zexd 退出: %v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, stream bool) error {
	c, err := bootstrap.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	userID, _ := c.UserID()
	logger.Infof("客户端已注册: network=%s user_id=%d", c.Network(), userID)

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}

	gw := gateway.New(c, j, gateway.Config{AuthToken: cfg.Gateway.AuthToken})
	httpSrv := &http.Server{
		Addr:              cfg.Gateway.Listen,
		Handler:           gw.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	sm := shutdown.NewManager()
	sm.OnShutdown("http", func(ctx context.Context) {
		if err := httpSrv.Shutdown(ctx); err != nil {
			logger.Warnf("关闭 HTTP 服务失败: %v", err)
		}
	})

	serveErr := make(chan error, 1)
	group := syncgroup.NewSyncGroup()
	group.Add(func() {
		logger.Infof("网关监听 %s", cfg.Gateway.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	})

	if stream {
		socket := websocket.NewSocketManager(c, bootstrap.SocketOptions(cfg)...).
			ExecutionReportSocket(journalUpdater(c, j))
		if err := socket.Start(ctx); err != nil {
			_ = j.Close()
			return err
		}
		sm.OnShutdown("execution-report-socket", func(context.Context) { socket.Stop() })
	}
	group.Run()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		logger.Errorf("HTTP 服务异常: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = sm.Shutdown(shutdownCtx)
	group.Wait()

	if cerr := j.Close(); cerr != nil {
		logger.Warnf("关闭订单日志失败: %v", cerr)
	}
	return err
}

// journalUpdater 记录执行回报，订单撤销时同步到本地日志
func journalUpdater(c *client.Client, j *journal.Journal) websocket.ExecutionReportCallback {
	return func(ctx context.Context, r types.ExecutionReport) error {
		logger.WithField("symbol", r.Symbol).Infof("执行回报: order=%d nonce=%d side=%s status=%s filled=%s",
			r.OrderID, r.Nonce, r.Side, r.OrderStatusRaw, r.CumulativeQty)
		metrics.ExecutionReports.Add(r.OrderStatusRaw, 1)

		if r.OrderStatus() != types.OrderStatusCanceled || r.Nonce == 0 {
			return nil
		}
		userID, ok := c.UserID()
		if !ok {
			return nil
		}
		if _, err := j.MarkCanceled(ctx, c.Network(), userID, r.Nonce); err != nil {
			// 日志写入失败不应触发重连
			metrics.JournalErrors.Add(1)
			logger.Warnf("更新订单日志失败: nonce=%d: %v", r.Nonce, err)
		}
		return nil
	}
}
