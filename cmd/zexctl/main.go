// zexctl Zex 交易所命令行工具
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

const usage = `用法: zexctl [-config file] <command> [flags]

命令:
  register                 注册公钥并输出 user id
  time | ping              服务端时间 / 连通性
  price -symbol S          最新价格
  ticker -symbol S         24h 行情
  depth -symbol S [-limit N]
  exchange-info -symbol S
  place -base B -quote Q -side BUY|SELL -volume V -price P
  cancel -nonce N[,N...]   按日志中的 nonce 撤单
  orders | trades | assets | transfers
  withdraws -chain C
  withdraw -chain C -token T -amount A -to 0x...
  stream                   打印执行回报
  key import|derive|list|new-mnemonic
  journal export -out file.zst | journal list [-open]
`

func main() {
	configPath := flag.String("config", getenv("ZEX_CONFIG", ""), "config file (yaml/json)")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, args[0], args[1:]); err != nil {
		fatal(err)
	}
}

func run(ctx context.Context, configPath, cmd string, args []string) error {
	app, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer app.Close()

	switch cmd {
	case "register":
		return app.register(ctx)
	case "time":
		return app.serverTime(ctx)
	case "ping":
		return app.ping(ctx)
	case "price":
		return app.price(ctx, args)
	case "ticker":
		return app.ticker(ctx, args)
	case "depth":
		return app.depth(ctx, args)
	case "exchange-info":
		return app.exchangeInfo(ctx, args)
	case "place":
		return app.place(ctx, args)
	case "cancel":
		return app.cancel(ctx, args)
	case "orders", "trades", "assets", "transfers":
		return app.userData(ctx, cmd)
	case "withdraws":
		return app.withdraws(ctx, args)
	case "withdraw":
		return app.withdraw(ctx, args)
	case "stream":
		return app.stream(ctx, args)
	case "key":
		return app.key(args)
	case "journal":
		return app.journalCmd(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireFlag(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New("-" + name + " is required")
	}
	return nil
}
