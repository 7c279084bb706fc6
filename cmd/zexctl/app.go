package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/zex-finance/gozex/internal/bootstrap"
	"github.com/zex-finance/gozex/internal/journal"
	"github.com/zex-finance/gozex/internal/wallet"
	"github.com/zex-finance/gozex/pkg/config"
	"github.com/zex-finance/gozex/pkg/logger"
	"github.com/zex-finance/gozex/zex/client"
	"github.com/zex-finance/gozex/zex/types"
	"github.com/zex-finance/gozex/zex/websocket"
)

type app struct {
	cfg     *config.Config
	client  *client.Client
	journal *journal.Journal
}

func newApp(configPath string) (*app, error) {
	cfg, err := bootstrap.Load(configPath)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg}, nil
}

func (a *app) Close() {
	if a.journal != nil {
		_ = a.journal.Close()
	}
}

// registered 返回已注册的客户端
func (a *app) registered(ctx context.Context) (*client.Client, error) {
	if a.client != nil {
		if _, ok := a.client.UserID(); ok {
			return a.client, nil
		}
		if err := a.client.RegisterUserID(ctx); err != nil {
			return nil, err
		}
		return a.client, nil
	}
	c, err := bootstrap.NewClient(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}

// market 返回不需要注册的客户端
func (a *app) market() (*client.Client, error) {
	if a.client != nil {
		return a.client, nil
	}
	c, err := bootstrap.NewUnregisteredClient(a.cfg)
	if err != nil {
		return nil, err
	}
	a.client = c
	return c, nil
}

func (a *app) openJournal() (*journal.Journal, error) {
	if a.journal != nil {
		return a.journal, nil
	}
	j, err := journal.Open(a.cfg.Journal.Path)
	if err != nil {
		return nil, err
	}
	a.journal = j
	return j, nil
}

func (a *app) register(ctx context.Context) error {
	c, err := a.registered(ctx)
	if err != nil {
		return err
	}
	id, _ := c.UserID()
	return printJSON(map[string]any{
		"user_id":    id,
		"public_key": c.PublicKeyHex(),
		"network":    c.Network().String(),
	})
}

func (a *app) serverTime(ctx context.Context) error {
	c, err := a.market()
	if err != nil {
		return err
	}
	ts, err := c.ServerTime(ctx)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"serverTime": ts})
}

func (a *app) ping(ctx context.Context) error {
	c, err := a.market()
	if err != nil {
		return err
	}
	ok, err := c.Ping(ctx)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"ok": ok})
}

func symbolFlags(name string, args []string, withLimit bool) (string, int, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	symbol := fs.String("symbol", "", "trading pair, e.g. BTCzUSDT")
	limit := fs.Int("limit", 20, "depth levels")
	if err := fs.Parse(args); err != nil {
		return "", 0, err
	}
	if err := requireFlag("symbol", *symbol); err != nil {
		return "", 0, err
	}
	if withLimit && *limit <= 0 {
		return "", 0, errors.New("-limit must be positive")
	}
	return *symbol, *limit, nil
}

func (a *app) price(ctx context.Context, args []string) error {
	symbol, _, err := symbolFlags("price", args, false)
	if err != nil {
		return err
	}
	c, err := a.market()
	if err != nil {
		return err
	}
	p, err := c.Price(ctx, symbol)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"symbol": symbol, "price": p})
}

func (a *app) ticker(ctx context.Context, args []string) error {
	symbol, _, err := symbolFlags("ticker", args, false)
	if err != nil {
		return err
	}
	c, err := a.market()
	if err != nil {
		return err
	}
	out, err := c.Ticker(ctx, symbol)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func (a *app) depth(ctx context.Context, args []string) error {
	symbol, limit, err := symbolFlags("depth", args, true)
	if err != nil {
		return err
	}
	c, err := a.market()
	if err != nil {
		return err
	}
	out, err := c.Depth(ctx, symbol, limit)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func (a *app) exchangeInfo(ctx context.Context, args []string) error {
	symbol, _, err := symbolFlags("exchange-info", args, false)
	if err != nil {
		return err
	}
	c, err := a.market()
	if err != nil {
		return err
	}
	out, err := c.ExchangeInfo(ctx, symbol)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func (a *app) place(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("place", flag.ContinueOnError)
	base := fs.String("base", "", "base token")
	quote := fs.String("quote", "", "quote token")
	side := fs.String("side", "", "BUY or SELL")
	volume := fs.Float64("volume", 0, "order volume")
	price := fs.Float64("price", 0, "order price")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req := types.PlaceOrderRequest{
		BaseToken:  *base,
		QuoteToken: *quote,
		Side:       types.OrderSide(strings.ToUpper(*side)),
		Volume:     *volume,
		Price:      *price,
	}
	if err := req.Validate(); err != nil {
		return err
	}

	c, err := a.registered(ctx)
	if err != nil {
		return err
	}
	j, err := a.openJournal()
	if err != nil {
		return err
	}
	results, err := c.PlaceBatchOrder(ctx, []types.PlaceOrderRequest{req})
	if err != nil {
		return err
	}
	userID, _ := c.UserID()
	if err := j.Record(ctx, c.Network(), userID, results); err != nil {
		logger.Warnf("写入订单日志失败: %v", err)
	}
	out := make([]map[string]any, len(results))
	for i, r := range results {
		out[i] = map[string]any{"nonce": r.Nonce, "symbol": r.Request.Symbol(), "side": r.Request.Side}
	}
	return printJSON(out)
}

func parseNonces(raw string) ([]uint64, error) {
	var out []uint64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseUint(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid nonce %q", part)
		}
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil, errors.New("-nonce is required")
	}
	return out, nil
}

func (a *app) cancel(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ContinueOnError)
	nonceList := fs.String("nonce", "", "comma separated order nonces")
	all := fs.Bool("all", false, "cancel every open order in the journal")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := a.registered(ctx)
	if err != nil {
		return err
	}
	j, err := a.openJournal()
	if err != nil {
		return err
	}
	userID, _ := c.UserID()

	var entries []journal.Entry
	if *all {
		entries, err = j.OpenOrders(ctx, c.Network(), userID)
		if err != nil {
			return err
		}
	} else {
		nonces, err := parseNonces(*nonceList)
		if err != nil {
			return err
		}
		for _, n := range nonces {
			e, err := j.Get(ctx, c.Network(), userID, n)
			if err != nil {
				return fmt.Errorf("nonce %d: %w", n, err)
			}
			entries = append(entries, *e)
		}
	}

	cancels := make([]types.CancelOrderRequest, len(entries))
	nonces := make([]uint64, len(entries))
	for i, e := range entries {
		cancels[i] = e.CancelRequest()
		nonces[i] = e.Nonce
	}
	if err := c.CancelBatchOrder(ctx, cancels); err != nil {
		return err
	}
	n, err := j.MarkCanceled(ctx, c.Network(), userID, nonces...)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{"canceled": n})
}

func (a *app) userData(ctx context.Context, kind string) error {
	c, err := a.registered(ctx)
	if err != nil {
		return err
	}
	var out any
	switch kind {
	case "orders":
		out, err = c.UserOrders(ctx)
	case "trades":
		out, err = c.UserTrades(ctx)
	case "assets":
		out, err = c.UserAssets(ctx)
	case "transfers":
		out, err = c.UserTransfers(ctx)
	}
	if err != nil {
		return err
	}
	return printJSON(out)
}

func (a *app) withdraws(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("withdraws", flag.ContinueOnError)
	chain := fs.String("chain", "", "chain code, e.g. HOL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireFlag("chain", *chain); err != nil {
		return err
	}
	c, err := a.registered(ctx)
	if err != nil {
		return err
	}
	out, err := c.UserWithdraws(ctx, *chain)
	if err != nil {
		return err
	}
	return printJSON(out)
}

func (a *app) withdraw(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("withdraw", flag.ContinueOnError)
	chain := fs.String("chain", "", "chain code (3 characters)")
	token := fs.String("token", "", "token name")
	amount := fs.String("amount", "", "amount")
	to := fs.String("to", "", "destination address")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req := types.WithdrawRequest{TokenChain: *chain, TokenName: *token, Amount: *amount, Destination: *to}
	if err := req.Validate(); err != nil {
		return err
	}
	c, err := a.registered(ctx)
	if err != nil {
		return err
	}
	if err := c.Withdraw(ctx, req); err != nil {
		return err
	}
	return printJSON(map[string]any{"status": "submitted"})
}

func (a *app) stream(ctx context.Context, args []string) error {
	c, err := a.registered(ctx)
	if err != nil {
		return err
	}
	socket := websocket.NewSocketManager(c, bootstrap.SocketOptions(a.cfg)...).
		ExecutionReportSocket(func(ctx context.Context, r types.ExecutionReport) error {
			return printJSON(r)
		})
	if err := socket.Start(ctx); err != nil {
		return err
	}
	defer socket.Stop()
	<-ctx.Done()
	return nil
}

func (a *app) key(args []string) error {
	if len(args) == 0 {
		return errors.New("key subcommand required: import | derive | list | new-mnemonic")
	}
	sub, args := args[0], args[1:]
	if sub == "new-mnemonic" {
		m, err := wallet.NewMnemonic(256)
		if err != nil {
			return err
		}
		fmt.Println(m)
		return nil
	}

	fs := flag.NewFlagSet("key "+sub, flag.ContinueOnError)
	name := fs.String("name", a.cfg.Credentials.KeyName, "key name")
	path := fs.String("path", wallet.DefaultDerivationPath, "derivation path (derive)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	readOnly := sub == "list"
	store, err := bootstrap.OpenKeyStore(a.cfg.Credentials, readOnly)
	if err != nil {
		return err
	}
	defer store.Close()

	switch sub {
	case "list":
		names, err := store.APIKeyNames()
		if err != nil {
			return err
		}
		return printJSON(names)
	case "import":
		fmt.Fprintln(os.Stderr, "请输入十六进制私钥，输入完成后回车：")
		if err := store.PutAPIKey(*name, readLine()); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "已保存：%s\n", *name)
		return nil
	case "derive":
		fmt.Fprintln(os.Stderr, "请输入助记词，输入完成后回车：")
		k, err := wallet.Derive(readLine(), *path)
		if err != nil {
			return err
		}
		if err := store.PutAPIKey(*name, k.PrivateKeyHex); err != nil {
			return err
		}
		return printJSON(map[string]any{"name": *name, "public_key": k.PublicKeyHex, "address": k.Address, "path": k.Path})
	default:
		return fmt.Errorf("unknown key subcommand %q", sub)
	}
}

func (a *app) journalCmd(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("journal subcommand required: export | list")
	}
	sub, args := args[0], args[1:]
	fs := flag.NewFlagSet("journal "+sub, flag.ContinueOnError)
	out := fs.String("out", "journal.jsonl.zst", "export file")
	open := fs.Bool("open", false, "only open orders")
	if err := fs.Parse(args); err != nil {
		return err
	}
	j, err := a.openJournal()
	if err != nil {
		return err
	}

	switch sub {
	case "export":
		f, err := os.OpenFile(*out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if err != nil {
			return err
		}
		n, err := j.Export(ctx, f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "已导出 %d 条记录到 %s\n", n, *out)
		return nil
	case "list":
		entries, err := j.List(ctx, journal.Filter{OpenOnly: *open})
		if err != nil {
			return err
		}
		return printJSON(entries)
	default:
		return fmt.Errorf("unknown journal subcommand %q", sub)
	}
}

func readLine() string {
	br := bufio.NewReader(os.Stdin)
	s, _ := br.ReadString('\n')
	return strings.TrimSpace(s)
}
