// Package journal 在本地 SQLite 中记录已提交的订单，便于之后按 nonce 撤单和导出
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/zex-finance/gozex/zex/types"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("journal entry not found")

// Entry 一条下单记录
type Entry struct {
	Network    string          `json:"network"`
	UserID     uint64          `json:"user_id"`
	Nonce      uint64          `json:"nonce"`
	BaseToken  string          `json:"base_token"`
	QuoteToken string          `json:"quote_token"`
	Side       types.OrderSide `json:"side"`
	Volume     float64         `json:"volume"`
	Price      float64         `json:"price"`
	SignedTx   []byte          `json:"signed_tx"`
	CreatedAt  time.Time       `json:"created_at"`
	CanceledAt *time.Time      `json:"canceled_at,omitempty"`
}

// Canceled 是否已撤单
func (e Entry) Canceled() bool { return e.CanceledAt != nil }

// CancelRequest 构建撤单请求
func (e Entry) CancelRequest() types.CancelOrderRequest {
	return types.CancelOrderRequest{SignedOrder: e.SignedTx, OrderNonce: e.Nonce}
}

// Journal 订单日志
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open 打开（必要时创建）日志数据库；path 为 ":memory:" 时使用内存库
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir journal dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite：单连接更稳定
	db.SetMaxIdleConns(1)

	j := &Journal{db: db, now: time.Now}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Close 关闭数据库
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`
CREATE TABLE IF NOT EXISTS orders (
  network TEXT NOT NULL,
  user_id INTEGER NOT NULL,
  nonce INTEGER NOT NULL,
  base_token TEXT NOT NULL,
  quote_token TEXT NOT NULL,
  side TEXT NOT NULL,
  volume REAL NOT NULL,
  price REAL NOT NULL,
  signed_tx BLOB NOT NULL,
  created_at TEXT NOT NULL,
  canceled_at TEXT,
  PRIMARY KEY (network, user_id, nonce)
);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_open ON orders(network, user_id, canceled_at);`,
	}
	for _, stmt := range stmts {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate journal: %w", err)
		}
	}
	return nil
}

// Record 记录一批下单结果；同一 nonce 重复记录时覆盖
func (j *Journal) Record(ctx context.Context, network types.Network, userID uint64, results []types.PlaceOrderResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO orders (network, user_id, nonce, base_token, quote_token, side, volume, price, signed_tx, created_at, canceled_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
ON CONFLICT(network, user_id, nonce) DO UPDATE SET
  base_token=excluded.base_token, quote_token=excluded.quote_token, side=excluded.side,
  volume=excluded.volume, price=excluded.price, signed_tx=excluded.signed_tx,
  created_at=excluded.created_at, canceled_at=NULL`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := formatTime(j.now())
	for _, r := range results {
		req := r.Request
		if _, err := stmt.ExecContext(ctx, network.String(), int64(userID), int64(r.Nonce),
			req.BaseToken, req.QuoteToken, string(req.Side), req.Volume, req.Price,
			r.SignedOrderTransaction, now); err != nil {
			return fmt.Errorf("record order nonce=%d: %w", r.Nonce, err)
		}
	}
	return tx.Commit()
}

// MarkCanceled 标记订单已撤销，返回实际更新的条数
func (j *Journal) MarkCanceled(ctx context.Context, network types.Network, userID uint64, nonces ...uint64) (int, error) {
	if len(nonces) == 0 {
		return 0, nil
	}
	args := []any{formatTime(j.now()), network.String(), int64(userID)}
	for _, n := range nonces {
		args = append(args, int64(n))
	}
	q := `UPDATE orders SET canceled_at = ? WHERE network = ? AND user_id = ? AND canceled_at IS NULL AND nonce IN (` +
		strings.TrimSuffix(strings.Repeat("?,", len(nonces)), ",") + `)`
	res, err := j.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

const selectColumns = `network, user_id, nonce, base_token, quote_token, side, volume, price, signed_tx, created_at, canceled_at`

// Get 按 nonce 查询订单
func (j *Journal) Get(ctx context.Context, network types.Network, userID, nonce uint64) (*Entry, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM orders WHERE network = ? AND user_id = ? AND nonce = ?`,
		network.String(), int64(userID), int64(nonce))
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Filter 列表查询条件；零值字段不参与过滤
type Filter struct {
	Network  *types.Network
	UserID   *uint64
	OpenOnly bool
	Limit    int
}

// List 按 nonce 升序列出订单
func (j *Journal) List(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.Network != nil {
		where = append(where, "network = ?")
		args = append(args, f.Network.String())
	}
	if f.UserID != nil {
		where = append(where, "user_id = ?")
		args = append(args, int64(*f.UserID))
	}
	if f.OpenOnly {
		where = append(where, "canceled_at IS NULL")
	}
	q := `SELECT ` + selectColumns + ` FROM orders`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY network, user_id, nonce`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// OpenOrders 用户尚未撤销的订单
func (j *Journal) OpenOrders(ctx context.Context, network types.Network, userID uint64) ([]Entry, error) {
	return j.List(ctx, Filter{Network: &network, UserID: &userID, OpenOnly: true})
}

// Export 把全部记录以 zstd 压缩的 JSON Lines 写入 w，返回条数
func (j *Journal) Export(ctx context.Context, w io.Writer) (int, error) {
	entries, err := j.List(ctx, Filter{})
	if err != nil {
		return 0, err
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return 0, err
	}
	enc := json.NewEncoder(zw)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			_ = zw.Close()
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// ReadExport 解压 Export 的输出
func ReadExport(r io.Reader) ([]Entry, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var out []Entry
	dec := json.NewDecoder(zr)
	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, err
		}
		out = append(out, e)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e          Entry
		userID     int64
		nonce      int64
		side       string
		createdAt  string
		canceledAt sql.NullString
	)
	if err := s.Scan(&e.Network, &userID, &nonce, &e.BaseToken, &e.QuoteToken, &side,
		&e.Volume, &e.Price, &e.SignedTx, &createdAt, &canceledAt); err != nil {
		return nil, err
	}
	e.UserID = uint64(userID)
	e.Nonce = uint64(nonce)
	e.Side = types.OrderSide(side)
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = t
	if canceledAt.Valid {
		ct, err := parseTime(canceledAt.String)
		if err != nil {
			return nil, err
		}
		e.CanceledAt = &ct
	}
	return &e, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
