// Package watch 在终端中实时展示执行回报
package watch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zex-finance/gozex/zex/types"
)

const defaultMaxRows = 20

// Options 展示选项
type Options struct {
	Title   string
	Network string
	UserID  uint64
	// MaxRows 最近事件最多显示的行数
	MaxRows int
	// Status 返回连接状态（如 socket.LastError），为 nil 时不显示
	Status func() error
}

type reportMsg struct {
	report types.ExecutionReport
}

type closedMsg struct{}

type tickMsg time.Time

// OrderRow 单个订单的最新状态
type OrderRow struct {
	OrderID  int64
	Symbol   string
	Side     string
	Price    string
	Quantity string
	Filled   string
	Status   types.OrderStatus
	Updated  time.Time
}

// Model bubbletea 模型
type Model struct {
	opts    Options
	reports <-chan types.ExecutionReport

	orders  map[int64]*OrderRow
	recent  []types.ExecutionReport
	counts  map[types.OrderStatus]int
	total   int
	closed  bool
	lastErr error
	width   int
	now     func() time.Time
}

// New 创建模型，reports 关闭后界面停止接收但不退出
func New(reports <-chan types.ExecutionReport, opts Options) Model {
	if opts.MaxRows <= 0 {
		opts.MaxRows = defaultMaxRows
	}
	if opts.Title == "" {
		opts.Title = "Zex Execution Reports"
	}
	return Model{
		opts:    opts,
		reports: reports,
		orders:  make(map[int64]*OrderRow),
		counts:  make(map[types.OrderStatus]int),
		now:     time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForReport(), m.tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case reportMsg:
		m.apply(msg.report)
		return m, m.waitForReport()
	case closedMsg:
		m.closed = true
		return m, nil
	case tickMsg:
		if m.opts.Status != nil {
			m.lastErr = m.opts.Status()
		}
		return m, m.tick()
	}
	return m, nil
}

// apply 合并一条执行回报
func (m *Model) apply(r types.ExecutionReport) {
	m.total++
	m.counts[r.OrderStatus()]++

	m.recent = append(m.recent, r)
	if len(m.recent) > m.opts.MaxRows {
		m.recent = m.recent[len(m.recent)-m.opts.MaxRows:]
	}

	row, ok := m.orders[r.OrderID]
	if !ok {
		row = &OrderRow{OrderID: r.OrderID}
		m.orders[r.OrderID] = row
	}
	row.Symbol = r.Symbol
	row.Side = r.Side
	row.Price = r.Price
	row.Quantity = r.Quantity
	row.Filled = r.CumulativeQty
	row.Status = r.OrderStatus()
	row.Updated = m.now()
}

// OpenOrders 未进入终态的订单，按订单 ID 升序
func (m Model) OpenOrders() []OrderRow {
	out := make([]OrderRow, 0, len(m.orders))
	for _, row := range m.orders {
		if !row.Status.IsFinal() {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("39")).Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	buyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	sellStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

func (m Model) View() string {
	header := headerStyle.Render(fmt.Sprintf("%s | %s | user %d | %s",
		m.opts.Title, m.opts.Network, m.opts.UserID, m.now().Format("15:04:05")))

	status := dimStyle.Render("connected")
	switch {
	case m.closed:
		status = errStyle.Render("stream closed")
	case m.lastErr != nil:
		status = errStyle.Render("reconnecting: " + m.lastErr.Error())
	}

	counts := fmt.Sprintf("events %d | new %d | partial %d | filled %d | canceled %d | rejected %d",
		m.total,
		m.counts[types.OrderStatusNew],
		m.counts[types.OrderStatusPartiallyFilled],
		m.counts[types.OrderStatusFilled],
		m.counts[types.OrderStatusCanceled],
		m.counts[types.OrderStatusRejected])

	width := m.width - 4
	if width < 60 {
		width = 60
	}
	open := boxStyle.Width(width).Render(m.renderOpenOrders())
	recent := boxStyle.Width(width).Render(m.renderRecent())

	help := dimStyle.Render("q 退出")
	return lipgloss.JoinVertical(lipgloss.Left, header, status, counts, open, recent, help)
}

func (m Model) renderOpenOrders() string {
	rows := m.OpenOrders()
	if len(rows) == 0 {
		return "挂单: 无"
	}
	lines := []string{"挂单", fmt.Sprintf("%-8s %-12s %-5s %14s %14s %14s %s", "ID", "SYMBOL", "SIDE", "PRICE", "QTY", "FILLED", "STATUS")}
	for _, r := range rows {
		lines = append(lines, fmt.Sprintf("%-8d %-12s %-5s %14s %14s %14s %s",
			r.OrderID, r.Symbol, sideText(r.Side), r.Price, r.Quantity, r.Filled, r.Status))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderRecent() string {
	if len(m.recent) == 0 {
		return "等待执行回报..."
	}
	lines := []string{"最近事件"}
	for i := len(m.recent) - 1; i >= 0; i-- {
		r := m.recent[i]
		ts := time.UnixMilli(r.EventTime).Format("15:04:05.000")
		line := fmt.Sprintf("%s #%d %s %s %s @ %s -> %s", ts, r.OrderID, r.Symbol, sideText(r.Side), r.Quantity, r.Price, r.OrderStatusRaw)
		if r.RejectReason != "" {
			line += " (" + r.RejectReason + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func sideText(side string) string {
	switch side {
	case string(types.OrderSideBuy):
		return buyStyle.Render(side)
	case string(types.OrderSideSell):
		return sellStyle.Render(side)
	}
	return side
}

func (m Model) waitForReport() tea.Cmd {
	return func() tea.Msg {
		r, ok := <-m.reports
		if !ok {
			return closedMsg{}
		}
		return reportMsg{report: r}
	}
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Run 运行界面直到用户退出或 ctx 结束
func Run(ctx context.Context, reports <-chan types.ExecutionReport, opts Options) error {
	p := tea.NewProgram(New(reports, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
