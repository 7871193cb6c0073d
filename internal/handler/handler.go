package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/qwestard/codassistant/internal/models"
	"github.com/qwestard/codassistant/internal/service"
)

var (
	ErrExit           = errors.New("exit requested")
	ErrUnknownCommand = errors.New("unknown command, type 'help' for the list")
)

// Handler runs operator console commands against one chat session.
type Handler struct {
	chat      *service.ChatService
	orders    *service.OrderService
	out       io.Writer
	sessionID string
}

func New(chat *service.ChatService, orders *service.OrderService, out io.Writer) *Handler {
	return &Handler{
		chat:      chat,
		orders:    orders,
		out:       out,
		sessionID: chat.StartSession().ID,
	}
}

func (h *Handler) Execute(ctx context.Context, cmd string, args []string) error {
	commands := map[string]func([]string) error{
		"help":   h.printHelp,
		"exit":   h.handleExit,
		"say":    func(args []string) error { return h.handleSay(ctx, args) },
		"state":  h.handleState,
		"reset":  h.handleReset,
		"orders": h.handleOrders,
		"order":  h.handleOrder,
		"status": h.handleStatus,
		"stats":  h.handleStats,
		"export": h.handleExport,
	}

	fn, ok := commands[cmd]
	if !ok {
		return ErrUnknownCommand
	}
	return fn(args)
}

func (h *Handler) printHelp(_ []string) error {
	fmt.Fprintln(h.out, `Available commands:
  help
    - show this help
  exit
    - quit the console
  say <text>
    - send a customer message to the assistant
  state
    - show the conversation step and collected order details
  reset
    - start the conversation over
  orders [query]
    - list orders, optionally filtered by customer name
  order <id>
    - show one order
  status <id> <NEW|CONFIRMED|SHIPPED|DELIVERED|CANCELED>
    - change an order status
  stats
    - dashboard numbers
  export <file>
    - write all orders to a JSON file`)
	return nil
}

func (h *Handler) handleExit(_ []string) error {
	fmt.Fprintln(h.out, "Bye.")
	return ErrExit
}

func (h *Handler) handleSay(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(h.out, "Usage: say <text>")
		return nil
	}
	_, res, err := h.chat.Send(ctx, h.sessionID, strings.Join(args, " "))
	if err != nil {
		fmt.Fprintf(h.out, "Send error: %v\n", err)
		return nil
	}
	fmt.Fprintf(h.out, "bot [%s]: %s\n", res.Interpretation.Intent, res.Interpretation.Message)
	if res.Order != nil {
		fmt.Fprintf(h.out, "Order %s created for %s\n", res.Order.ID, res.Order.CustomerName)
	}
	if res.OrderErr != nil {
		fmt.Fprintf(h.out, "Order rejected: %v\n", res.OrderErr)
	}
	return nil
}

func (h *Handler) handleState(_ []string) error {
	sess, err := h.chat.Session(h.sessionID)
	if err != nil {
		fmt.Fprintf(h.out, "State error: %v\n", err)
		return nil
	}
	p := sess.State.TempOrder
	price := "-"
	if p.Price.Valid {
		price = p.Price.Decimal.StringFixed(2)
	}
	fmt.Fprintf(h.out, "Step: %s\n  Name=%q Address=%q Phone=%q Product=%q Price=%s\n",
		sess.State.CurrentStep, p.CustomerName, p.Address, p.Phone, p.Product, price)
	return nil
}

func (h *Handler) handleReset(_ []string) error {
	if _, err := h.chat.Reset(h.sessionID); err != nil {
		fmt.Fprintf(h.out, "Reset error: %v\n", err)
		return nil
	}
	fmt.Fprintln(h.out, "Conversation reset.")
	return nil
}

func (h *Handler) handleOrders(args []string) error {
	orders := h.orders.List(strings.Join(args, " "))
	if len(orders) == 0 {
		fmt.Fprintln(h.out, "No orders.")
		return nil
	}
	for _, o := range orders {
		h.printOrder(o)
	}
	return nil
}

func (h *Handler) handleOrder(args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(h.out, "Usage: order <id>")
		return nil
	}
	o, err := h.orders.Get(args[0])
	if err != nil {
		fmt.Fprintf(h.out, "Order error: %v\n", err)
		return nil
	}
	h.printOrder(o)
	return nil
}

func (h *Handler) handleStatus(args []string) error {
	if len(args) != 2 {
		fmt.Fprintln(h.out, "Usage: status <id> <STATUS>")
		return nil
	}
	status, err := models.ParseOrderStatus(args[1])
	if err != nil {
		fmt.Fprintf(h.out, "Status error: %v\n", err)
		return nil
	}
	o, err := h.orders.UpdateStatus(args[0], status)
	if err != nil {
		fmt.Fprintf(h.out, "Status error: %v\n", err)
		return nil
	}
	fmt.Fprintf(h.out, "Order %s is now %s\n", o.ID, o.Status)
	return nil
}

func (h *Handler) handleStats(_ []string) error {
	s := h.orders.Stats()
	fmt.Fprintf(h.out, "Orders: %d  Pending: %d  Revenue: $%s  From chat: %.0f%%\n",
		s.TotalOrders, s.PendingApproval, s.TotalRevenue.StringFixed(2), s.ChatShare*100)
	for country, n := range s.Countries {
		fmt.Fprintf(h.out, "  %s: %d\n", country, n)
	}
	return nil
}

func (h *Handler) handleExport(args []string) error {
	if len(args) != 1 {
		fmt.Fprintln(h.out, "Usage: export <file>")
		return nil
	}
	f, err := os.Create(args[0])
	if err != nil {
		fmt.Fprintf(h.out, "Export error: %v\n", err)
		return nil
	}
	defer f.Close()
	if err := h.orders.Export(f); err != nil {
		fmt.Fprintf(h.out, "Export error: %v\n", err)
		return nil
	}
	fmt.Fprintf(h.out, "Orders written to %s\n", args[0])
	return nil
}

func (h *Handler) printOrder(o models.Order) {
	fmt.Fprintf(h.out, "  #%s %s | %s | %s | %s $%s | %s | %s\n",
		o.ID, o.CustomerName, o.Phone, o.Address, o.Product, o.Price.StringFixed(2), o.Country, o.Status)
}
