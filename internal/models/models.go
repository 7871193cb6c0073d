package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
)

var orderStatuses = []OrderStatus{
	OrderStatusNew,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCanceled,
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	st := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range orderStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

type OrderSource string

const (
	OrderSourceChat   OrderSource = "chat"
	OrderSourceManual OrderSource = "manual"
)

type Order struct {
	ID           string          `json:"id"`
	CustomerName string          `json:"customer_name"`
	Phone        string          `json:"phone"`
	Address      string          `json:"address"`
	Product      string          `json:"product"`
	Price        decimal.Decimal `json:"price"`
	Status       OrderStatus     `json:"status"`
	Country      string          `json:"country"`
	Source       OrderSource     `json:"source,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Stats backs the dashboard stat cards and the top countries panel.
type Stats struct {
	TotalOrders     int             `json:"total_orders"`
	PendingApproval int             `json:"pending_approval"`
	TotalRevenue    decimal.Decimal `json:"total_revenue"`
	ChatShare       float64         `json:"chat_share"`
	Countries       map[string]int  `json:"countries"`
}
