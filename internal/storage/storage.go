package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/qwestard/codassistant/internal/models"
)

var (
	ErrInvalidPrice = errors.New("order price must be greater than zero")
	ErrNotFound     = errors.New("order not found")
)

// OrderStorage is the process-wide in-memory order registry.
// Orders are kept most recent first and are never deleted.
type OrderStorage struct {
	mu     sync.RWMutex
	orders []*models.Order
	byID   map[string]*models.Order
	lastID atomic.Int64
}

func New(startID int64) *OrderStorage {
	st := &OrderStorage{
		byID: make(map[string]*models.Order),
	}
	st.lastID.Store(startID)
	return st
}

func now() time.Time {
	return time.Now().UTC()
}

// Seed appends pre-existing orders keeping their ids. The id counter is
// moved past any numeric id so later inserts cannot reuse it.
func (st *OrderStorage) Seed(orders []models.Order) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	for _, o := range orders {
		if o.ID == "" {
			return errors.New("seed order without id")
		}
		if _, exists := st.byID[o.ID]; exists {
			return fmt.Errorf("duplicate seed order %s", o.ID)
		}
		if !o.Price.IsPositive() {
			return fmt.Errorf("seed order %s: %w", o.ID, ErrInvalidPrice)
		}
		order := o
		st.orders = append(st.orders, &order)
		st.byID[order.ID] = &order
		if n, err := strconv.ParseInt(order.ID, 10, 64); err == nil {
			for {
				cur := st.lastID.Load()
				if n <= cur || st.lastID.CompareAndSwap(cur, n) {
					break
				}
			}
		}
	}
	return nil
}

// Insert assigns a fresh id, stamps CreatedAt when unset and puts the order
// in front of the list. The stored copy is returned.
func (st *OrderStorage) Insert(o models.Order) (models.Order, error) {
	if !o.Price.IsPositive() {
		return models.Order{}, ErrInvalidPrice
	}
	if o.Status == "" {
		o.Status = models.OrderStatusNew
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now()
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for {
		o.ID = strconv.FormatInt(st.lastID.Add(1), 10)
		if _, taken := st.byID[o.ID]; !taken {
			break
		}
	}
	order := o
	st.orders = append([]*models.Order{&order}, st.orders...)
	st.byID[order.ID] = &order
	return order, nil
}

// UpdateStatus replaces the status of the order with the given id and
// returns the previous status. Any status may follow any other.
// Unknown ids leave the registry untouched and report false.
func (st *OrderStorage) UpdateStatus(id string, status models.OrderStatus) (models.OrderStatus, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	o, ok := st.byID[id]
	if !ok {
		return "", false
	}
	old := o.Status
	o.Status = status
	return old, true
}

func (st *OrderStorage) Get(id string) (models.Order, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	o, ok := st.byID[id]
	if !ok {
		return models.Order{}, ErrNotFound
	}
	return *o, nil
}

// Filter returns orders whose customer name contains query, ignoring case,
// in registry order. An empty query matches everything.
func (st *OrderStorage) Filter(query string) []models.Order {
	q := strings.ToLower(query)
	st.mu.RLock()
	defer st.mu.RUnlock()
	result := make([]models.Order, 0, len(st.orders))
	for _, o := range st.orders {
		if q != "" && !strings.Contains(strings.ToLower(o.CustomerName), q) {
			continue
		}
		result = append(result, *o)
	}
	return result
}

func (st *OrderStorage) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.orders)
}

func (st *OrderStorage) Stats() models.Stats {
	st.mu.RLock()
	defer st.mu.RUnlock()
	stats := models.Stats{
		TotalOrders:  len(st.orders),
		TotalRevenue: decimal.Zero,
		Countries:    make(map[string]int),
	}
	var fromChat int
	for _, o := range st.orders {
		if o.Status == models.OrderStatusNew {
			stats.PendingApproval++
		}
		if o.Status != models.OrderStatusCanceled {
			stats.TotalRevenue = stats.TotalRevenue.Add(o.Price)
		}
		if o.Source == models.OrderSourceChat {
			fromChat++
		}
		if o.Country != "" {
			stats.Countries[o.Country]++
		}
	}
	if stats.TotalOrders > 0 {
		stats.ChatShare = float64(fromChat) / float64(stats.TotalOrders)
	}
	return stats
}

// Export writes the current orders as an indented JSON array.
func (st *OrderStorage) Export(w io.Writer) error {
	orders := st.Filter("")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(orders); err != nil {
		return fmt.Errorf("export orders: %w", err)
	}
	return nil
}
