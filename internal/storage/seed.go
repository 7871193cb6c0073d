package storage

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/qwestard/codassistant/internal/models"
)

// DemoOrders are the orders the dashboard starts with.
func DemoOrders() []models.Order {
	price := decimal.RequireFromString("49.00")
	return []models.Order{
		{
			ID:           "101",
			CustomerName: "Ahmed Mansour",
			Phone:        "+212 600-112233",
			Address:      "123 Hay Mohammadi, Casablanca",
			Product:      "Premium Headphones",
			Price:        price,
			Status:       models.OrderStatusNew,
			Country:      "Morocco",
			Source:       models.OrderSourceManual,
			CreatedAt:    time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC),
		},
		{
			ID:           "102",
			CustomerName: "Sara Al-Farsi",
			Phone:        "+971 50-9988776",
			Address:      "Villa 45, Jumeirah 1, Dubai",
			Product:      "Premium Headphones",
			Price:        price,
			Status:       models.OrderStatusConfirmed,
			Country:      "UAE",
			Source:       models.OrderSourceManual,
			CreatedAt:    time.Date(2024, 3, 19, 15, 30, 0, 0, time.UTC),
		},
		{
			ID:           "103",
			CustomerName: "John Doe",
			Phone:        "+1 555-0199",
			Address:      "742 Evergreen Terrace, Springfield",
			Product:      "Premium Headphones",
			Price:        price,
			Status:       models.OrderStatusShipped,
			Country:      "USA",
			Source:       models.OrderSourceManual,
			CreatedAt:    time.Date(2024, 3, 18, 9, 15, 0, 0, time.UTC),
		},
	}
}
