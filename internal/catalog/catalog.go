package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrUnknownProduct = errors.New("unknown product")

type SKU string

const (
	SKUHeadphones SKU = "headphones"
)

type Product struct {
	SKU   SKU             `json:"sku"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type Catalog interface {
	// Default is the product a fresh conversation is seeded with.
	Default() Product
	// Get resolves a SKU or a product name, ignoring case.
	Get(key string) (Product, error)
	List() []Product
}

type catalog struct {
	products   map[SKU]Product
	defaultSKU SKU
}

func NewCatalog() Catalog {
	return &catalog{
		products: map[SKU]Product{
			SKUHeadphones: {
				SKU:   SKUHeadphones,
				Name:  "Premium Wireless Headphones",
				Price: decimal.RequireFromString("49.00"),
			},
		},
		defaultSKU: SKUHeadphones,
	}
}

func (c *catalog) Default() Product {
	return c.products[c.defaultSKU]
}

func (c *catalog) Get(key string) (Product, error) {
	key = strings.TrimSpace(key)
	if p, ok := c.products[SKU(strings.ToLower(key))]; ok {
		return p, nil
	}
	for _, p := range c.products {
		if strings.EqualFold(p.Name, key) {
			return p, nil
		}
	}
	return Product{}, fmt.Errorf("%w: %s", ErrUnknownProduct, key)
}

func (c *catalog) List() []Product {
	list := make([]Product, 0, len(c.products))
	for _, p := range c.products {
		list = append(list, p)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].SKU < list[j].SKU
	})
	return list
}
