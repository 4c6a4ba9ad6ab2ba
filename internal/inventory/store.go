package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type Product struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Price   float64  `json:"price"`
	Stock   int      `json:"stock"`
	Rating  float64  `json:"rating"`
	Reviews []Review `json:"reviews"`
}

type Review struct {
	ID      int    `json:"id"`
	User    string `json:"user"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
	Date    string `json:"date"` // YYYY-MM-DD
}

type CartItem struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

type OrderItem struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Subtotal float64 `json:"subtotal"`
}

type OrderSummary struct {
	OrderID  string          `json:"orderId"`
	Date     time.Time       `json:"date"`
	Items    []OrderItem     `json:"items"`
	Total    float64         `json:"total"`
	Customer json.RawMessage `json:"customer"`
}

type StockUpdate struct {
	ProductID int    `json:"productId"`
	Name      string `json:"name"`
	NewStock  int    `json:"newStock"`
}

type Shortage struct {
	ProductID int    `json:"productId"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// Store persists the product collection as a single unit: Load returns the
// whole collection, Save replaces it wholesale. There is no partial update.
type Store interface {
	Load(ctx context.Context) ([]Product, error)
	Save(ctx context.Context, products []Product) error
	Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("product not found")

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// UnknownProductError reports which cart line referenced a missing product.
type UnknownProductError struct {
	ID int
}

func (e *UnknownProductError) Error() string { return fmt.Sprintf("product %d not found", e.ID) }

func (e *UnknownProductError) Unwrap() error { return ErrNotFound }

// InsufficientStockError carries every short cart line, not just the first.
type InsufficientStockError struct {
	Shortages []Shortage
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %d item(s)", len(e.Shortages))
}
