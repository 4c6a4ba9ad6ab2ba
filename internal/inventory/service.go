package inventory

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Service runs the inventory operations against an injected Store. Every
// mutation is a load-validate-compute-save sequence executed under a single
// process-wide lock, so overlapping mutations cannot clobber each other's
// writes. Reads go straight to the store.
type Service struct {
	store Store

	mu  sync.Mutex
	now func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Products returns the whole collection in stored order.
func (s *Service) Products(ctx context.Context) ([]Product, error) {
	return s.store.Load(ctx)
}

func (s *Service) Product(ctx context.Context, id int) (Product, error) {
	products, err := s.store.Load(ctx)
	if err != nil {
		return Product{}, err
	}

	p, _, ok := findProduct(products, id)
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (s *Service) Reviews(ctx context.Context, productID int) ([]Review, error) {
	p, err := s.Product(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.Reviews == nil {
		return []Review{}, nil
	}
	return p.Reviews, nil
}

// Purchase deducts stock for every cart line, all or nothing. A missing
// product aborts the whole order; short lines are collected into one
// InsufficientStockError before anything is written. The caller-supplied
// total and customer object are echoed into the order summary unverified.
func (s *Service) Purchase(ctx context.Context, items []CartItem, customer json.RawMessage, total float64) (OrderSummary, []StockUpdate, error) {
	if len(items) == 0 {
		return OrderSummary{}, nil, &ValidationError{Msg: "cart is empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := s.store.Load(ctx)
	if err != nil {
		return OrderSummary{}, nil, err
	}

	// Cart lines may repeat a product id, so requested quantities are
	// aggregated per product before any stock comparison. Otherwise two
	// lines could each pass against the original stock and the combined
	// deduction would drive it negative.
	requested := make(map[int]int, len(items))
	ids := make([]int, 0, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return OrderSummary{}, nil, &ValidationError{Msg: "cart item quantity must be a positive integer"}
		}

		if _, ok := findProductIndex(products, it.ID); !ok {
			return OrderSummary{}, nil, &UnknownProductError{ID: it.ID}
		}
		if _, seen := requested[it.ID]; !seen {
			ids = append(ids, it.ID)
		}
		requested[it.ID] += it.Quantity
	}

	var shortages []Shortage
	for _, id := range ids {
		p, _, _ := findProduct(products, id)
		if requested[id] > p.Stock {
			shortages = append(shortages, Shortage{
				ProductID: p.ID,
				Name:      p.Name,
				Requested: requested[id],
				Available: p.Stock,
			})
		}
	}
	if len(shortages) > 0 {
		return OrderSummary{}, nil, &InsufficientStockError{Shortages: shortages}
	}

	updates := make([]StockUpdate, 0, len(ids))
	for _, id := range ids {
		i, _ := findProductIndex(products, id)
		products[i].Stock -= requested[id]
		updates = append(updates, StockUpdate{
			ProductID: products[i].ID,
			Name:      products[i].Name,
			NewStock:  products[i].Stock,
		})
	}

	if err := s.store.Save(ctx, products); err != nil {
		return OrderSummary{}, nil, err
	}

	orderItems := make([]OrderItem, 0, len(items))
	for _, it := range items {
		orderItems = append(orderItems, OrderItem{
			ID:       it.ID,
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    it.Price,
			Subtotal: it.Price * float64(it.Quantity),
		})
	}

	order := OrderSummary{
		OrderID:  "o_" + uuid.NewString(),
		Date:     s.now().UTC(),
		Items:    orderItems,
		Total:    total,
		Customer: customer,
	}
	return order, updates, nil
}

// AddReview appends a review and recomputes the product rating as the mean
// of all review ratings. Review ids are positional: count+1 at insertion.
func (s *Service) AddReview(ctx context.Context, productID int, user string, rating float64, comment string) (Review, float64, error) {
	user = strings.TrimSpace(user)
	comment = strings.TrimSpace(comment)
	if user == "" || comment == "" {
		return Review{}, 0, &ValidationError{Msg: "user, rating and comment are required"}
	}
	if rating < 1 || rating > 5 {
		return Review{}, 0, &ValidationError{Msg: "rating must be between 1 and 5"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := s.store.Load(ctx)
	if err != nil {
		return Review{}, 0, err
	}

	_, i, ok := findProduct(products, productID)
	if !ok {
		return Review{}, 0, ErrNotFound
	}

	p := &products[i]
	review := Review{
		ID:      len(p.Reviews) + 1,
		User:    user,
		Rating:  int(rating),
		Comment: comment,
		Date:    s.now().Format("2006-01-02"),
	}
	p.Reviews = append(p.Reviews, review)
	p.Rating = meanRating(p.Reviews)

	if err := s.store.Save(ctx, products); err != nil {
		return Review{}, 0, err
	}
	return review, p.Rating, nil
}

// AdjustStock increments stock by a positive whole amount. There is no
// decrement path here; purchases are the only way stock goes down.
func (s *Service) AdjustStock(ctx context.Context, productID int, amount float64) (int, error) {
	if amount <= 0 || amount != math.Trunc(amount) {
		return 0, &ValidationError{Msg: "amount must be a positive integer"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := s.store.Load(ctx)
	if err != nil {
		return 0, err
	}

	_, i, ok := findProduct(products, productID)
	if !ok {
		return 0, ErrNotFound
	}

	products[i].Stock += int(amount)
	if err := s.store.Save(ctx, products); err != nil {
		return 0, err
	}
	return products[i].Stock, nil
}

func findProduct(products []Product, id int) (Product, int, bool) {
	for i, p := range products {
		if p.ID == id {
			return p, i, true
		}
	}
	return Product{}, -1, false
}

func findProductIndex(products []Product, id int) (int, bool) {
	_, i, ok := findProduct(products, id)
	return i, ok
}

func meanRating(reviews []Review) float64 {
	if len(reviews) == 0 {
		return 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(reviews))
}
