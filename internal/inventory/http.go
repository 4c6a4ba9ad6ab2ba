package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"RetailDash/pkg/kit"
)

const (
	serverName   = "Retail Dashboard API"
	maxBodyBytes = 1 << 20
)

type Server struct {
	Inventory *Service
	Log       *zap.Logger
	ImagesDir string

	// Optional limiter applied to the purchase endpoint.
	PurchaseLimiter *kit.IPRateLimiter
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(serverName + " is running!"))
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
		defer cancel()

		if err := s.Inventory.Ping(ctx); err != nil {
			if s.Log != nil {
				s.Log.Warn("readyz failed", zap.Error(err))
			}
			kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready", nil)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/products", s.listProducts)
	r.Get("/products/{id}", s.getProduct)

	r.Get("/api/products/{id}/reviews", s.listReviews)
	r.Post("/api/products/{id}/reviews", s.addReview)
	r.Post("/api/products/{id}/stock", s.adjustStock)

	if s.PurchaseLimiter != nil {
		r.With(s.PurchaseLimiter.Middleware).Post("/api/purchase", s.purchase)
	} else {
		r.Post("/api/purchase", s.purchase)
	}

	r.Get("/time", s.serverTime)
	r.Post("/echo", s.echo)

	if s.ImagesDir != "" {
		fs := http.StripPrefix("/images/", http.FileServer(http.Dir(s.ImagesDir)))
		r.Get("/images/*", fs.ServeHTTP)
	}

	return r
}

type listProductsResponse struct {
	Success bool      `json:"success"`
	Count   int       `json:"count"`
	Data    []Product `json:"data"`
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.Inventory.Products(r.Context())
	if err != nil {
		s.logError("list products failed", err)
		kit.WriteError(w, r, http.StatusInternalServerError, "Error loading products", nil)
		return
	}

	kit.WriteJSON(w, http.StatusOK, listProductsResponse{
		Success: true,
		Count:   len(products),
		Data:    products,
	})
}

type productResponse struct {
	Success bool    `json:"success"`
	Data    Product `json:"data"`
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		kit.WriteError(w, r, http.StatusNotFound, "Product not found", nil)
		return
	}

	p, err := s.Inventory.Product(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, "get product", id, err)
		return
	}

	kit.WriteJSON(w, http.StatusOK, productResponse{Success: true, Data: p})
}

type reviewsResponse struct {
	Success bool     `json:"success"`
	Reviews []Review `json:"reviews"`
}

func (s *Server) listReviews(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		kit.WriteError(w, r, http.StatusNotFound, "Product not found", nil)
		return
	}

	reviews, err := s.Inventory.Reviews(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, "list reviews", id, err)
		return
	}

	kit.WriteJSON(w, http.StatusOK, reviewsResponse{Success: true, Reviews: reviews})
}

type addReviewRequest struct {
	User    string  `json:"user"`
	Rating  float64 `json:"rating"`
	Comment string  `json:"comment"`
}

type addReviewResponse struct {
	Success          bool    `json:"success"`
	Review           Review  `json:"review"`
	NewAverageRating float64 `json:"newAverageRating"`
}

func (s *Server) addReview(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		kit.WriteError(w, r, http.StatusNotFound, "Product not found", nil)
		return
	}

	var req addReviewRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	review, avg, err := s.Inventory.AddReview(r.Context(), id, req.User, req.Rating, req.Comment)
	if err != nil {
		s.writeStoreError(w, r, "add review", id, err)
		return
	}

	kit.WriteJSON(w, http.StatusOK, addReviewResponse{
		Success:          true,
		Review:           review,
		NewAverageRating: avg,
	})
}

type purchaseRequest struct {
	CartItems    []CartItem      `json:"cartItems"`
	CustomerInfo json.RawMessage `json:"customerInfo"`
	Total        float64         `json:"total"`
}

type purchaseResponse struct {
	Success         bool          `json:"success"`
	Message         string        `json:"message"`
	Order           OrderSummary  `json:"order"`
	UpdatedProducts []StockUpdate `json:"updatedProducts"`
}

type purchaseConflictResponse struct {
	Success           bool       `json:"success"`
	Message           string     `json:"message"`
	InsufficientStock []Shortage `json:"insufficientStock"`
}

func (s *Server) purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	order, updates, err := s.Inventory.Purchase(r.Context(), req.CartItems, req.CustomerInfo, req.Total)
	if err != nil {
		var stockErr *InsufficientStockError
		if errors.As(err, &stockErr) {
			kit.WriteJSON(w, http.StatusConflict, purchaseConflictResponse{
				Success:           false,
				Message:           "Insufficient stock for one or more items",
				InsufficientStock: stockErr.Shortages,
			})
			return
		}
		s.writeStoreError(w, r, "purchase", 0, err)
		return
	}

	kit.WriteJSON(w, http.StatusOK, purchaseResponse{
		Success:         true,
		Message:         "Purchase completed successfully",
		Order:           order,
		UpdatedProducts: updates,
	})
}

type adjustStockRequest struct {
	Amount float64 `json:"amount"`
}

type adjustStockResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ProductID int    `json:"productId"`
	NewStock  int    `json:"newStock"`
}

func (s *Server) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, err := productID(r)
	if err != nil {
		kit.WriteError(w, r, http.StatusNotFound, "Product not found", nil)
		return
	}

	var req adjustStockRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	newStock, err := s.Inventory.AdjustStock(r.Context(), id, req.Amount)
	if err != nil {
		s.writeStoreError(w, r, "adjust stock", id, err)
		return
	}

	kit.WriteJSON(w, http.StatusOK, adjustStockResponse{
		Success:   true,
		Message:   "Stock updated",
		ProductID: id,
		NewStock:  newStock,
	})
}

type timeResponse struct {
	Time   string `json:"time"`
	Server string `json:"server"`
}

func (s *Server) serverTime(w http.ResponseWriter, _ *http.Request) {
	kit.WriteJSON(w, http.StatusOK, timeResponse{
		Time:   time.Now().UTC().Format(time.RFC3339),
		Server: serverName,
	})
}

type echoResponse struct {
	Received bool   `json:"received"`
	Data     any    `json:"data"`
	Message  string `json:"message"`
}

func (s *Server) echo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var data any
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil && err != io.EOF {
		kit.WriteError(w, r, http.StatusBadRequest, "bad json", nil)
		return
	}

	kit.WriteJSON(w, http.StatusOK, echoResponse{
		Received: true,
		Data:     data,
		Message:  "Data received successfully",
	})
}

// writeStoreError maps service errors onto the response contract:
// validation 400, unknown product 404, anything else a sanitized 500.
func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, op string, productID int, err error) {
	var vErr *ValidationError
	var upErr *UnknownProductError

	switch {
	case errors.As(err, &vErr):
		kit.WriteError(w, r, http.StatusBadRequest, vErr.Msg, nil)
	case errors.As(err, &upErr):
		kit.WriteError(w, r, http.StatusNotFound, upErr.Error(), map[string]any{"id": upErr.ID})
	case errors.Is(err, ErrNotFound):
		kit.WriteError(w, r, http.StatusNotFound, "Product not found", map[string]any{"id": productID})
	default:
		if s.Log != nil {
			s.Log.Error(op+" failed", zap.Error(err), zap.Int("product_id", productID))
		}
		kit.WriteError(w, r, http.StatusInternalServerError, "Server error", nil)
	}
}

func (s *Server) logError(msg string, err error) {
	if s.Log != nil {
		s.Log.Error(msg, zap.Error(err))
	}
}

func productID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "id"))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, strict bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after json object")
	}
	return nil
}
