//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"testing"
	"time"
)

var baseURL = getenv("E2E_BASE_URL", "http://localhost:3000")

func TestSystem_E2E(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	waitReady(t, ctx, baseURL+"/readyz")

	var list struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
		Data    []struct {
			ID    int     `json:"id"`
			Name  string  `json:"name"`
			Price float64 `json:"price"`
			Stock int     `json:"stock"`
		} `json:"data"`
	}
	doJSON(t, http.MethodGet, baseURL+"/products", nil, &list, 200)
	if !list.Success || list.Count == 0 {
		t.Fatalf("expected non-empty catalog: %+v", list)
	}

	p := list.Data[0]
	if p.Stock < 1 {
		t.Skipf("product %d out of stock, cannot exercise purchase", p.ID)
	}

	var purchase struct {
		Success bool `json:"success"`
		Order   struct {
			OrderID string `json:"orderId"`
		} `json:"order"`
		UpdatedProducts []struct {
			ProductID int `json:"productId"`
			NewStock  int `json:"newStock"`
		} `json:"updatedProducts"`
	}
	doJSON(t, http.MethodPost, baseURL+"/api/purchase", map[string]any{
		"cartItems":    []map[string]any{{"id": p.ID, "name": p.Name, "quantity": 1, "price": p.Price}},
		"customerInfo": map[string]any{"name": "e2e"},
		"total":        p.Price,
	}, &purchase, 200)

	if purchase.Order.OrderID == "" {
		t.Fatalf("empty order id: %+v", purchase)
	}
	if len(purchase.UpdatedProducts) != 1 || purchase.UpdatedProducts[0].NewStock != p.Stock-1 {
		t.Fatalf("stock update mismatch: %+v (prior stock %d)", purchase.UpdatedProducts, p.Stock)
	}

	var got struct {
		Data struct {
			Stock int `json:"stock"`
		} `json:"data"`
	}
	doJSON(t, http.MethodGet, baseURL+"/products/"+strconv.Itoa(p.ID), nil, &got, 200)
	if got.Data.Stock != p.Stock-1 {
		t.Fatalf("stock=%d want %d", got.Data.Stock, p.Stock-1)
	}

	var review struct {
		Success bool `json:"success"`
		Review  struct {
			ID int `json:"id"`
		} `json:"review"`
		NewAverageRating float64 `json:"newAverageRating"`
	}
	doJSON(t, http.MethodPost, baseURL+"/api/products/"+strconv.Itoa(p.ID)+"/reviews", map[string]any{
		"user": "e2e", "rating": 4, "comment": "automated check",
	}, &review, 200)
	if !review.Success || review.Review.ID == 0 {
		t.Fatalf("review not created: %+v", review)
	}

	var stock struct {
		Success  bool `json:"success"`
		NewStock int  `json:"newStock"`
	}
	doJSON(t, http.MethodPost, baseURL+"/api/products/"+strconv.Itoa(p.ID)+"/stock", map[string]any{
		"amount": 1,
	}, &stock, 200)
	if stock.NewStock != p.Stock {
		t.Fatalf("restock: newStock=%d want %d", stock.NewStock, p.Stock)
	}
}

func TestSystem_E2E_Misc(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	waitReady(t, ctx, baseURL+"/readyz")

	var tm struct {
		Time   string `json:"time"`
		Server string `json:"server"`
	}
	doJSON(t, http.MethodGet, baseURL+"/time", nil, &tm, 200)
	if _, err := time.Parse(time.RFC3339, tm.Time); err != nil {
		t.Fatalf("time not RFC3339: %q (%v)", tm.Time, err)
	}

	var echo struct {
		Received bool           `json:"received"`
		Data     map[string]any `json:"data"`
	}
	doJSON(t, http.MethodPost, baseURL+"/echo", map[string]any{"ping": "pong"}, &echo, 200)
	if !echo.Received || echo.Data["ping"] != "pong" {
		t.Fatalf("echo mismatch: %+v", echo)
	}
}

func waitReady(t *testing.T, ctx context.Context, url string) {
	t.Helper()
	client := &http.Client{Timeout: 2 * time.Second}

	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		resp, err := client.Do(req)
		if err == nil && resp != nil && resp.StatusCode == 200 {
			_ = resp.Body.Close()
			return
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("service not ready: %s", url)
}

func doJSON(t *testing.T, method, url string, body any, out any, want int) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		t.Fatalf("%s %s: status=%d want=%d", method, url, resp.StatusCode, want)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

