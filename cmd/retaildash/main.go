package main

import (
	"database/sql"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"RetailDash/internal/inventory"
	"RetailDash/pkg/kit"
)

const (
	purchaseLimitPerMin = 30
	limitWindowSeconds  = 60
)

func main() {
	service := "retaildash"
	log := kit.NewLogger(service)
	defer func() { _ = log.Sync() }()

	port := getenv("PORT", "3000")
	dataFile := getenv("DATA_FILE", "data/products.json")
	imagesDir := getenv("IMAGES_DIR", "data/images")
	dbURL := getenv("DATABASE_URL", "")

	store, err := buildStore(dbURL, dataFile)
	if err != nil {
		log.Fatal("store init failed", zap.Error(err))
	}

	s := &inventory.Server{
		Inventory:       inventory.NewService(store),
		Log:             log,
		ImagesDir:       imagesDir,
		PurchaseLimiter: kit.NewIPRateLimiter(purchaseLimitPerMin, limitWindowSeconds),
	}

	h := inventory.NewHandler(s, inventory.HTTPDeps{
		Log:            log,
		Service:        service,
		Registry:       prometheus.NewRegistry(),
		MetricsEnabled: getenv("METRICS_ENABLED", "") == "1",
		MetricsToken:   getenv("METRICS_TOKEN", ""),
	})

	if err := kit.RunHTTPServer(":"+port, h, log); err != nil {
		log.Fatal("http server stopped", zap.Error(err))
	}
}

// buildStore picks the backend: flat JSON file by default, Postgres when
// DATABASE_URL is set.
func buildStore(dbURL, dataFile string) (inventory.Store, error) {
	if dbURL == "" {
		return inventory.NewFileStore(dataFile), nil
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, err
	}
	return inventory.NewPostgresStore(db), nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
