package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 5 * time.Second
	pgUniqueCode = "23505"
)

// PostgresStore maps the whole-document contract onto SQL: Load selects the
// full catalog in stored order, Save replaces it inside one transaction.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *PostgresStore) Load(ctx context.Context) ([]Product, error) {
	var out []Product

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, name, price, stock, rating
			FROM products
			ORDER BY position ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Product, 0, 16)
		idx := make(map[int]int)
		for rows.Next() {
			var p Product
			if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.Rating); err != nil {
				return err
			}
			idx[p.ID] = len(out)
			out = append(out, p)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		return s.loadReviews(ctx, out, idx)
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) loadReviews(ctx context.Context, products []Product, idx map[int]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT product_id, id, reviewer, rating, comment, review_date
		FROM reviews
		ORDER BY product_id ASC, id ASC
	`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			pid int
			rv  Review
		)
		if err := rows.Scan(&pid, &rv.ID, &rv.User, &rv.Rating, &rv.Comment, &rv.Date); err != nil {
			return err
		}
		i, ok := idx[pid]
		if !ok {
			continue
		}
		products[i].Reviews = append(products[i].Reviews, rv)
	}
	return rows.Err()
}

func (s *PostgresStore) Save(ctx context.Context, products []Product) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `DELETE FROM reviews`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM products`); err != nil {
			return err
		}

		if err := insertProducts(ctx, tx, products); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func insertProducts(ctx context.Context, tx *sql.Tx, products []Product) error {
	pStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (id, name, price, stock, rating, position)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return err
	}
	defer pStmt.Close()

	rStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reviews (product_id, id, reviewer, rating, comment, review_date)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return err
	}
	defer rStmt.Close()

	for pos, p := range products {
		if _, err := pStmt.ExecContext(ctx, p.ID, p.Name, p.Price, p.Stock, p.Rating, pos); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("duplicate product id %d: %w", p.ID, err)
			}
			return err
		}
		for _, rv := range p.Reviews {
			if _, err := rStmt.ExecContext(ctx, p.ID, rv.ID, rv.User, rv.Rating, rv.Comment, rv.Date); err != nil {
				return err
			}
		}
	}
	return nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueCode
}
