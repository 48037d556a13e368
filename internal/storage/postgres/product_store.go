// Package postgres provides the Postgres-backed product repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rtparts/catalogd/internal/catalog"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ProductStoreConfig controls the Postgres connection pool used for products.
type ProductStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ProductStore implements catalog.ProductRepository on Postgres. Save is an
// upsert keyed by article, so re-crawling a product is idempotent.
type ProductStore struct {
	pool  pgxPool
	table string
}

var _ catalog.ProductRepository = (*ProductStore)(nil)

// NewProductStore creates a Postgres-backed ProductStore using the provided config.
func NewProductStore(ctx context.Context, cfg ProductStoreConfig) (*ProductStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "products"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ProductStore{pool: pool, table: table}, nil
}

// NewProductStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewProductStoreWithPool(pool pgxPool, table string) (*ProductStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "products"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ProductStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ProductStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const productColumns = `article, title, description, brand, model, category, price, available, images, url, last_visited`

// Save upserts a product by article.
func (s *ProductStore) Save(ctx context.Context, p catalog.Product) error {
	if p.Article == "" {
		return catalog.ErrNoArticle
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (article) DO UPDATE SET
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	brand = EXCLUDED.brand,
	model = EXCLUDED.model,
	category = EXCLUDED.category,
	price = EXCLUDED.price,
	available = EXCLUDED.available,
	images = EXCLUDED.images,
	url = EXCLUDED.url,
	last_visited = EXCLUDED.last_visited;
`, s.table, productColumns)

	_, err := s.pool.Exec(ctx, query,
		p.Article,
		p.Title,
		p.Description,
		p.Brand,
		p.Model,
		p.Category,
		p.Price,
		string(p.Available),
		p.Images,
		p.URL,
		p.LastVisited,
	)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.Article, err)
	}
	return nil
}

// GetOne loads a product by article or returns catalog.ErrNotFound.
func (s *ProductStore) GetOne(ctx context.Context, article string) (*catalog.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE article = $1;`, productColumns, s.table)
	row := s.pool.QueryRow(ctx, query, article)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, catalog.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", article, err)
	}
	return &p, nil
}

// List returns every stored product.
func (s *ProductStore) List(ctx context.Context) ([]catalog.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY article;`, productColumns, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	return collectProducts(rows)
}

// ListByModel returns stored products for one model. The product-list stage
// uses this to skip links whose products are still fresh.
func (s *ProductStore) ListByModel(ctx context.Context, model string) ([]catalog.Product, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE model = $1;`, productColumns, s.table)
	rows, err := s.pool.Query(ctx, query, model)
	if err != nil {
		return nil, fmt.Errorf("list products for model %s: %w", model, err)
	}
	defer rows.Close()
	return collectProducts(rows)
}

func collectProducts(rows pgx.Rows) ([]catalog.Product, error) {
	var out []catalog.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return out, nil
}

func scanProduct(row pgx.Row) (catalog.Product, error) {
	var (
		p         catalog.Product
		available string
	)
	err := row.Scan(
		&p.Article,
		&p.Title,
		&p.Description,
		&p.Brand,
		&p.Model,
		&p.Category,
		&p.Price,
		&available,
		&p.Images,
		&p.URL,
		&p.LastVisited,
	)
	if err != nil {
		return catalog.Product{}, err
	}
	p.Available = catalog.Availability(available)
	return p, nil
}
