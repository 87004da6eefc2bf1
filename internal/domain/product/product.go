package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. The catalog is
// the only trustworthy source of line prices; anything a client submits is
// advisory.
type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	Category    string
	ImageRef    string
	Description string
}

// Repository defines read operations for the product catalog. This core never
// writes to the catalog; catalog management lives in the seed and ingest tools.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
