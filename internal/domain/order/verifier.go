package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/baminaj/storefront/internal/domain/cart"
	"github.com/baminaj/storefront/internal/domain/product"
)

// PriceVerifier recomputes an order's true total from the catalog at checkout
// time. It exists to defeat a client that could otherwise submit arbitrary
// prices: the amount charged is always the verified total, never any
// client-held total.
type PriceVerifier struct {
	products product.Repository
}

// NewPriceVerifier creates a PriceVerifier backed by the given catalog.
func NewPriceVerifier(products product.Repository) *PriceVerifier {
	return &PriceVerifier{products: products}
}

// Verify fetches the current catalog price for every cart line in a single
// batch and returns verified items plus their total, rounded to 2 decimal
// places. A line referencing a missing product aborts the whole verification
// with *ProductUnavailableError; partial results are never returned.
func (v *PriceVerifier) Verify(ctx context.Context, lines []cart.Line) ([]Item, decimal.Decimal, error) {
	if len(lines) == 0 {
		return nil, decimal.Zero, ErrEmptyCart
	}

	ids := make([]string, len(lines))
	for i, line := range lines {
		if line.Quantity <= 0 {
			return nil, decimal.Zero, &InvalidQuantityError{ProductID: line.ProductID}
		}
		ids[i] = line.ProductID
	}

	fetched, err := v.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, errors.Wrap(err, "get products")
	}

	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	items := make([]Item, len(lines))
	total := decimal.Zero
	for i, line := range lines {
		p, ok := byID[line.ProductID]
		if !ok {
			return nil, decimal.Zero, &ProductUnavailableError{ProductID: line.ProductID}
		}
		items[i] = Item{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  line.Quantity,
			UnitPrice: p.Price,
		}
		total = total.Add(items[i].LineTotal())
	}

	return items, total.Round(2), nil
}
