package catalog

import (
	"context"
	"errors"
	"strings"
)

// DefaultProductType is used when the catalog record carries no product type.
const DefaultProductType = "home accessory"

// ErrNotFound indicates the product identifier did not resolve.
var ErrNotFound = errors.New("catalog: product not found")

// Product is an immutable catalog record.
type Product struct {
	ID          string
	Title       string
	ProductType string
	Description string
	ImageURL    string
	URL         string
}

// Resolver looks up a single product by identifier.
type Resolver interface {
	Resolve(ctx context.Context, productID string) (Product, error)
}

// Lister returns the storefront's browsable products.
type Lister interface {
	List(ctx context.Context) ([]Product, error)
}

func normalizeType(productType string) string {
	if trimmed := strings.TrimSpace(productType); trimmed != "" {
		return trimmed
	}

	return DefaultProductType
}
