package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	shopifyAPIVersion = "2024-10"
	listPageSize      = 50
	listCacheTTL      = 2 * time.Minute
)

// ShopifyClient resolves products through the Shopify Admin REST API.
type ShopifyClient struct {
	baseURL     string
	storeDomain string
	token       string
	client      *http.Client

	mu          sync.RWMutex
	cached      []Product
	cacheExpiry time.Time
}

// ShopifyConfig describes how to reach the store.
type ShopifyConfig struct {
	StoreDomain string
	AdminToken  string
	BaseURL     string // override for tests; derived from StoreDomain when empty
	Timeout     time.Duration
}

// NewShopifyClient wires a catalog client for the configured store.
func NewShopifyClient(cfg ShopifyConfig) *ShopifyClient {
	domain := strings.TrimSpace(cfg.StoreDomain)
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" && domain != "" {
		base = fmt.Sprintf("https://%s/admin/api/%s", domain, shopifyAPIVersion)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &ShopifyClient{
		baseURL:     base,
		storeDomain: domain,
		token:       strings.TrimSpace(cfg.AdminToken),
		client:      &http.Client{Timeout: timeout},
	}
}

type shopifyImage struct {
	Src string `json:"src"`
}

type shopifyProduct struct {
	ID          json.Number   `json:"id"`
	Title       string        `json:"title"`
	BodyHTML    string        `json:"body_html"`
	ProductType string        `json:"product_type"`
	Handle      string        `json:"handle"`
	Image       *shopifyImage `json:"image"`
}

// Resolve fetches one product by its numeric identifier.
func (c *ShopifyClient) Resolve(ctx context.Context, productID string) (Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return Product{}, fmt.Errorf("catalog: empty product id")
	}

	var payload struct {
		Product *shopifyProduct `json:"product"`
	}
	status, err := c.get(ctx, fmt.Sprintf("/products/%s.json", url.PathEscape(id)), &payload)
	if err != nil {
		return Product{}, err
	}
	if status == http.StatusNotFound || payload.Product == nil {
		return Product{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return c.toProduct(*payload.Product), nil
}

// List returns the first page of the store's products. Results are cached
// briefly; the listing backs a read-only browse endpoint and does not need to
// be fresher than the cache window.
func (c *ShopifyClient) List(ctx context.Context) ([]Product, error) {
	now := time.Now()

	c.mu.RLock()
	if c.cached != nil && c.cacheExpiry.After(now) {
		products := c.cached
		c.mu.RUnlock()
		return products, nil
	}
	c.mu.RUnlock()

	var payload struct {
		Products []shopifyProduct `json:"products"`
	}
	status, err := c.get(ctx, fmt.Sprintf("/products.json?limit=%d", listPageSize), &payload)
	if err != nil {
		return nil, err
	}
	if status >= 300 {
		return nil, fmt.Errorf("catalog: list status %d", status)
	}

	products := make([]Product, 0, len(payload.Products))
	for _, p := range payload.Products {
		products = append(products, c.toProduct(p))
	}

	c.mu.Lock()
	c.cached = products
	c.cacheExpiry = now.Add(listCacheTTL)
	c.mu.Unlock()

	return products, nil
}

func (c *ShopifyClient) get(ctx context.Context, path string, out any) (int, error) {
	if c.baseURL == "" {
		return 0, fmt.Errorf("catalog: store not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("X-Shopify-Access-Token", c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("catalog: perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil
	}
	if resp.StatusCode >= 300 {
		var failure struct {
			Errors any `json:"errors"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&failure)
		return resp.StatusCode, fmt.Errorf("catalog: status %d: %v", resp.StatusCode, failure.Errors)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("catalog: decode response: %w", err)
	}

	return resp.StatusCode, nil
}

func (c *ShopifyClient) toProduct(p shopifyProduct) Product {
	product := Product{
		ID:          p.ID.String(),
		Title:       strings.TrimSpace(p.Title),
		ProductType: normalizeType(p.ProductType),
		Description: stripHTML(p.BodyHTML),
	}
	if p.Image != nil {
		product.ImageURL = p.Image.Src
	}
	if p.Handle != "" && c.storeDomain != "" {
		product.URL = fmt.Sprintf("https://%s/products/%s", c.storeDomain, p.Handle)
	}

	return product
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

func stripHTML(raw string) string {
	clean := tagPattern.ReplaceAllString(raw, " ")
	return strings.Join(strings.Fields(clean), " ")
}
