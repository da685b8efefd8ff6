// internal/clients/catalog_client.go
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"libracirc/internal/circulation"
)

// CatalogClient resolves catalog books over the catalog service's HTTP
// API. Calls go through a circuit breaker so a struggling catalog service
// degrades checkouts fast instead of piling up blocked requests.
type CatalogClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

// NewCatalogClient creates a catalog client for the given base URL.
func NewCatalogClient(baseURL string) *CatalogClient {
	return &CatalogClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "catalog",
			Timeout: 30 * time.Second,
		}),
	}
}

// GetBook resolves a book by id. Returns (nil, nil) when the catalog does
// not know the book.
func (c *CatalogClient) GetBook(ctx context.Context, id uuid.UUID) (*circulation.Book, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/books/%s", c.baseURL, id), nil)
		if err != nil {
			return nil, err
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return (*circulation.Book)(nil), nil
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		var book circulation.Book
		if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
			return nil, err
		}
		return &book, nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog lookup failed: %w", err)
	}
	return result.(*circulation.Book), nil
}
