// Package storage resolves opaque clip locators from tool-tracking
// snapshots to fetchable URLs.
package storage

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Resolver maps a clip locator to a URL a client can fetch.
type Resolver interface {
	ResolveURL(ctx context.Context, locator string) (string, error)
}

// SupabaseResolver resolves locators against a Supabase-style storage
// API using public object URLs. The object is verified to exist with a
// HEAD request before the URL is handed out.
type SupabaseResolver struct {
	BaseURL string
	Bucket  string
	Client  *http.Client
}

// NewSupabaseResolver constructs a resolver for the given storage
// endpoint and bucket.
func NewSupabaseResolver(baseURL, bucket string) *SupabaseResolver {
	return &SupabaseResolver{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Bucket:  bucket,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// ResolveURL builds the public object URL for a locator and checks that
// the object exists.
func (s *SupabaseResolver) ResolveURL(ctx context.Context, locator string) (string, error) {
	if s.BaseURL == "" {
		return "", fmt.Errorf("storage base URL not configured")
	}
	locator = strings.TrimLeft(strings.TrimSpace(locator), "/")
	if locator == "" {
		return "", fmt.Errorf("empty clip locator")
	}

	publicURL := fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.BaseURL, s.Bucket, locator)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, publicURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create existence check request: %v", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("existence check failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("clip %s not available: status %d", locator, resp.StatusCode)
	}
	return publicURL, nil
}
