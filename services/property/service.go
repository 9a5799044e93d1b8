package property

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"estately/models"
	"estately/services/session"
)

// Requester is the API surface the property service needs. Browsing is
// permitted without a session; the bearer token rides along when present.
type Requester interface {
	GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error
	PostJSON(ctx context.Context, path string, in, out interface{}) error
}

// Service exposes the property catalog and the admin mutation path.
type Service interface {
	List(ctx context.Context, filter models.PropertyFilter) (*models.PropertyPage, error)
	Get(ctx context.Context, slug string) (*models.Property, error)
	Recommendations(ctx context.Context, slug string) ([]models.Property, error)
	Create(ctx context.Context, input models.PropertyCreateInput) (*models.Property, error)
}

type DefaultPropertyService struct {
	Client Requester
	Store  session.Store
	Gate   session.Gate
}

// List fetches the paginated catalog with the optional filters applied.
func (s *DefaultPropertyService) List(ctx context.Context, filter models.PropertyFilter) (*models.PropertyPage, error) {
	query := url.Values{}
	if filter.MinPrice > 0 {
		query.Set("min_price", strconv.FormatFloat(filter.MinPrice, 'f', -1, 64))
	}
	if filter.MaxPrice > 0 {
		query.Set("max_price", strconv.FormatFloat(filter.MaxPrice, 'f', -1, 64))
	}
	if filter.MinBedrooms > 0 {
		query.Set("bedrooms", strconv.Itoa(filter.MinBedrooms))
	}
	if filter.MinBathrooms > 0 {
		query.Set("bathrooms", strconv.Itoa(filter.MinBathrooms))
	}
	if filter.Status != "" {
		query.Set("status", string(filter.Status))
	}

	page := &models.PropertyPage{}
	if err := s.Client.GetJSON(ctx, "/properties/", query, page); err != nil {
		return nil, fmt.Errorf("failed to list properties: %w", err)
	}
	return page, nil
}

// Get fetches a single listing by slug.
func (s *DefaultPropertyService) Get(ctx context.Context, slug string) (*models.Property, error) {
	p := &models.Property{}
	if err := s.Client.GetJSON(ctx, "/properties/"+url.PathEscape(slug)+"/", nil, p); err != nil {
		return nil, fmt.Errorf("failed to fetch property %q: %w", slug, err)
	}
	return p, nil
}

// Recommendations fetches listings related to the given one.
func (s *DefaultPropertyService) Recommendations(ctx context.Context, slug string) ([]models.Property, error) {
	var list []models.Property
	if err := s.Client.GetJSON(ctx, "/properties/"+url.PathEscape(slug)+"/recommendations/", nil, &list); err != nil {
		return nil, fmt.Errorf("failed to fetch recommendations for %q: %w", slug, err)
	}
	return list, nil
}

// Create adds a listing. Property mutation is admin-only and the check
// happens locally before any network call.
func (s *DefaultPropertyService) Create(ctx context.Context, input models.PropertyCreateInput) (*models.Property, error) {
	if !s.Gate.CanAccess(session.CapMutateProperty, s.Store.Get()) {
		return nil, ErrNotAllowed
	}
	p := &models.Property{}
	if err := s.Client.PostJSON(ctx, "/properties/", input, p); err != nil {
		return nil, fmt.Errorf("failed to create property: %w", err)
	}
	return p, nil
}
