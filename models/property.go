package models

import "time"

// PropertyStatus mirrors the server's listing states.
type PropertyStatus string

const (
	PropertyActive   PropertyStatus = "active"
	PropertyInactive PropertyStatus = "inactive"
	PropertySold     PropertyStatus = "sold"
)

// Property is a real-estate listing as served by the remote API.
type Property struct {
	ID           int64          `json:"id"`
	Name         string         `json:"name"`
	Slug         string         `json:"slug"`
	Description  string         `json:"description,omitempty"`
	Location     string         `json:"location"`
	Price        string         `json:"price"`
	Bedrooms     int            `json:"bedrooms"`
	Bathrooms    int            `json:"bathrooms"`
	SquareFeet   int            `json:"square_feet,omitempty"`
	Amenities    []string       `json:"amenities,omitempty"`
	Status       PropertyStatus `json:"status"`
	CategoryName string         `json:"category_name,omitempty"`
	Image        string         `json:"image,omitempty"`
	Featured     bool           `json:"featured"`
	CreatedAt    time.Time      `json:"created_at"`
}

// PropertyFilter holds the optional listing query filters. Zero values are
// omitted from the query string.
type PropertyFilter struct {
	MinPrice     float64
	MaxPrice     float64
	MinBedrooms  int
	MinBathrooms int
	Status       PropertyStatus
}

// PropertyPage is the server's paginated listing envelope.
type PropertyPage struct {
	Count    int        `json:"count"`
	Next     string     `json:"next,omitempty"`
	Previous string     `json:"previous,omitempty"`
	Results  []Property `json:"results"`
}

// PropertyCreateInput is the admin payload for creating a listing.
type PropertyCreateInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Location    string   `json:"location"`
	Price       string   `json:"price"`
	Bedrooms    int      `json:"bedrooms"`
	Bathrooms   int      `json:"bathrooms"`
	SquareFeet  int      `json:"square_feet,omitempty"`
	Amenities   []string `json:"amenities,omitempty"`
	Category    int64    `json:"category"`
}
