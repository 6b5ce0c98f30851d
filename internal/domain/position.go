package domain

import (
	"fmt"
	"math"
)

// Position is an immutable WGS-84 coordinate pair.
type Position struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// Warsaw is the stock fallback position.
var Warsaw = NewPosition().Lat(52.229990).Lng(21.011572).Build()

// At returns the position at the given coordinates.
func At(lat, lng float64) Position {
	return Position{Latitude: lat, Longitude: lng}
}

// Validate reports whether the coordinates are finite and within bounds.
func (p Position) Validate() error {
	switch {
	case math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude):
		return fmt.Errorf("%w: NaN coordinate", ErrInvalidPosition)
	case p.Latitude < -90 || p.Latitude > 90:
		return fmt.Errorf("%w: latitude %f out of range", ErrInvalidPosition, p.Latitude)
	case p.Longitude < -180 || p.Longitude > 180:
		return fmt.Errorf("%w: longitude %f out of range", ErrInvalidPosition, p.Longitude)
	}
	return nil
}

func (p Position) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.Latitude, p.Longitude)
}

// PositionBuilder assembles a Position field by field.
type PositionBuilder struct {
	lat float64
	lng float64
}

// NewPosition starts a builder at (0, 0).
func NewPosition() *PositionBuilder {
	return &PositionBuilder{}
}

func (b *PositionBuilder) Lat(v float64) *PositionBuilder {
	b.lat = v
	return b
}

func (b *PositionBuilder) Lng(v float64) *PositionBuilder {
	b.lng = v
	return b
}

// Build returns the assembled Position. The builder can be reused.
func (b *PositionBuilder) Build() Position {
	return Position{Latitude: b.lat, Longitude: b.lng}
}
