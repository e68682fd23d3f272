package pagination

import "fmt"

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 25
	// MaxLimit caps how many rows any page query can request.
	MaxLimit = 100
)

// Params holds page pagination inputs from controllers or services.
type Params struct {
	Page  int
	Limit int
}

// NormalizeLimit enforces the configured default and maximum limits.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Normalize clamps both page and limit into valid ranges.
func Normalize(params Params) Params {
	if params.Page <= 0 {
		params.Page = 1
	}
	params.Limit = NormalizeLimit(params.Limit)
	return params
}

// Offset converts normalized params into a row offset.
func (p Params) Offset() int {
	norm := Normalize(p)
	return (norm.Page - 1) * norm.Limit
}

// CacheKey renders params as a stable cache-key suffix.
func (p Params) CacheKey() string {
	norm := Normalize(p)
	return fmt.Sprintf("page-%d-limit-%d", norm.Page, norm.Limit)
}
