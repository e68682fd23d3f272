package cache

import (
	"time"

	"github.com/rfigueroa/shopworks-backend/pkg/config"
)

// Namespace partitions the cache keyspace by entity family. TTLs and
// invalidation fan-out are decided per namespace.
type Namespace string

const (
	NamespaceProducts     Namespace = "products"
	NamespaceProductsList Namespace = "products_list"
	NamespaceCategories   Namespace = "categories"
	NamespaceCarts        Namespace = "carts"
	NamespaceSessions     Namespace = "sessions"
	NamespaceSearch       Namespace = "search"
	NamespaceOrders       Namespace = "orders"
)

var allNamespaces = []Namespace{
	NamespaceProducts,
	NamespaceProductsList,
	NamespaceCategories,
	NamespaceCarts,
	NamespaceSessions,
	NamespaceSearch,
	NamespaceOrders,
}

// Namespaces returns every known namespace.
func Namespaces() []Namespace {
	return append([]Namespace(nil), allNamespaces...)
}

// TTLPolicy resolves the lifetime for entries in each namespace.
type TTLPolicy struct {
	cfg config.CacheConfig
}

// NewTTLPolicy builds the policy from configuration, falling back to the
// documented defaults for zero values.
func NewTTLPolicy(cfg config.CacheConfig) TTLPolicy {
	if cfg.ProductTTL <= 0 {
		cfg.ProductTTL = time.Hour
	}
	if cfg.CategoryTTL <= 0 {
		cfg.CategoryTTL = time.Hour
	}
	if cfg.CartTTL <= 0 {
		cfg.CartTTL = 15 * time.Minute
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.SearchTTL <= 0 {
		cfg.SearchTTL = 30 * time.Minute
	}
	if cfg.OrderTTL <= 0 {
		cfg.OrderTTL = time.Hour
	}
	return TTLPolicy{cfg: cfg}
}

// TTLFor returns the namespace lifetime.
func (p TTLPolicy) TTLFor(ns Namespace) time.Duration {
	switch ns {
	case NamespaceProducts, NamespaceProductsList:
		return p.cfg.ProductTTL
	case NamespaceCategories:
		return p.cfg.CategoryTTL
	case NamespaceCarts:
		return p.cfg.CartTTL
	case NamespaceSessions:
		return p.cfg.SessionTTL
	case NamespaceSearch:
		return p.cfg.SearchTTL
	case NamespaceOrders:
		return p.cfg.OrderTTL
	default:
		return p.cfg.ProductTTL
	}
}

// fanOutFor lists the namespaces coarsely evicted alongside a direct
// invalidation. Product writes stale both search result sets and listing
// pages; category writes stale listing pages.
func fanOutFor(ns Namespace) []Namespace {
	switch ns {
	case NamespaceProducts:
		return []Namespace{NamespaceSearch, NamespaceProductsList}
	case NamespaceCategories:
		return []Namespace{NamespaceProductsList}
	default:
		return nil
	}
}
