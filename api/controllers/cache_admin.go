package controllers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rfigueroa/shopworks-backend/api/responses"
	"github.com/rfigueroa/shopworks-backend/pkg/cache"
	pkgerrors "github.com/rfigueroa/shopworks-backend/pkg/errors"
	"github.com/rfigueroa/shopworks-backend/pkg/logger"
)

// CacheAdmin is the operational surface of the two-tier cache.
type CacheAdmin interface {
	Size(ctx context.Context, ns cache.Namespace) (cache.Sizes, error)
	Clear(ctx context.Context, ns cache.Namespace) error
	ClearAll(ctx context.Context) error
	Invalidate(ctx context.Context, ns cache.Namespace, ids ...string) error
	InvalidateByPattern(ctx context.Context, ns cache.Namespace, pattern string) error
}

func parseNamespace(raw string) (cache.Namespace, error) {
	for _, ns := range cache.Namespaces() {
		if string(ns) == raw {
			return ns, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown cache namespace %q", raw))
}

// CacheSizes reports per-tier entry counts, for one namespace or all of them.
func CacheSizes(admin CacheAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		namespaces := cache.Namespaces()
		if raw := r.URL.Query().Get("namespace"); raw != "" {
			ns, err := parseNamespace(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			namespaces = []cache.Namespace{ns}
		}

		sizes := make([]cache.Sizes, 0, len(namespaces))
		for _, ns := range namespaces {
			size, err := admin.Size(ctx, ns)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cache size"))
				return
			}
			sizes = append(sizes, size)
		}
		responses.WriteSuccess(w, sizes)
	}
}

// CacheClear empties one namespace on both tiers.
func CacheClear(admin CacheAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		ns, err := parseNamespace(chi.URLParam(r, "namespace"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := admin.Clear(ctx, ns); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cache clear"))
			return
		}
		logg.Info(logg.WithField(ctx, "namespace", string(ns)), "cache namespace cleared")
		responses.WriteSuccess(w, map[string]string{"namespace": string(ns), "status": "cleared"})
	}
}

// CacheClearAll wipes every namespace on both tiers.
func CacheClearAll(admin CacheAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if err := admin.ClearAll(ctx); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cache clear all"))
			return
		}
		logg.Warn(ctx, "all cache namespaces cleared")
		responses.WriteSuccess(w, map[string]string{"status": "cleared"})
	}
}

// CacheInvalidate evicts a single key, or every key matching ?pattern=.
func CacheInvalidate(admin CacheAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		ns, err := parseNamespace(chi.URLParam(r, "namespace"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		key := r.URL.Query().Get("key")
		pattern := r.URL.Query().Get("pattern")
		switch {
		case key != "" && pattern != "":
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "key and pattern are mutually exclusive"))
			return
		case key != "":
			err = admin.Invalidate(ctx, ns, key)
		case pattern != "":
			err = admin.InvalidateByPattern(ctx, ns, pattern)
		default:
			responses.WriteError(ctx, logg, w,
				pkgerrors.New(pkgerrors.CodeValidation, "key or pattern is required"))
			return
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cache invalidate"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"namespace": string(ns), "status": "invalidated"})
	}
}
