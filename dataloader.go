package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"gitea.kood.tech/roomie/backend/compat"
	"github.com/graph-gophers/dataloader/v7"
)

// DataLoaderContextKey is the key used to store dataloaders in context
type DataLoaderContextKey string

const dataLoaderKey DataLoaderContextKey = "dataloader"

// DataLoaders holds the per-request loaders.
type DataLoaders struct {
	ProfileLoader *dataloader.Loader[int, *compat.UserProfile]
}

// NewDataLoaders creates fresh loaders bound to db.
func NewDataLoaders(db *sql.DB) *DataLoaders {
	return &DataLoaders{
		ProfileLoader: dataloader.NewBatchedLoader(
			profileBatchFn(db),
			dataloader.WithWait[int, *compat.UserProfile](2*time.Millisecond),
		),
	}
}

// GetDataLoadersFromContext retrieves dataloaders from context
func GetDataLoadersFromContext(ctx context.Context) *DataLoaders {
	if dl, ok := ctx.Value(dataLoaderKey).(*DataLoaders); ok {
		return dl
	}
	return nil
}

// WithDataLoaders adds dataloaders to context
func WithDataLoaders(ctx context.Context, dl *DataLoaders) context.Context {
	return context.WithValue(ctx, dataLoaderKey, dl)
}

// DataLoaderMiddleware injects fresh dataloaders into every request context.
func DataLoaderMiddleware(db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithDataLoaders(r.Context(), NewDataLoaders(db))))
		})
	}
}

// profileBatchFn loads all requested profiles with one query and keeps key order.
func profileBatchFn(db *sql.DB) dataloader.BatchFunc[int, *compat.UserProfile] {
	return func(ctx context.Context, keys []int) []*dataloader.Result[*compat.UserProfile] {
		results := make([]*dataloader.Result[*compat.UserProfile], len(keys))
		profiles, err := loadProfiles(ctx, db, keys)
		for i, key := range keys {
			switch {
			case err != nil:
				results[i] = &dataloader.Result[*compat.UserProfile]{Error: err}
			case profiles[key] == nil:
				results[i] = &dataloader.Result[*compat.UserProfile]{Error: fmt.Errorf("user %d: %w", key, errProfileNotFound)}
			default:
				results[i] = &dataloader.Result[*compat.UserProfile]{Data: profiles[key]}
			}
		}
		return results
	}
}

// profilesFor resolves many profiles, through the request's loader when present.
// Missing profiles are left out of the map rather than failing the whole call.
func profilesFor(ctx context.Context, db *sql.DB, ids []int) (map[int]*compat.UserProfile, error) {
	dl := GetDataLoadersFromContext(ctx)
	if dl == nil {
		return loadProfiles(ctx, db, ids)
	}
	out := make(map[int]*compat.UserProfile, len(ids))
	data, errs := dl.ProfileLoader.LoadMany(ctx, ids)()
	for i, id := range ids {
		if errs != nil && i < len(errs) && errs[i] != nil {
			if isNotFound(errs[i]) {
				continue
			}
			return nil, errs[i]
		}
		if data[i] != nil {
			out[id] = data[i]
		}
	}
	return out, nil
}
