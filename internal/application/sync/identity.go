package sync

import (
	"context"
	"errors"
	"fmt"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/blyon/qbnx/internal/domain/sync"
)

// Resolver finds the target-system account for a source customer. Results
// are cached for the resolver's lifetime; one resolver serves one run.
type Resolver struct {
	target      sync.Client
	placeholder string
	cache       *gocache.Cache
	logger      *zap.Logger
}

// NewResolver creates a resolver against the given target system
func NewResolver(target sync.Client, placeholder string, logger *zap.Logger) *Resolver {
	return &Resolver{
		target:      target,
		placeholder: placeholder,
		cache:       gocache.New(gocache.NoExpiration, 0),
		logger:      logger,
	}
}

// Resolve returns the target account for customer, or ErrNotFound when the
// target has none yet. Consumers resolve to the configured placeholder
// account; their own name and email are never matched against the target.
func (r *Resolver) Resolve(ctx context.Context, customer *sync.Customer) (*sync.Customer, error) {
	key := r.cacheKey(customer)
	if hit, ok := r.cache.Get(key); ok {
		return hit.(*sync.Customer), nil
	}
	found, err := r.lookup(ctx, customer)
	if err != nil {
		return nil, err
	}
	r.cache.Set(key, found, gocache.NoExpiration)
	return found, nil
}

func (r *Resolver) lookup(ctx context.Context, customer *sync.Customer) (*sync.Customer, error) {
	if customer.Type == sync.CustomerTypeConsumer {
		found, err := r.target.QueryCustomerByName(ctx, r.placeholder)
		if errors.Is(err, sync.ErrNotFound) {
			return nil, fmt.Errorf("%w: placeholder customer %q", sync.ErrNotFound, r.placeholder)
		}
		return found, err
	}
	if customer.CrossID != "" {
		return r.target.QueryCustomerByID(ctx, customer.CrossID)
	}
	return r.target.QueryCustomerByName(ctx, customer.FullName())
}

// Remember caches resolved as the target account for customer, so records
// created mid-run skip the lookup on their next order
func (r *Resolver) Remember(customer, resolved *sync.Customer) {
	r.cache.Set(r.cacheKey(customer), resolved, gocache.NoExpiration)
}

// OrderExists reports whether the target already holds an order with ref
func (r *Resolver) OrderExists(ctx context.Context, ref string) (bool, error) {
	_, err := r.target.QueryOrderByRef(ctx, ref)
	if errors.Is(err, sync.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// All consumers share one placeholder account, so they share a cache slot.
func (r *Resolver) cacheKey(c *sync.Customer) string {
	if c.Type == sync.CustomerTypeConsumer {
		return "consumer"
	}
	return c.ID
}
