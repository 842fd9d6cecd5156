// Package sync orchestrates reconciliation runs between the storefront and
// the ledger: paged pulls with disk spill under memory pressure, identity
// resolution, record mapping and categorized run reports. Per-record
// failures are reported and never abort a run; authentication and spill
// I/O failures do.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/blyon/qbnx/internal/domain/sync"
	"github.com/blyon/qbnx/internal/infrastructure/cache"
)

// Direction selects which system feeds a sync run
type Direction string

const (
	// DirectionStorefrontToLedger books paid storefront orders into the ledger
	DirectionStorefrontToLedger Direction = "storefront to ledger"
	// DirectionLedgerToStorefront pushes ledger-entered orders to the storefront
	DirectionLedgerToStorefront Direction = "ledger to storefront"
)

// Config carries the orchestration settings shared by both directions
type Config struct {
	// PlaceholderCustomer is the ledger account consumer orders book against
	PlaceholderCustomer string
	// LedgerCrossRefKey is the custom field on ledger records holding the
	// storefront identifier
	LedgerCrossRefKey string
	// StorefrontCrossRefKey is the custom field on storefront records
	// holding the ledger identifier
	StorefrontCrossRefKey string
	// RefPrefix marks ledger ref numbers that originated on the storefront
	RefPrefix string
	// CustomerBlacklist names ledger accounts never pushed to the storefront
	CustomerBlacklist []string
	// MemoryCap bounds the bytes of pulled orders held in memory before
	// batches spill to disk
	MemoryCap int64
	// InventorySite is the ledger site inventory is read from; empty reads
	// all sites
	InventorySite string
	// OutOfStateTaxName is the tax item applied to untaxed orders
	OutOfStateTaxName string
}

// Orchestrator drives sync runs between the two systems
type Orchestrator struct {
	cfg        Config
	storefront sync.Client
	ledger     sync.Client
	taxes      TaxService
	inventory  sync.InventorySource
	stock      sync.InventoryTarget
	spill      *cache.Store
	logger     *zap.Logger
}

// NewOrchestrator wires an orchestrator from its collaborators. taxes,
// inventory and stock may be nil when the corresponding run kinds are not
// used.
func NewOrchestrator(cfg Config, storefront, ledger sync.Client, taxes TaxService,
	inventory sync.InventorySource, stock sync.InventoryTarget,
	spill *cache.Store, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:        cfg,
		storefront: storefront,
		ledger:     ledger,
		taxes:      taxes,
		inventory:  inventory,
		stock:      stock,
		spill:      spill,
		logger:     logger,
	}
}

// endpoint binds one direction's plumbing: the source and target clients,
// the resolver and mapper against the target, and the report categories
// failures land in
type endpoint struct {
	source       sync.Client
	target       sync.Client
	resolver     *Resolver
	mapper       *Mapper
	customers    *gocache.Cache
	sourceStatus *sync.PaymentStatus
	targetKey    string
	sourceKey    string
	success      sync.Category
	orderErrs    sync.Category
	customerErrs sync.Category
	filtered     bool
	spillKey     string
	refFor       func(*sync.Order) string
}

func (o *Orchestrator) endpoint(direction Direction) (*endpoint, error) {
	switch direction {
	case DirectionStorefrontToLedger:
		status := sync.PaymentStatusPaid
		return &endpoint{
			source:    o.storefront,
			target:    o.ledger,
			resolver:  NewResolver(o.ledger, o.cfg.PlaceholderCustomer, o.logger),
			customers: gocache.New(gocache.NoExpiration, 0),
			mapper: NewMapper(MapperConfig{
				RefPrefix:         o.cfg.RefPrefix,
				OutOfStateTaxName: o.cfg.OutOfStateTaxName,
			}, o.taxes, o.logger),
			sourceStatus: &status,
			targetKey:    o.cfg.LedgerCrossRefKey,
			sourceKey:    o.cfg.StorefrontCrossRefKey,
			success:      sync.CategoryLedgerSuccess,
			orderErrs:    sync.CategoryLedgerOrder,
			customerErrs: sync.CategoryLedgerCustomer,
			spillKey:     "storefront_orders",
			refFor: func(ord *sync.Order) string {
				ref := ord.Ref
				if ref == "" {
					ref = ord.ID
				}
				return o.cfg.RefPrefix + strings.TrimPrefix(ref, o.cfg.RefPrefix)
			},
		}, nil
	case DirectionLedgerToStorefront:
		return &endpoint{
			source:    o.ledger,
			target:    o.storefront,
			resolver:  NewResolver(o.storefront, o.cfg.PlaceholderCustomer, o.logger),
			customers: gocache.New(gocache.NoExpiration, 0),
			mapper: NewMapper(MapperConfig{
				OutOfStateTaxName: o.cfg.OutOfStateTaxName,
			}, nil, o.logger),
			targetKey:    o.cfg.StorefrontCrossRefKey,
			sourceKey:    o.cfg.LedgerCrossRefKey,
			success:      sync.CategoryStorefrontSuccess,
			orderErrs:    sync.CategoryStorefrontOrder,
			customerErrs: sync.CategoryStorefrontCustomer,
			filtered:     true,
			spillKey:     "ledger_orders",
			refFor: func(ord *sync.Order) string {
				if ord.Ref != "" {
					return ord.Ref
				}
				return ord.ID
			},
		}, nil
	default:
		return nil, fmt.Errorf("%w: direction %q", sync.ErrValidation, direction)
	}
}

// ---------------------------------------------------------------------------
// Order Sync
// ---------------------------------------------------------------------------

// Run executes one order sync pass in the given direction over the trailing
// window. The returned report always carries the outcome; the error is
// non-nil only for fatal failures that aborted the run.
func (o *Orchestrator) Run(ctx context.Context, direction Direction, window time.Duration) (*sync.Report, error) {
	report := sync.NewReport(string(direction))
	defer func() { report.FinishedAt = time.Now() }()

	ep, err := o.endpoint(direction)
	if err != nil {
		report.Add(sync.CategoryFatal, "run aborted: %v", err)
		return report, err
	}
	if err := o.openSessions(ctx, report, ep.source, ep.target); err != nil {
		return report, err
	}
	defer o.closeSessions(ctx, ep.source, ep.target)

	if err := o.spill.Purge(ep.spillKey); err != nil {
		report.Add(sync.CategoryFatal, "spill purge failed: %v", err)
		return report, err
	}
	defer o.spill.Purge(ep.spillKey)

	o.logger.Info("sync run started",
		zap.String("direction", string(direction)),
		zap.Duration("window", window),
		zap.String("run_id", report.RunID.String()))

	end := time.Now()
	req := &sync.QueryOrdersRequest{
		Start:  end.Add(-window),
		End:    end,
		Status: ep.sourceStatus,
		Page:   1,
	}

	var pending []sync.Order
	var pendingBytes int64
	spilled := false
	for {
		resp, err := ep.source.QueryOrders(ctx, req)
		if err != nil {
			report.Add(sync.CategoryFatal, "order query failed on %s: %v", ep.source.Name(), err)
			return report, err
		}
		pending = append(pending, resp.Orders...)
		pendingBytes += estimateSize(resp.Orders)
		if o.cfg.MemoryCap > 0 && pendingBytes >= o.cfg.MemoryCap && len(pending) > 0 {
			if err := o.spill.Write(ep.spillKey, pending); err != nil {
				report.Add(sync.CategoryFatal, "spill write failed: %v", err)
				return report, err
			}
			spilled = true
			pending = nil
			pendingBytes = 0
		}
		if !resp.HasMore {
			break
		}
		req.Page = resp.NextPage
	}

	// Every batch drains through processBatch. Once the run has spilled,
	// the in-memory remnant joins the spill so order is preserved.
	if !spilled {
		o.processBatch(ctx, ep, pending, report)
		return report, nil
	}
	if len(pending) > 0 {
		if err := o.spill.Write(ep.spillKey, pending); err != nil {
			report.Add(sync.CategoryFatal, "spill write failed: %v", err)
			return report, err
		}
	}
	for {
		batch, err := o.spill.Read(ep.spillKey)
		if err != nil {
			report.Add(sync.CategoryFatal, "spill read failed: %v", err)
			return report, err
		}
		if batch == nil {
			break
		}
		o.processBatch(ctx, ep, batch, report)
	}
	return report, nil
}

func (o *Orchestrator) processBatch(ctx context.Context, ep *endpoint, orders []sync.Order, report *sync.Report) {
	for i := range orders {
		o.processOrder(ctx, ep, &orders[i], report)
	}
}

func (o *Orchestrator) processOrder(ctx context.Context, ep *endpoint, order *sync.Order, report *sync.Report) {
	if order.CrossID != "" {
		o.logger.Debug("order already cross-referenced", zap.String("order", order.ID))
		return
	}
	if ep.filtered && strings.HasPrefix(order.Ref, o.cfg.RefPrefix) {
		// Prefixed ref numbers originated on the storefront.
		o.logger.Debug("order originated on target", zap.String("ref", order.Ref))
		return
	}

	ref := ep.refFor(order)
	exists, err := ep.resolver.OrderExists(ctx, ref)
	if err != nil {
		report.Add(ep.orderErrs, "order %s: lookup failed: %v", order.ID, err)
		return
	}
	if exists {
		o.logger.Debug("order already on target",
			zap.String("order", order.ID),
			zap.String("ref", ref))
		return
	}

	customer, err := o.resolveCustomer(ctx, ep, order, report)
	if err != nil {
		report.Add(ep.customerErrs, "order %s: %v", order.ID, err)
		return
	}
	if customer == nil {
		return
	}

	draft, err := ep.mapper.BuildTargetOrder(ctx, order, customer)
	if err != nil {
		report.Add(ep.orderErrs, "order %s: %v", order.ID, err)
		return
	}
	created, err := ep.target.CreateOrder(ctx, draft)
	if err != nil {
		report.Add(ep.orderErrs, "order %s: create failed: %v", order.ID, err)
		return
	}
	if err := ep.target.SetCrossReference(ctx, sync.EntityKindOrder, created.ID, ep.targetKey, order.ID); err != nil {
		report.Add(ep.orderErrs, "order %s: cross-reference failed: %v", order.ID, err)
		return
	}
	if err := ep.source.SetCrossReference(ctx, sync.EntityKindOrder, order.ID, ep.sourceKey, created.ID); err != nil {
		report.Add(ep.orderErrs, "order %s: source cross-reference failed: %v", order.ID, err)
		return
	}
	report.Add(ep.success, "order %s synced as %s", order.ID, ref)
}

// resolveCustomer returns the target account for the ordering customer,
// creating one for unknown business accounts. A nil customer with nil error
// means the order is filtered out.
func (o *Orchestrator) resolveCustomer(ctx context.Context, ep *endpoint, order *sync.Order, report *sync.Report) (*sync.Customer, error) {
	src, err := o.sourceCustomer(ctx, ep, order.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("customer %s: lookup failed: %w", order.CustomerID, err)
	}
	if ep.filtered && o.blacklisted(src.FullName()) {
		o.logger.Debug("customer blacklisted", zap.String("customer", src.FullName()))
		return nil, nil
	}

	resolved, err := ep.resolver.Resolve(ctx, src)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, sync.ErrNotFound) {
		return nil, fmt.Errorf("customer %s: lookup failed: %w", src.ID, err)
	}
	if src.Type == sync.CustomerTypeConsumer {
		// The placeholder account is provisioned by hand, never created here.
		return nil, err
	}

	draft, err := ep.mapper.BuildTargetCustomer(src, order)
	if err != nil {
		return nil, err
	}
	created, err := ep.target.CreateCustomer(ctx, draft)
	if err != nil {
		return nil, fmt.Errorf("customer %s: create failed: %w", src.ID, err)
	}
	if err := ep.target.SetCrossReference(ctx, sync.EntityKindCustomer, created.ID, ep.targetKey, src.ID); err != nil {
		return nil, fmt.Errorf("customer %s: cross-reference failed: %w", src.ID, err)
	}
	if err := ep.source.SetCrossReference(ctx, sync.EntityKindCustomer, src.ID, ep.sourceKey, created.ID); err != nil {
		return nil, fmt.Errorf("customer %s: source cross-reference failed: %w", src.ID, err)
	}
	ep.resolver.Remember(src, created)
	report.Add(ep.success, "customer %s created as %s", src.FullName(), created.ID)
	return created, nil
}

// sourceCustomer fetches the ordering customer from the source system,
// cached for the run so repeat orders from one customer cost one lookup
func (o *Orchestrator) sourceCustomer(ctx context.Context, ep *endpoint, id string) (*sync.Customer, error) {
	if hit, ok := ep.customers.Get(id); ok {
		return hit.(*sync.Customer), nil
	}
	src, err := ep.source.QueryCustomerByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ep.customers.Set(id, src, gocache.NoExpiration)
	return src, nil
}

func (o *Orchestrator) blacklisted(name string) bool {
	for _, b := range o.cfg.CustomerBlacklist {
		if strings.EqualFold(b, name) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Inventory Sync
// ---------------------------------------------------------------------------

// RunInventory pulls on-hand quantities from the ledger and pushes them to
// the storefront
func (o *Orchestrator) RunInventory(ctx context.Context) (*sync.Report, error) {
	report := sync.NewReport("inventory")
	defer func() { report.FinishedAt = time.Now() }()

	if o.inventory == nil || o.stock == nil {
		err := fmt.Errorf("%w: inventory endpoints not configured", sync.ErrValidation)
		report.Add(sync.CategoryFatal, "run aborted: %v", err)
		return report, err
	}
	if err := o.openSessions(ctx, report, o.ledger, o.storefront); err != nil {
		return report, err
	}
	defer o.closeSessions(ctx, o.ledger, o.storefront)

	items, err := o.inventory.QueryInventory(ctx, o.cfg.InventorySite)
	if err != nil {
		report.Add(sync.CategoryFatal, "inventory query failed: %v", err)
		return report, err
	}
	if len(items) == 0 {
		o.logger.Info("no inventory to push")
		return report, nil
	}
	if err := o.stock.UpdateInventory(ctx, items); err != nil {
		report.Add(sync.CategoryStorefrontOrder, "inventory update failed: %v", err)
		return report, nil
	}
	report.Add(sync.CategoryStorefrontSuccess, "inventory: %d items updated", len(items))
	return report, nil
}

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

func (o *Orchestrator) openSessions(ctx context.Context, report *sync.Report, clients ...sync.Client) error {
	for _, c := range clients {
		if err := c.Authenticate(ctx); err != nil {
			report.Add(sync.CategoryFatal, "authentication failed on %s: %v", c.Name(), err)
			return err
		}
	}
	return nil
}

func (o *Orchestrator) closeSessions(ctx context.Context, clients ...sync.Client) {
	for _, c := range clients {
		if err := c.Close(ctx); err != nil {
			o.logger.Warn("session close failed",
				zap.String("system", c.Name()),
				zap.Error(err))
		}
	}
}

// estimateSize approximates the memory held by a pulled page as its
// serialized length
func estimateSize(orders []sync.Order) int64 {
	data, err := json.Marshal(orders)
	if err != nil {
		return 0
	}
	return int64(len(data))
}
