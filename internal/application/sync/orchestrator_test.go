package sync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blyon/qbnx/internal/domain/sync"
	"github.com/blyon/qbnx/internal/infrastructure/cache"
)

// ---------------------------------------------------------------------------
// Fake Client
// ---------------------------------------------------------------------------

type fakeClient struct {
	name        string
	pages       [][]sync.Order
	byRef       map[string]bool
	customers   map[string]*sync.Customer
	byName      map[string]*sync.Customer
	nameLookups []string
	idLookups   []string
	created     []*sync.OrderDraft
	createdCust []*sync.CustomerDraft
	crossRefs   []string
	failCreate  map[string]bool
	authErr     error
}

func newFakeClient(name string) *fakeClient {
	return &fakeClient{
		name:       name,
		byRef:      make(map[string]bool),
		customers:  make(map[string]*sync.Customer),
		byName:     make(map[string]*sync.Customer),
		failCreate: make(map[string]bool),
	}
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) Authenticate(context.Context) error { return f.authErr }

func (f *fakeClient) Close(context.Context) error { return nil }

func (f *fakeClient) QueryOrders(ctx context.Context, req *sync.QueryOrdersRequest) (*sync.QueryOrdersResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	idx := req.Page - 1
	if idx >= len(f.pages) {
		return &sync.QueryOrdersResponse{}, nil
	}
	resp := &sync.QueryOrdersResponse{Orders: f.pages[idx]}
	if idx+1 < len(f.pages) {
		resp.HasMore = true
		resp.NextPage = req.Page + 1
	}
	return resp, nil
}

func (f *fakeClient) QueryOrderByRef(ctx context.Context, ref string) ([]sync.Order, error) {
	if f.byRef[ref] {
		return []sync.Order{{ID: ref, Ref: ref}}, nil
	}
	return nil, sync.ErrNotFound
}

func (f *fakeClient) CreateOrder(ctx context.Context, draft *sync.OrderDraft) (*sync.Order, error) {
	if f.failCreate[draft.SourceID] {
		return nil, fmt.Errorf("%w: rejected", sync.ErrValidation)
	}
	f.created = append(f.created, draft)
	f.byRef[draft.RefNumber] = true
	return &sync.Order{ID: "T-" + draft.SourceID, Ref: draft.RefNumber}, nil
}

func (f *fakeClient) QueryCustomerByID(ctx context.Context, id string) (*sync.Customer, error) {
	f.idLookups = append(f.idLookups, id)
	if c, ok := f.customers[id]; ok {
		return c, nil
	}
	return nil, sync.ErrNotFound
}

func (f *fakeClient) QueryCustomerByName(ctx context.Context, name string) (*sync.Customer, error) {
	f.nameLookups = append(f.nameLookups, name)
	if c, ok := f.byName[name]; ok {
		return c, nil
	}
	return nil, sync.ErrNotFound
}

func (f *fakeClient) CreateCustomer(ctx context.Context, draft *sync.CustomerDraft) (*sync.Customer, error) {
	f.createdCust = append(f.createdCust, draft)
	created := &sync.Customer{
		ID:      "TC-" + draft.SourceID,
		Type:    draft.Type,
		Company: draft.Company,
	}
	f.customers[created.ID] = created
	return created, nil
}

func (f *fakeClient) SetCrossReference(ctx context.Context, kind sync.EntityKind, entityID, key, value string) error {
	f.crossRefs = append(f.crossRefs, fmt.Sprintf("%s %s %s=%s", kind, entityID, key, value))
	return nil
}

var _ sync.Client = (*fakeClient)(nil)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testConfig() Config {
	return Config{
		PlaceholderCustomer:   "Web Store Customer",
		LedgerCrossRefKey:     "NexternalId",
		StorefrontCrossRefKey: "QuickBooksId",
		RefPrefix:             "N",
		MemoryCap:             100 << 20,
		OutOfStateTaxName:     "Out of State (SBE)",
	}
}

func newTestOrchestrator(t *testing.T, cfg Config, sf, lg *fakeClient) (*Orchestrator, *cache.Store) {
	t.Helper()
	spill, err := cache.NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	return NewOrchestrator(cfg, sf, lg, &fakeTaxes{}, nil, nil, spill, zap.NewNop()), spill
}

func storefrontOrder(id, customerID string) sync.Order {
	return sync.Order{
		ID:         id,
		Ref:        id,
		CustomerID: customerID,
		PlacedAt:   time.Now(),
		Payment:    sync.PaymentMethod{Method: "Credit Card", Status: sync.PaymentStatusPaid},
		Lines: []sync.LineItem{
			{SKU: "WIDGET-100", Name: "Widget", Quantity: 1, UnitPrice: dec("27.50"), Total: dec("27.50")},
		},
		Total: dec("27.50"),
	}
}

func businessCustomer(id, company string) *sync.Customer {
	return &sync.Customer{
		ID:        id,
		Type:      sync.CustomerTypeBusiness,
		FirstName: "Jon",
		LastName:  "Smith",
		Company:   company,
		Email:     "jon@" + id + ".example",
	}
}

// ---------------------------------------------------------------------------
// Order Sync
// ---------------------------------------------------------------------------

func TestRunSyncsAllPages(t *testing.T) {
	sf := newFakeClient("storefront")
	sf.customers["C1"] = businessCustomer("C1", "Acme")
	sf.pages = [][]sync.Order{
		{storefrontOrder("1", "C1"), storefrontOrder("2", "C1")},
		{storefrontOrder("3", "C1"), storefrontOrder("4", "C1")},
		{storefrontOrder("5", "C1")},
	}
	lg := newFakeClient("ledger")
	orch, _ := newTestOrchestrator(t, testConfig(), sf, lg)

	report, err := orch.Run(context.Background(), DirectionStorefrontToLedger, time.Hour)
	require.NoError(t, err)

	require.Len(t, lg.created, 5)
	assert.Equal(t, "N1", lg.created[0].RefNumber)
	assert.Equal(t, "N5", lg.created[4].RefNumber)

	// One customer created, then reused via the run cache.
	require.Len(t, lg.createdCust, 1)
	assert.Equal(t, "Acme", lg.createdCust[0].Company)

	assert.Equal(t, 6, report.Count(sync.CategoryLedgerSuccess))
	assert.False(t, report.HasErrors())

	// Cross-references land on both systems for the customer and each order.
	assert.Len(t, lg.crossRefs, 6)
	assert.Len(t, sf.crossRefs, 6)
}

func TestRunSpillsAndDrainsEverything(t *testing.T) {
	sf := newFakeClient("storefront")
	sf.customers["C1"] = businessCustomer("C1", "Acme")
	sf.pages = [][]sync.Order{
		{storefrontOrder("1", "C1"), storefrontOrder("2", "C1")},
		{storefrontOrder("3", "C1")},
		{storefrontOrder("4", "C1"), storefrontOrder("5", "C1")},
	}
	lg := newFakeClient("ledger")

	cfg := testConfig()
	cfg.MemoryCap = 1
	orch, spill := newTestOrchestrator(t, cfg, sf, lg)

	report, err := orch.Run(context.Background(), DirectionStorefrontToLedger, time.Hour)
	require.NoError(t, err)

	require.Len(t, lg.created, 5)
	assert.Equal(t, 6, report.Count(sync.CategoryLedgerSuccess))
	assert.Equal(t, 0, spill.Len("storefront_orders"))
}

func TestRunFetchesEachSourceCustomerOnce(t *testing.T) {
	sf := newFakeClient("storefront")
	sf.customers["C1"] = businessCustomer("C1", "Acme")
	sf.customers["C2"] = businessCustomer("C2", "Globex")
	sf.pages = [][]sync.Order{{
		storefrontOrder("1", "C1"),
		storefrontOrder("2", "C1"),
		storefrontOrder("3", "C2"),
		storefrontOrder("4", "C1"),
	}}
	lg := newFakeClient("ledger")
	orch, _ := newTestOrchestrator(t, testConfig(), sf, lg)

	_, err := orch.Run(context.Background(), DirectionStorefrontToLedger, time.Hour)
	require.NoError(t, err)

	require.Len(t, lg.created, 4)
	assert.Equal(t, []string{"C1", "C2"}, sf.idLookups)
}

func TestRunIdempotent(t *testing.T) {
	sf := newFakeClient("storefront")
	sf.customers["C1"] = businessCustomer("C1", "Acme")
	sf.pages = [][]sync.Order{{storefrontOrder("1", "C1"), storefrontOrder("2", "C1")}}
	lg := newFakeClient("ledger")
	orch, _ := newTestOrchestrator(t, testConfig(), sf, lg)

	_, err := orch.Run(context.Background(), DirectionStorefrontToLedger, time.Hour)
	require.NoError(t, err)
	require.Len(t, lg.created, 2)

	report, err := orch.Run(context.Background(), DirectionStorefrontToLedger, time.Hour)
	require.NoError(t, err)
	assert.Len(t, lg.created, 2)
	assert.True(t, report.IsEmpty())
}

func TestRunPartialFailure(t *testing.T) {
	sf := newFakeClient("storefront")
	sf.customers["C1"] = businessCustomer("C1", "Acme")
	sf.pages = [][]sync.Order{
		{storefrontOrder("1", "C1"), storefrontOrder("2", "C1"), storefrontOrder("3", "C1")},
	}
	lg := newFakeClient("ledger")
	lg.failCreate["2"] = true
	orch, _ := newTestOrchestrator(t, testConfig(), sf, lg)

	report, err := orch.Run(context.Background(), DirectionStorefrontToLedger, time.Hour)
	require.NoError(t, err)

	assert.Len(t, lg.created, 2)
	assert.Equal(t, 1, report.Count(sync.CategoryLedgerOrder))
	assert.Contains(t, report.Messages(sync.CategoryLedgerOrder)[0], "order 2")
	assert.True(t, report.HasErrors())
	assert.False(t, report.HasFatal())
}

func TestRunConsumerBooksAgainstPlaceholder(t *testing.T) {
	sf := newFakeClient("storefront")
	sf.customers["C1"] = &sync.Customer{
		ID:        "C1",
		Type:      sync.CustomerTypeConsumer,
		FirstName: "Jane",
		LastName:  "Doe",
		Email:     "jane@example.com",
	}
	sf.pages = [][]sync.Order{{storefrontOrder("1", "C1"), storefrontOrder("2", "C1")}}
	lg := newFakeClient("ledger")
	lg.byName["Web Store Customer"] = &sync.Customer{ID: "80000099", Type: sync.CustomerTypeBusiness}
	orch, _ := newTestOrchestrator(t, testConfig(), sf, lg)

	report, err := orch.Run(context.Background(), DirectionStorefrontToLedger, time.Hour)
	require.NoError(t, err)

	require.Len(t, lg.created, 2)
	assert.Equal(t, "80000099", lg.created[0].CustomerID)
	assert.Empty(t, lg.createdCust)
	assert.False(t, report.HasErrors())

	// The consumer's own name is never matched against the ledger.
	assert.Equal(t, []string{"Web Store Customer"}, lg.nameLookups)
}

func TestRunConsumerPlaceholderMissing(t *testing.T) {
	sf := newFakeClient("storefront")
	sf.customers["C1"] = &sync.Customer{
		ID:        "C1",
		Type:      sync.CustomerTypeConsumer,
		FirstName: "Jane",
		LastName:  "Doe",
	}
	sf.pages = [][]sync.Order{{storefrontOrder("1", "C1")}}
	lg := newFakeClient("ledger")
	orch, _ := newTestOrchestrator(t, testConfig(), sf, lg)

	report, err := orch.Run(context.Background(), DirectionStorefrontToLedger, time.Hour)
	require.NoError(t, err)

	assert.Empty(t, lg.created)
	assert.Empty(t, lg.createdCust)
	assert.Equal(t, 1, report.Count(sync.CategoryLedgerCustomer))
}

func TestRunLedgerToStorefrontFilters(t *testing.T) {
	lg := newFakeClient("ledger")
	lg.customers["L1"] = businessCustomer("L1", "Retail Partner")
	lg.customers["LAMZ"] = businessCustomer("LAMZ", "Amazon")
	lg.pages = [][]sync.Order{{
		func() sync.Order {
			o := storefrontOrder("T1", "L1")
			o.Ref = "N123" // originated on the storefront
			return o
		}(),
		func() sync.Order {
			o := storefrontOrder("T2", "L1")
			o.Ref = "1002"
			o.CrossID = "55" // already synced
			return o
		}(),
		func() sync.Order {
			o := storefrontOrder("T3", "LAMZ")
			o.Ref = "1003"
			return o
		}(),
		func() sync.Order {
			o := storefrontOrder("T4", "L1")
			o.Ref = "1004"
			return o
		}(),
	}}
	sf := newFakeClient("storefront")

	cfg := testConfig()
	cfg.CustomerBlacklist = []string{"Amazon"}
	orch, _ := newTestOrchestrator(t, cfg, sf, lg)

	report, err := orch.Run(context.Background(), DirectionLedgerToStorefront, time.Hour)
	require.NoError(t, err)

	require.Len(t, sf.created, 1)
	assert.Equal(t, "1004", sf.created[0].RefNumber)
	assert.Len(t, sf.createdCust, 1)
	assert.False(t, report.HasErrors())
}

func TestRunAuthFailureIsFatal(t *testing.T) {
	sf := newFakeClient("storefront")
	sf.authErr = fmt.Errorf("%w: bad key", sync.ErrAuthFailed)
	lg := newFakeClient("ledger")
	orch, _ := newTestOrchestrator(t, testConfig(), sf, lg)

	report, err := orch.Run(context.Background(), DirectionStorefrontToLedger, time.Hour)
	require.Error(t, err)
	assert.True(t, report.HasFatal())
	assert.Empty(t, lg.created)
}

// ---------------------------------------------------------------------------
// Inventory Sync
// ---------------------------------------------------------------------------

type fakeInventorySource struct {
	items []sync.InventoryItem
	site  string
}

func (f *fakeInventorySource) QueryInventory(ctx context.Context, site string) ([]sync.InventoryItem, error) {
	f.site = site
	return f.items, nil
}

type fakeInventoryTarget struct {
	pushed []sync.InventoryItem
	err    error
}

func (f *fakeInventoryTarget) UpdateInventory(ctx context.Context, items []sync.InventoryItem) error {
	if f.err != nil {
		return f.err
	}
	f.pushed = append(f.pushed, items...)
	return nil
}

func TestRunInventory(t *testing.T) {
	sf := newFakeClient("storefront")
	lg := newFakeClient("ledger")
	src := &fakeInventorySource{items: []sync.InventoryItem{
		{SKU: "WIDGET-100", QuantityOnHand: 12, Site: "Warehouse"},
		{SKU: "GADGET-7", QuantityOnHand: 0, Site: "Warehouse"},
	}}
	tgt := &fakeInventoryTarget{}
	spill, err := cache.NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.InventorySite = "Warehouse"
	orch := NewOrchestrator(cfg, sf, lg, nil, src, tgt, spill, zap.NewNop())

	report, err := orch.RunInventory(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "Warehouse", src.site)
	assert.Len(t, tgt.pushed, 2)
	assert.Equal(t, 1, report.Count(sync.CategoryStorefrontSuccess))
}

func TestRunInventoryPushFailure(t *testing.T) {
	sf := newFakeClient("storefront")
	lg := newFakeClient("ledger")
	src := &fakeInventorySource{items: []sync.InventoryItem{{SKU: "WIDGET-100", QuantityOnHand: 12}}}
	tgt := &fakeInventoryTarget{err: fmt.Errorf("%w: rejected", sync.ErrValidation)}
	spill, err := cache.NewStore(t.TempDir(), zap.NewNop())
	require.NoError(t, err)

	orch := NewOrchestrator(testConfig(), sf, lg, nil, src, tgt, spill, zap.NewNop())

	report, err := orch.RunInventory(context.Background())
	require.NoError(t, err)
	assert.True(t, report.HasErrors())
	assert.False(t, report.HasFatal())
}
