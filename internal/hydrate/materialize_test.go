package hydrate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/plan"
	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/schema"
	"github.com/roach88/strata/internal/testutil"
)

// countingConstructor counts construction calls per record key.
type countingConstructor struct {
	mu    sync.Mutex
	calls map[ir.Key]int
}

func newCountingConstructor() *countingConstructor {
	return &countingConstructor{calls: make(map[ir.Key]int)}
}

func (c *countingConstructor) Construct(rt *schema.RecordType, into *ir.Record, payload map[string]ir.Value) error {
	c.mu.Lock()
	c.calls[into.Key()]++
	c.mu.Unlock()
	return schema.Constructor{}.Construct(rt, into, payload)
}

func (c *countingConstructor) count(k ir.Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[k]
}

type fixture struct {
	reg    *schema.Registry
	mem    *testutil.MemoryEngine
	ctor   *countingConstructor
	m      *Materializer
	rc     *RequestContext
	plans  *plan.Cache
	ctx    context.Context
	orders *schema.RecordType
}

func newFixture(t *testing.T, reg *schema.Registry) *fixture {
	t.Helper()
	mem := testutil.NewMemoryEngine()
	ctor := newCountingConstructor()
	plans := plan.NewCache(reg)
	orders, ok := reg.Type("Order")
	require.True(t, ok)
	return &fixture{
		reg:    reg,
		mem:    mem,
		ctor:   ctor,
		plans:  plans,
		m:      NewMaterializer(plans, WithConstructor(ctor), WithLogger(zap.NewNop()), WithMaxConcurrency(4)),
		rc:     NewRequestContext(testutil.ID(0), mem, zap.NewNop()),
		ctx:    context.Background(),
		orders: orders,
	}
}

func (f *fixture) typ(name string) *schema.RecordType {
	rt, _ := f.reg.Type(name)
	return rt
}

func (f *fixture) customer(n int, name string) {
	f.mem.Insert("customers", map[string]ir.Value{"id": ir.UUID(testutil.ID(n)), "name": ir.String(name)})
}

func (f *fixture) order(n int, total float64, customer ir.Value) {
	f.mem.Insert("orders", map[string]ir.Value{"id": ir.UUID(testutil.ID(n)), "total": ir.Float(total), "customer_id": customer})
}

func (f *fixture) lineItem(n, order int, sku string) {
	f.mem.Insert("line_items", map[string]ir.Value{
		"id":       ir.UUID(testutil.ID(n)),
		"sku":      ir.String(sku),
		"quantity": ir.Int(1),
		"order_id": ir.UUID(testutil.ID(order)),
	})
}

// fetchOrders runs the optimized Order query and materializes the rows.
func (f *fixture) fetchOrders(t *testing.T, cond queryir.Predicate) ([]*ir.Record, error) {
	t.Helper()
	sel, err := plan.Optimize(f.plans, f.orders, cond)
	require.NoError(t, err)
	rows, err := f.mem.Fetch(f.ctx, sel)
	require.NoError(t, err)
	return f.m.MaterializeAll(f.ctx, f.rc, f.orders, rows)
}

func get(t *testing.T, rec *ir.Record, prop string) ir.Value {
	t.Helper()
	v, ok := rec.Get(prop)
	require.True(t, ok, "property %s missing on %s", prop, rec.Key())
	return v
}

func TestMaterializeAll_OrderExample(t *testing.T) {
	f := newFixture(t, testutil.Shop(t))
	f.order(1, 42.0, ir.Null{})
	for i := 1; i <= 3; i++ {
		f.lineItem(100+i, 1, "sku")
	}

	records, err := f.fetchOrders(t, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	order := records[0]

	assert.True(t, order.Sealed())
	assert.Equal(t, ir.Float(42.0), get(t, order, "total"))
	assert.Equal(t, ir.Null{}, get(t, order, "customer"))
	assert.Equal(t, ir.Null{}, get(t, order, "rating"))

	items, ok := get(t, order, "lineItems").(ir.Collection)
	require.True(t, ok)
	require.Len(t, items, 3)

	// Each line item points back at the very same order record
	for _, item := range items {
		ref := get(t, item, "order").(ir.Ref)
		assert.Same(t, order, ref.Record)
	}

	// Orders fetched once, line items once, the back reference came from the join
	assert.Equal(t, 1, f.mem.Fetches("line_items"))
	assert.Equal(t, 1, f.mem.Aggregates("reviews"))
	assert.Equal(t, 1, f.ctor.count(order.Key()))
}

func TestMaterializeAll_NonNullableReferenceIsIntegrityError(t *testing.T) {
	f := newFixture(t, testutil.StrictShop(t))
	f.order(1, 42.0, ir.Null{})

	records, err := f.fetchOrders(t, nil)
	require.Error(t, err)
	assert.Nil(t, records)

	var ie *IntegrityError
	require.True(t, errors.As(err, &ie), "got %v", err)
	assert.Equal(t, "Order", ie.Type)
	assert.Equal(t, "customer", ie.Property)
	assert.Equal(t, testutil.ID(1), ie.Identity)
	assert.True(t, IsIntegrityError(err))

	// The failed record is not cached
	assert.Equal(t, 0, f.rc.Cache().Len())
}

func TestMaterializeAll_JoinedReference(t *testing.T) {
	f := newFixture(t, testutil.Shop(t))
	f.customer(1, "Ada")
	f.order(10, 5, ir.UUID(testutil.ID(1)))

	records, err := f.fetchOrders(t, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)

	customer := get(t, records[0], "customer").(ir.Ref).Record
	assert.Equal(t, ir.String("Ada"), get(t, customer, "name"))
	assert.Equal(t, ir.Null{}, get(t, customer, "email"))

	// Resolved from the joined row, never fetched on its own
	assert.Equal(t, 0, f.mem.Fetches("customers"))
}

func TestMaterializeAll_DeduplicatesSharedReference(t *testing.T) {
	f := newFixture(t, testutil.Shop(t))
	f.customer(1, "Ada")
	f.order(10, 5, ir.UUID(testutil.ID(1)))
	f.order(11, 7, ir.UUID(testutil.ID(1)))

	records, err := f.fetchOrders(t, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := get(t, records[0], "customer").(ir.Ref).Record
	second := get(t, records[1], "customer").(ir.Ref).Record
	assert.Same(t, first, second)
	assert.Equal(t, 1, f.ctor.count(ir.Key{Type: "Customer", ID: testutil.ID(1)}))
}

func TestMaterializeAll_RowOrderPreserved(t *testing.T) {
	f := newFixture(t, testutil.Shop(t))
	for i := 1; i <= 20; i++ {
		f.order(i, float64(i), ir.Null{})
	}

	records, err := f.fetchOrders(t, nil)
	require.NoError(t, err)
	require.Len(t, records, 20)
	for i, rec := range records {
		assert.Equal(t, testutil.ID(i+1), rec.ID())
	}
}

func TestMaterializeAll_EmptyCollection(t *testing.T) {
	f := newFixture(t, testutil.Shop(t))
	f.order(1, 1, ir.Null{})

	records, err := f.fetchOrders(t, nil)
	require.NoError(t, err)

	items, ok := get(t, records[0], "lineItems").(ir.Collection)
	require.True(t, ok)
	assert.NotNil(t, items)
	assert.Empty(t, items)
}

func TestMaterializeAll_CollectionCountsMatchingRows(t *testing.T) {
	f := newFixture(t, testutil.Shop(t))
	f.order(1, 1, ir.Null{})
	f.order(2, 2, ir.Null{})
	f.lineItem(101, 1, "a")
	f.lineItem(102, 2, "b")
	f.lineItem(103, 2, "c")

	records, err := f.fetchOrders(t, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Len(t, get(t, records[0], "lineItems"), 1)
	assert.Len(t, get(t, records[1], "lineItems"), 2)
	assert.Equal(t, 2, f.mem.Fetches("line_items"))
}

func TestMaterializeAll_Aggregate(t *testing.T) {
	f := newFixture(t, testutil.Shop(t))
	f.order(1, 1, ir.Null{})
	f.mem.Insert("reviews", map[string]ir.Value{"id": ir.UUID(testutil.ID(201)), "stars": ir.Int(4), "order_id": ir.UUID(testutil.ID(1))})
	f.mem.Insert("reviews", map[string]ir.Value{"id": ir.UUID(testutil.ID(202)), "stars": ir.Int(5), "order_id": ir.UUID(testutil.ID(1))})

	records, err := f.fetchOrders(t, nil)
	require.NoError(t, err)
	assert.Equal(t, ir.Float(4.5), get(t, records[0], "rating"))
}

func TestMaterializeAll_NonNullableAggregateOverNoRows(t *testing.T) {
	tables := testutil.ShopTables()
	types := testutil.ShopTypes(tables, false)
	types[1].Bindings[3] = schema.AggregateBinding{
		Prop: "rating", Func: schema.AggregateAvg, Table: "reviews", Column: "stars", ForeignKey: "order_id",
	}
	reg, err := schema.NewRegistry(tables, types)
	require.NoError(t, err)

	f := newFixture(t, reg)
	f.order(1, 1, ir.Null{})

	_, err = f.fetchOrders(t, nil)
	var ie *IntegrityError
	require.True(t, errors.As(err, &ie), "got %v", err)
	assert.Equal(t, "rating", ie.Property)
}

// noAggregateRows is a query engine whose aggregates return no row at all.
type noAggregateRows struct {
	*testutil.MemoryEngine
}

func (noAggregateRows) Aggregate(context.Context, queryir.Aggregate) ([]ir.Row, error) {
	return []ir.Row{}, nil
}

func TestMaterializeAll_AggregateWithoutRowIsIntegrityError(t *testing.T) {
	f := newFixture(t, testutil.Shop(t))
	f.order(1, 1, ir.Null{})
	f.rc = NewRequestContext(testutil.ID(0), noAggregateRows{f.mem}, nil)

	_, err := f.fetchOrders(t, nil)
	var ie *IntegrityError
	require.True(t, errors.As(err, &ie), "got %v", err)
	assert.Equal(t, "rating", ie.Property)
	assert.Contains(t, ie.Message, "0 rows")
}

func TestMaterializeAll_NullColumn(t *testing.T) {
	f := newFixture(t, testutil.Shop(t))
	f.mem.Insert("orders", map[string]ir.Value{"id": ir.UUID(testutil.ID(1))})

	_, err := f.fetchOrders(t, nil)
	var ie *IntegrityError
	require.True(t, errors.As(err, &ie), "got %v", err)
	assert.Equal(t, "total", ie.Property)
}

func TestMaterializeAll_MissingJoinedTargetOnNullableReference(t *testing.T) {
	f := newFixture(t, testutil.Shop(t))
	f.order(1, 1, ir.UUID(testutil.ID(404)))

	records, err := f.fetchOrders(t, nil)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ir.Null{}, get(t, records[0], "customer"))
}

func TestMaterializeAll_DanglingJoinedReference(t *testing.T) {
	f := newFixture(t, testutil.StrictShop(t))
	f.order(1, 1, ir.UUID(testutil.ID(404)))

	_, err := f.fetchOrders(t, nil)
	var ie *IntegrityError
	require.True(t, errors.As(err, &ie), "got %v", err)
	assert.Equal(t, "customer", ie.Property)
	assert.Contains(t, ie.Message, "dangling")
}

func TestLoad_MissingNestedTarget(t *testing.T) {
	tests := []struct {
		name      string
		reg       func(testing.TB) *schema.Registry
		integrity bool
	}{
		{name: "nullable reference is null", reg: testutil.Shop},
		{name: "required reference is dangling", reg: testutil.StrictShop, integrity: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.reg(t))
			f.order(10, 5, ir.UUID(testutil.ID(404)))
			f.lineItem(100, 10, "a")

			// The order is joined into the item row; its customer is loaded by identity
			item, err := f.m.Load(f.ctx, f.rc, f.typ("LineItem"), testutil.ID(100))
			if tt.integrity {
				var ie *IntegrityError
				require.True(t, errors.As(err, &ie), "got %v", err)
				assert.Equal(t, "Order", ie.Type)
				assert.Equal(t, "customer", ie.Property)
				assert.Contains(t, ie.Message, "dangling")
				return
			}
			require.NoError(t, err)
			order := get(t, item, "order").(ir.Ref).Record
			assert.Equal(t, ir.Null{}, get(t, order, "customer"))
			assert.Equal(t, 1, f.mem.Fetches("customers"))
		})
	}
}

func TestMaterializeAll_StoreErrorPropagates(t *testing.T) {
	f := newFixture(t, testutil.Shop(t))
	f.order(1, 1, ir.Null{})
	boom := errors.New("disk I/O error")
	f.mem.FailOn("line_items", boom)

	_, err := f.fetchOrders(t, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var se *StoreError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Order", se.Type)
	assert.Equal(t, "lineItems", se.Property)
	assert.Equal(t, "fetch", se.Op)
	assert.Equal(t, testutil.ID(1), se.Identity)
}

func TestMaterializeAll_FirstFailureInDeclarationOrder(t *testing.T) {
	f := newFixture(t, testutil.Shop(t))
	f.order(1, 1, ir.Null{})
	f.mem.FailOn("line_items", errors.New("line items failed"))
	f.mem.FailOn("reviews", errors.New("reviews failed"))

	_, err := f.fetchOrders(t, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line items failed")

	// Both sub-fetches were attempted
	assert.Equal(t, 1, f.mem.Fetches("line_items"))
	assert.Equal(t, 1, f.mem.Aggregates("reviews"))
}

func TestMaterializeAll_BatchFailsAsAWhole(t *testing.T) {
	f := newFixture(t, testutil.StrictShop(t))
	f.customer(1, "Ada")
	f.order(1, 1, ir.UUID(testutil.ID(1)))
	f.order(2, 2, ir.Null{})

	records, err := f.fetchOrders(t, nil)
	assert.Nil(t, records)
	var ie *IntegrityError
	require.True(t, errors.As(err, &ie), "got %v", err)
	assert.Equal(t, testutil.ID(2), ie.Identity)
}

func TestMaterializeAll_ConstructionFailure(t *testing.T) {
	reg := testutil.Shop(t)
	f := newFixture(t, reg)
	f.customer(1, "Ada")
	f.m = NewMaterializer(f.plans, WithConstructor(rejectAll{}))

	sel, err := plan.Optimize(f.plans, f.typ("Customer"), nil)
	require.NoError(t, err)
	rows, err := f.mem.Fetch(f.ctx, sel)
	require.NoError(t, err)

	_, err = f.m.MaterializeAll(f.ctx, f.rc, f.typ("Customer"), rows)
	var se *StoreError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, "construct", se.Op)

	var ce *schema.ConstructionError
	assert.True(t, errors.As(err, &ce))
}

type rejectAll struct{}

func (rejectAll) Construct(rt *schema.RecordType, _ *ir.Record, _ map[string]ir.Value) error {
	return &schema.ConstructionError{Type: rt.Name, Message: "rejected"}
}

func TestLoad_NestedReferenceFetchedByIdentity(t *testing.T) {
	f := newFixture(t, testutil.Shop(t))
	f.customer(1, "Ada")
	f.order(10, 5, ir.UUID(testutil.ID(1)))
	f.lineItem(100, 10, "a")
	f.lineItem(101, 10, "b")

	item, err := f.m.Load(f.ctx, f.rc, f.typ("LineItem"), testutil.ID(100))
	require.NoError(t, err)

	order := get(t, item, "order").(ir.Ref).Record
	assert.Equal(t, testutil.ID(10), order.ID())

	// Two levels deep: the order's customer was not joined into the item row
	customer := get(t, order, "customer").(ir.Ref).Record
	assert.Equal(t, ir.String("Ada"), get(t, customer, "name"))
	assert.Equal(t, 1, f.mem.Fetches("customers"))

	// The order's collection contains the item we started from
	items := get(t, order, "lineItems").(ir.Collection)
	require.Len(t, items, 2)
	assert.Same(t, item, items[0])
	assert.Equal(t, 1, f.ctor.count(item.Key()))
	assert.Equal(t, 1, f.ctor.count(order.Key()))
}

func TestLoad_CachedWithinRequest(t *testing.T) {
	f := newFixture(t, testutil.Shop(t))
	f.customer(1, "Ada")

	first, err := f.m.Load(f.ctx, f.rc, f.typ("Customer"), testutil.ID(1))
	require.NoError(t, err)
	second, err := f.m.Load(f.ctx, f.rc, f.typ("Customer"), testutil.ID(1))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, f.mem.Fetches("customers"))

	// A new request context starts empty
	other := NewRequestContext(testutil.ID(1), f.mem, nil)
	third, err := f.m.Load(f.ctx, other, f.typ("Customer"), testutil.ID(1))
	require.NoError(t, err)
	assert.NotSame(t, first, third)
	assert.Equal(t, 2, f.mem.Fetches("customers"))
}

func TestLoad_NotFound(t *testing.T) {
	f := newFixture(t, testutil.Shop(t))

	_, err := f.m.Load(f.ctx, f.rc, f.typ("Customer"), testutil.ID(404))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, f.rc.Cache().Len())
}

func TestFind(t *testing.T) {
	f := newFixture(t, testutil.Shop(t))
	for i := 1; i <= 5; i++ {
		f.order(i, float64(i%2), ir.Null{})
	}

	p, err := f.plans.Get(f.orders)
	require.NoError(t, err)
	total, _ := p.Column("total")

	records, err := f.m.Find(f.ctx, f.rc, f.orders, queryir.Equals{Column: total, Value: ir.Float(1)}, 0)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	records, err = f.m.Find(f.ctx, f.rc, f.orders, nil, 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestFind_StoreError(t *testing.T) {
	f := newFixture(t, testutil.Shop(t))
	boom := errors.New("locked")
	f.mem.FailOn("orders", boom)

	_, err := f.m.Find(f.ctx, f.rc, f.orders, nil, 0)
	assert.ErrorIs(t, err, boom)
	assert.True(t, IsStoreError(err))
}

func TestErrors_Format(t *testing.T) {
	ie := &IntegrityError{Type: "Order", Property: "customer", Message: "reference column customer_id is NULL"}
	assert.Equal(t, "integrity violation: reference column customer_id is NULL (type=Order, property=customer)", ie.Error())

	se := &StoreError{Op: "fetch", Err: errors.New("locked"), Identity: testutil.ID(1)}
	assert.Equal(t, "fetch: locked (id=00000000-0000-7000-8000-000000000001)", se.Error())
}

func TestRequestContext(t *testing.T) {
	mem := testutil.NewMemoryEngine()
	rc := NewRequestContext(testutil.ID(7), mem, nil)

	assert.Equal(t, testutil.ID(7), rc.ID())
	assert.Same(t, mem, rc.Engine())
	assert.NotNil(t, rc.Cache())
	assert.NotNil(t, rc.Logger())

	assert.NotEqual(t, UUIDv7Generator{}.Generate(), UUIDv7Generator{}.Generate())
}
