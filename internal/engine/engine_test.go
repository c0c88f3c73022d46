package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/fixture"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/store"
	"github.com/roach88/strata/internal/testutil"
)

// newTestEngine opens a temp SQLite store with the shop schema and fixture.
func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e := New(s, testutil.Shop(t), opts...)
	require.NoError(t, e.ApplySchema(ctx))

	f, err := fixture.Parse([]byte(testutil.ShopFixture))
	require.NoError(t, err)
	n, err := e.Seed(ctx, f)
	require.NoError(t, err)
	require.Equal(t, 7, n)
	return e
}

func prop(t *testing.T, rec *ir.Record, name string) ir.Value {
	t.Helper()
	v, ok := rec.Get(name)
	require.True(t, ok, "record %s has no property %s", rec.Key(), name)
	return v
}

func refOf(t *testing.T, rec *ir.Record, name string) *ir.Record {
	t.Helper()
	ref, ok := prop(t, rec, name).(ir.Ref)
	require.True(t, ok, "property %s is not a reference", name)
	return ref.Record
}

func TestGet_Order(t *testing.T) {
	e := newTestEngine(t)

	err := e.Request(context.Background(), func(ctx context.Context, s *Session) error {
		order, err := s.Get(ctx, "Order", testutil.ID(10))
		require.NoError(t, err)

		assert.True(t, order.Sealed())
		assert.Equal(t, ir.Float(42), prop(t, order, "total"))
		assert.Equal(t, ir.Float(4.5), prop(t, order, "rating"))

		customer := refOf(t, order, "customer")
		assert.Equal(t, testutil.ID(1), customer.ID())
		assert.Equal(t, ir.String("Ada"), prop(t, customer, "name"))
		assert.Equal(t, ir.String("ada@example.com"), prop(t, customer, "email"))

		items, ok := prop(t, order, "lineItems").(ir.Collection)
		require.True(t, ok)
		require.Len(t, items, 2)
		assert.Equal(t, ir.String("A-1"), prop(t, items[0], "sku"))
		assert.Equal(t, ir.Int(2), prop(t, items[0], "quantity"))
		assert.Equal(t, ir.String("B-2"), prop(t, items[1], "sku"))

		// Back references close the cycle on the same record
		for _, item := range items {
			assert.Same(t, order, refOf(t, item, "order"))
		}
		return nil
	})
	require.NoError(t, err)
}

func TestGet_BareOrder(t *testing.T) {
	e := newTestEngine(t)

	err := e.Request(context.Background(), func(ctx context.Context, s *Session) error {
		order, err := s.Get(ctx, "Order", testutil.ID(20))
		require.NoError(t, err)

		assert.Equal(t, ir.Float(7.5), prop(t, order, "total"))
		assert.Equal(t, ir.Null{}, prop(t, order, "customer"))
		assert.Equal(t, ir.Null{}, prop(t, order, "rating"))
		assert.Equal(t, ir.Collection{}, prop(t, order, "lineItems"))
		return nil
	})
	require.NoError(t, err)
}

func TestGet_NotFound(t *testing.T) {
	e := newTestEngine(t)

	err := e.Request(context.Background(), func(ctx context.Context, s *Session) error {
		_, err := s.Get(ctx, "Order", testutil.ID(99))
		return err
	})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGet_UnknownType(t *testing.T) {
	e := newTestEngine(t)

	err := e.Request(context.Background(), func(ctx context.Context, s *Session) error {
		_, err := s.Get(ctx, "Invoice", testutil.ID(1))
		return err
	})

	var ute *UnknownTypeError
	require.ErrorAs(t, err, &ute)
	assert.Equal(t, "Invoice", ute.Type)
	assert.Equal(t, `unknown record type "Invoice"`, err.Error())
}

func TestRequest_CachesWithinRequest(t *testing.T) {
	e := newTestEngine(t)

	var first *ir.Record
	err := e.Request(context.Background(), func(ctx context.Context, s *Session) error {
		a, err := s.Get(ctx, "Order", testutil.ID(10))
		require.NoError(t, err)
		b, err := s.Get(ctx, "Order", testutil.ID(10))
		require.NoError(t, err)
		assert.Same(t, a, b)

		// The customer came in through the join and is cached too
		c, err := s.Get(ctx, "Customer", testutil.ID(1))
		require.NoError(t, err)
		assert.Same(t, refOf(t, a, "customer"), c)

		stats := s.Stats()
		assert.GreaterOrEqual(t, stats.Hits, 2)
		first = a
		return nil
	})
	require.NoError(t, err)

	// A new request starts with an empty cache
	err = e.Request(context.Background(), func(ctx context.Context, s *Session) error {
		again, err := s.Get(ctx, "Order", testutil.ID(10))
		require.NoError(t, err)
		assert.NotSame(t, first, again)
		return nil
	})
	require.NoError(t, err)
}

func TestRequest_RollsBackOnError(t *testing.T) {
	e := newTestEngine(t)
	boom := errors.New("boom")

	err := e.Request(context.Background(), func(ctx context.Context, s *Session) error {
		err := s.Insert(ctx, "customers", map[string]ir.Value{
			"id":   ir.UUID(testutil.ID(2)),
			"name": ir.String("Grace"),
		})
		require.NoError(t, err)

		// Visible inside the transaction
		_, err = s.Get(ctx, "Customer", testutil.ID(2))
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = e.Request(context.Background(), func(ctx context.Context, s *Session) error {
		_, err := s.Get(ctx, "Customer", testutil.ID(2))
		return err
	})
	assert.True(t, IsNotFound(err))
}

func TestRequest_CommitsOnSuccess(t *testing.T) {
	e := newTestEngine(t)

	err := e.Request(context.Background(), func(ctx context.Context, s *Session) error {
		return s.Insert(ctx, "customers", map[string]ir.Value{
			"id":   ir.UUID(testutil.ID(2)),
			"name": ir.String("Grace"),
		})
	})
	require.NoError(t, err)

	err = e.Request(context.Background(), func(ctx context.Context, s *Session) error {
		c, err := s.Get(ctx, "Customer", testutil.ID(2))
		require.NoError(t, err)
		assert.Equal(t, ir.String("Grace"), prop(t, c, "name"))
		assert.Equal(t, ir.Null{}, prop(t, c, "email"))
		return nil
	})
	require.NoError(t, err)
}

func TestRequest_DeterministicRequestID(t *testing.T) {
	id := uuid.MustParse("01890000-0000-7000-8000-000000000001")
	e := newTestEngine(t, WithRequestIDGenerator(testutil.NewFixedRequestIDGenerator(id)))

	err := e.Request(context.Background(), func(ctx context.Context, s *Session) error {
		assert.Equal(t, id, s.RequestID())
		return nil
	})
	require.NoError(t, err)
}

func TestFind(t *testing.T) {
	e := newTestEngine(t)

	err := e.Request(context.Background(), func(ctx context.Context, s *Session) error {
		cond, err := s.Where("LineItem", "order_id", ir.UUID(testutil.ID(10)))
		require.NoError(t, err)

		items, err := s.Find(ctx, "LineItem", cond)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, testutil.ID(11), items[0].ID())
		assert.Equal(t, testutil.ID(12), items[1].ID())
		assert.Same(t, refOf(t, items[0], "order"), refOf(t, items[1], "order"))
		return nil
	})
	require.NoError(t, err)
}

func TestFindOne(t *testing.T) {
	e := newTestEngine(t)

	err := e.Request(context.Background(), func(ctx context.Context, s *Session) error {
		cond, err := s.Where("Customer", "name", ir.String("Ada"))
		require.NoError(t, err)
		c, err := s.FindOne(ctx, "Customer", cond)
		require.NoError(t, err)
		assert.Equal(t, testutil.ID(1), c.ID())

		cond, err = s.Where("Customer", "name", ir.String("Nobody"))
		require.NoError(t, err)
		_, err = s.FindOne(ctx, "Customer", cond)
		assert.True(t, IsNotFound(err))
		return nil
	})
	require.NoError(t, err)
}

func TestWhere_UnknownColumn(t *testing.T) {
	e := newTestEngine(t)

	err := e.Request(context.Background(), func(ctx context.Context, s *Session) error {
		_, err := s.Where("Customer", "nickname", ir.String("x"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), `no column "nickname"`)
		return nil
	})
	require.NoError(t, err)
}

func TestAll(t *testing.T) {
	e := newTestEngine(t, WithMaxConcurrency(1))

	err := e.Request(context.Background(), func(ctx context.Context, s *Session) error {
		orders, err := s.All(ctx, "Order", 0)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		assert.Equal(t, testutil.ID(10), orders[0].ID())
		assert.Equal(t, testutil.ID(20), orders[1].ID())

		limited, err := s.All(ctx, "Order", 1)
		require.NoError(t, err)
		require.Len(t, limited, 1)
		assert.Same(t, orders[0], limited[0])

		_, err = s.All(ctx, "Order", -1)
		assert.Error(t, err)
		return nil
	})
	require.NoError(t, err)
}

func TestGet_StrictReferenceViolation(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "strict.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e := New(s, testutil.StrictShop(t))
	require.NoError(t, e.ApplySchema(ctx))
	f, err := fixture.Parse([]byte(testutil.ShopFixture))
	require.NoError(t, err)
	_, err = e.Seed(ctx, f)
	require.NoError(t, err)

	err = e.Request(ctx, func(ctx context.Context, s *Session) error {
		_, err := s.Get(ctx, "Order", testutil.ID(20))
		return err
	})
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "integrity violation")
}

func TestSeed_FailureCommitsNothing(t *testing.T) {
	e := newTestEngine(t)

	f := &fixture.Fixture{Name: "broken", Tables: []fixture.TableData{
		{Table: "customers", Rows: []map[string]any{
			{"id": testutil.ID(3).String(), "name": "Linus"},
		}},
		{Table: "line_items", Rows: []map[string]any{
			// order_id violates the foreign key
			{"id": testutil.ID(4).String(), "sku": "C-3", "quantity": 1, "order_id": testutil.ID(98).String()},
		}},
	}}

	_, err := e.Seed(context.Background(), f)
	require.Error(t, err)

	err = e.Request(context.Background(), func(ctx context.Context, s *Session) error {
		_, err := s.Get(ctx, "Customer", testutil.ID(3))
		return err
	})
	assert.True(t, IsNotFound(err))
}

func TestNew_SharesPlans(t *testing.T) {
	e := newTestEngine(t)
	rt, ok := e.Registry().Type("Order")
	require.True(t, ok)

	for i := 0; i < 2; i++ {
		err := e.Request(context.Background(), func(ctx context.Context, s *Session) error {
			_, err := s.Get(ctx, "Order", testutil.ID(10))
			return err
		})
		require.NoError(t, err)
	}

	p1, err := e.Plans().Get(rt)
	require.NoError(t, err)
	p2, err := e.Plans().Get(rt)
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Equal(t, "orders", p1.Base.Name)
}

