package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/schema"
)

// ShopTables returns the tables of the shop test schema:
// customers, orders (nullable customer_id), line_items and reviews.
func ShopTables() []*schema.Table {
	return []*schema.Table{
		schema.NewTable("customers",
			schema.Column{Name: "name", Kind: ir.KindString},
			schema.Column{Name: "email", Kind: ir.KindString, Nullable: true},
		),
		schema.NewTable("orders",
			schema.Column{Name: "total", Kind: ir.KindFloat},
			schema.Column{Name: "customer_id", Kind: ir.KindUUID, Nullable: true, References: "customers"},
		),
		schema.NewTable("line_items",
			schema.Column{Name: "sku", Kind: ir.KindString},
			schema.Column{Name: "quantity", Kind: ir.KindInt},
			schema.Column{Name: "order_id", Kind: ir.KindUUID, References: "orders"},
		),
		schema.NewTable("reviews",
			schema.Column{Name: "stars", Kind: ir.KindInt},
			schema.Column{Name: "order_id", Kind: ir.KindUUID, References: "orders"},
		),
	}
}

// ShopTypes returns the record types of the shop schema bound to tables.
//
// Order has total, a nullable customer reference, a lineItems collection and
// a nullable average rating over reviews. LineItem references its Order,
// which closes a reference cycle through the collection.
// With strict set, Order.customer is a non-nullable reference.
func ShopTypes(tables []*schema.Table, strict bool) []*schema.RecordType {
	byName := make(map[string]*schema.Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
	}

	var customerRef schema.Binding = schema.NullableRefBinding{Prop: "customer", Column: "customer_id", Target: "Customer"}
	if strict {
		customerRef = schema.SingleRefBinding{Prop: "customer", Column: "customer_id", Target: "Customer"}
	}

	return []*schema.RecordType{
		{Name: "Customer", Table: byName["customers"], Bindings: []schema.Binding{
			schema.ColumnBinding{Prop: "name", Column: "name"},
			schema.ColumnBinding{Prop: "email", Column: "email", Nullable: true},
		}},
		{Name: "Order", Table: byName["orders"], Bindings: []schema.Binding{
			schema.ColumnBinding{Prop: "total", Column: "total"},
			customerRef,
			schema.CollectionBinding{Prop: "lineItems", Target: "LineItem", ForeignKey: "order_id"},
			schema.AggregateBinding{Prop: "rating", Func: schema.AggregateAvg, Table: "reviews", Column: "stars", ForeignKey: "order_id", Nullable: true},
		}},
		{Name: "LineItem", Table: byName["line_items"], Bindings: []schema.Binding{
			schema.ColumnBinding{Prop: "sku", Column: "sku"},
			schema.ColumnBinding{Prop: "quantity", Column: "quantity"},
			schema.SingleRefBinding{Prop: "order", Column: "order_id", Target: "Order"},
		}},
	}
}

// Shop returns the registry of the shop schema.
func Shop(t testing.TB) *schema.Registry {
	t.Helper()
	tables := ShopTables()
	reg, err := schema.NewRegistry(tables, ShopTypes(tables, false))
	require.NoError(t, err)
	return reg
}

// StrictShop returns the shop registry with a non-nullable Order.customer.
func StrictShop(t testing.TB) *schema.Registry {
	t.Helper()
	tables := ShopTables()
	reg, err := schema.NewRegistry(tables, ShopTypes(tables, true))
	require.NoError(t, err)
	return reg
}

// ShopCUE is the shop schema in CUE form, for loader and CLI tests.
const ShopCUE = `package shop

table: {
	customers: columns: {
		name:  "string"
		email: {kind: "string", nullable: true}
	}
	orders: columns: {
		total:       "float"
		customer_id: {kind: "uuid", nullable: true, references: "customers"}
	}
	line_items: columns: {
		sku:      "string"
		quantity: "int"
		order_id: {kind: "uuid", references: "orders"}
	}
	reviews: columns: {
		stars:    "int"
		order_id: {kind: "uuid", references: "orders"}
	}
}

type: {
	Customer: {
		table: "customers"
		bindings: {
			name:  {}
			email: {}
		}
	}
	Order: {
		table: "orders"
		bindings: {
			total:     {}
			customer:  {ref: "Customer", column: "customer_id", nullable: true}
			lineItems: {collection: "LineItem", foreignKey: "order_id"}
			rating:    {aggregate: "avg", table: "reviews", column: "stars", foreignKey: "order_id", nullable: true}
		}
	}
	LineItem: {
		table: "line_items"
		bindings: {
			sku:      {}
			quantity: {}
			order:    {ref: "Order", column: "order_id"}
		}
	}
}
`

// ShopFixture seeds the shop schema: customer Ada (ID(1)) with order ID(10)
// holding two line items and two reviews, and order ID(20) without customer,
// items or reviews.
const ShopFixture = `name: shop
description: one order with customer, items and reviews; one bare order
tables:
  - table: customers
    rows:
      - {id: 00000000-0000-7000-8000-000000000001, name: Ada, email: ada@example.com}
  - table: orders
    rows:
      - {id: 00000000-0000-7000-8000-000000000010, total: 42, customer_id: 00000000-0000-7000-8000-000000000001}
      - {id: 00000000-0000-7000-8000-000000000020, total: 7.5, customer_id: null}
  - table: line_items
    rows:
      - {id: 00000000-0000-7000-8000-000000000011, sku: A-1, quantity: 2, order_id: 00000000-0000-7000-8000-000000000010}
      - {id: 00000000-0000-7000-8000-000000000012, sku: B-2, quantity: 1, order_id: 00000000-0000-7000-8000-000000000010}
  - table: reviews
    rows:
      - {id: 00000000-0000-7000-8000-000000000013, stars: 4, order_id: 00000000-0000-7000-8000-000000000010}
      - {id: 00000000-0000-7000-8000-000000000014, stars: 5, order_id: 00000000-0000-7000-8000-000000000010}
`
