package fieldname

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToSnake(t *testing.T) {
	cases := map[string]string{
		"name":         "name",
		"customerId":   "customer_id",
		"customerID":   "customer_id",
		"HTTPServer":   "http_server",
		"OrderLine":    "order_line",
		"already_done": "already_done",
		"address2City": "address2_city",
		"":             "",
	}
	for in, want := range cases {
		assert.Equal(t, want, ToSnake(in), in)
	}
}

func TestResolvers(t *testing.T) {
	assert.Equal(t, "createdAt", Identity{}.ResolveFieldName("Order", "createdAt"))
	assert.Equal(t, "created_at", SnakeCase{}.ResolveFieldName("Order", "createdAt"))

	m := Mapped{
		Fields: map[string]map[string]string{
			"Order": {"total": "amount_cents"},
		},
		Fallback: SnakeCase{},
	}
	assert.Equal(t, "amount_cents", m.ResolveFieldName("Order", "total"))
	assert.Equal(t, "placed_at", m.ResolveFieldName("Order", "placedAt"))
	assert.Equal(t, "total", m.ResolveFieldName("Invoice", "total"))
	assert.Equal(t, "placedAt", Mapped{}.ResolveFieldName("Order", "placedAt"))

	upper := ResolverFunc(func(_, f string) string { return f + "!" })
	assert.Equal(t, "x!", upper.ResolveFieldName("", "x"))
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "line_items.0.unit_price", ResolvePath(SnakeCase{}, "Order", "lineItems.0.unitPrice"))
	assert.Equal(t, "_id", ResolvePath(SnakeCase{}, "Order", "_id"))
	assert.Equal(t, "lineItems", ResolvePath(SnakeCase{}, "", "lineItems"))
	assert.Equal(t, "lineItems", ResolvePath(nil, "Order", "lineItems"))
}

func TestCollectionName(t *testing.T) {
	assert.Equal(t, "order_lines", CollectionName("OrderLine"))
	assert.Equal(t, "categories", CollectionName("Category"))
	assert.Equal(t, "people", CollectionName("Person"))
	assert.Equal(t, "category", EntityType("categories"))
}
