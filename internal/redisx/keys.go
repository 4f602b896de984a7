package redisx

import "time"

const (
	// Checkout idempotency: idem:checkout:{external_id} -> order_id
	KeyIdemCheckout = "idem:checkout:%s"

	// Serialized order cache: order:{order_id} -> order JSON
	KeyOrderCache = "order:%s"

	// Cart hash per customer: cart:{customer_id} -> {product_id: qty}
	KeyCart = "cart:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLOrderCache  = 5 * time.Minute
)
