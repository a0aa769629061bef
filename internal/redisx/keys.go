package redisx

import "time"

const (
	// Daily invoice counter: invoice:seq:{yyyymmdd} -> n
	KeyInvoiceSeq = "invoice:seq:%s"

	// Idempotent sale creation: idem:sale:create:{idempotency_key} -> sale_id ("" while in flight)
	KeyIdemSaleCreate = "idem:sale:create:%s"

	// Cached summary of a closed day: report:{cache_key} -> Summary JSON
	KeyReport = "report:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Products currently below threshold: hash lowstock, field product_id -> alert JSON
	KeyLowStock = "lowstock"

	// Running takings per day from SaleRecorded events: hash takings:{yyyymmdd} {total, count}
	KeyTakings = "takings:%s"
)

var (
	TTLInvoiceSeq  = 48 * time.Hour
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
	TTLTakings     = 7 * 24 * time.Hour

	// in-flight idempotency claim when the caller gives no request budget
	TTLIdempotencyPending = 30 * time.Second
)
