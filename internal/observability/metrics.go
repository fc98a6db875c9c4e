package observability

const (
	MUsecaseRequests       MetricKey = "usecase_requests_total"
	MUsecaseDuration       MetricKey = "usecase_duration_seconds"
	MHTTPRequests          MetricKey = "http_requests_total"
	MHTTPRequestDuration   MetricKey = "http_request_duration_seconds"
	MStockConflicts        MetricKey = "checkout_stock_conflicts_total"
	MWebhookEvents         MetricKey = "payment_webhook_events_total"
	MEventPublishFailures  MetricKey = "event_publish_failed_total"
	MCartsSwept            MetricKey = "carts_swept_total"
)
