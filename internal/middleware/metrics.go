package middleware

// Metrics Interface (Future Prometheus integration)
// For now, we rely on Logs, but this struct holds the place for CounterVecs.

func RecordRateLimit(scope string, result string) {
	// In future: rateLimitRequestsTotal.WithLabelValues(scope, result).Inc()
	// For MVP: the rate-limit middleware logs Redis failures; rejected requests are not logged.
	// This function can be used for explicit metric incrementing if we add Prom client.
}

func RecordRedisError() {
	// In future: rateLimitRedisErrorsTotal.Inc()
}
