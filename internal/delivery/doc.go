// Package delivery provides the strategies that carry result notifications
// from an MXE gateway to the client. Each gateway notification has a
// sequence number; strategies track the highest one delivered so a
// reconnect or a fallback resumes exactly where delivery stopped.
//
// # Delivery Strategies
//
//   - [SSEStrategy]: Uses Server-Sent Events for push delivery. Lowest
//     latency, recommended for most use cases.
//
//   - [PollingStrategy]: Periodically lists results after the last delivered
//     sequence number, backing off while nothing new arrives.
//
//   - [AutoStrategy]: Tries SSE first and falls back to polling when the
//     stream cannot be established or is lost for good.
//
// # Usage
//
//	cfg := delivery.Config{APIClient: apiClient}
//	strategy := delivery.NewAutoStrategy(cfg)
//
//	strategy.Start(ctx, func(ctx context.Context, ev *wire.ResultEvent) error {
//	    // Correlate ev.Result
//	    return nil
//	})
//	defer strategy.Stop()
//
// # Backoff and Retry
//
//   - Polling increases intervals from 2s to 30s max when nothing new arrives
//   - SSE reconnects with exponential backoff up to 10 attempts
//   - Jitter prevents thundering herd when multiple clients reconnect
//
// # Thread Safety
//
// All strategy types are safe for concurrent use. Once Stop returns the
// handler is not invoked again.
package delivery
