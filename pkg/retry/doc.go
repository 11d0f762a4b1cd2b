// Package retry provides backoff strategies and two ways of retrying
// transient failures: Do for arbitrary operations, and Transport, an
// http.RoundTripper that re-issues requests failing with a transport error
// or a retryable status.
//
//	client := &http.Client{
//		Transport: retry.NewTransport(nil, retry.Policy{
//			MaxAttempts:     3,
//			Backoff:         retry.DefaultExponentialBackoff(),
//			RetryableStatus: []int{429, 500, 502, 503, 504},
//		}, log),
//	}
//
//	err := retry.Do(ctx, func(ctx context.Context) error {
//		return chromedp.Run(ctx, chromedp.Navigate(target))
//	}, &retry.Config{MaxAttempts: 2, Backoff: &retry.ConstantBackoff{Delay: time.Second}})
//
// Both honor context cancellation while waiting between attempts.
package retry
