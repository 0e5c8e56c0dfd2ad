// Package dispatch is the outbound message pipeline in front of the
// messaging gateway: asynchronous, retryable, deduplicating and batching.
// The gateway itself delivers at-least-once and possibly out of order; the
// duplicate suppression here is for our own redundant internal events, not
// the provider's redelivery.
package dispatch

import "context"

// Gateway is the consumed messaging capability. Implementations are
// fire-and-forget clients for a chat provider.
type Gateway interface {
	SendText(ctx context.Context, recipient, text string) error
	SendQuestion(ctx context.Context, recipient, text string, options []string, index int) error
}
