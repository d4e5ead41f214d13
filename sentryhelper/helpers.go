// Package sentryhelper provides utilities for Sentry transaction and scope management.
// It ensures proper isolation of breadcrumbs and context per batch run.
package sentryhelper

import (
	"context"
	"fmt"

	sentry "github.com/getsentry/sentry-go"
)

// contextKey is used to store the cloned hub in context
type contextKey string

const hubContextKey contextKey = "sentry_hub"

// StartBatchTransaction creates a new transaction with a cloned hub for one batch run.
// The cloned hub ensures breadcrumbs and scope are isolated to this run only.
// Returns the context with the transaction and hub, plus the transaction span.
func StartBatchTransaction(ctx context.Context, page string, taskID string, items int) (context.Context, *sentry.Span) {
	// Clone the hub to isolate scope (breadcrumbs, tags)
	hub := sentry.CurrentHub().Clone()

	ctx = context.WithValue(ctx, hubContextKey, hub)
	ctx = sentry.SetHubOnContext(ctx, hub)

	transactionName := fmt.Sprintf("batch.%s", page)
	transaction := sentry.StartTransaction(ctx, transactionName,
		sentry.WithOpName("batch.run"),
		sentry.WithTransactionSource(sentry.SourceTask),
	)

	transaction.SetTag("page", page)
	transaction.SetTag("task_id", taskID)
	transaction.SetData("items", items)

	// Bind the transaction to the cloned hub's scope
	hub.Scope().SetSpan(transaction)
	hub.Scope().SetTag("task_id", taskID)

	return transaction.Context(), transaction
}

// HubFromContext retrieves the cloned hub from context.
// Falls back to CurrentHub if no cloned hub is found.
func HubFromContext(ctx context.Context) *sentry.Hub {
	if ctx == nil {
		return sentry.CurrentHub()
	}
	if hub, ok := ctx.Value(hubContextKey).(*sentry.Hub); ok && hub != nil {
		return hub
	}
	return sentry.CurrentHub()
}

// AddBreadcrumb adds a breadcrumb to the hub in context (isolated per run).
func AddBreadcrumb(ctx context.Context, breadcrumb *sentry.Breadcrumb) {
	hub := HubFromContext(ctx)
	hub.AddBreadcrumb(breadcrumb, nil)
}

// CaptureException captures an exception on the hub in context.
func CaptureException(ctx context.Context, err error) *sentry.EventID {
	hub := HubFromContext(ctx)
	return hub.CaptureException(err)
}
