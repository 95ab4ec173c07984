// Package logging configures log/slog for the gateway and carries a
// request-scoped logger through the context.
//
// Example usage:
//
//	logger := logging.New(logging.Options{Level: "info", Format: "json"})
//	slog.SetDefault(logger)
//
//	func handle(ctx context.Context) {
//	    logging.FromContext(ctx).Info("admitted", slog.String("stage", "role"))
//	}
package logging
