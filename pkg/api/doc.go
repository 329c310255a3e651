// Package api provides the optional HTTP server of tagwatch.
//
// Handlers registered through RegisterFunc or RegisterHandler require a bearer
// token; the /health endpoint does not. The server shuts down gracefully when
// the context passed to Start is cancelled.
//
// Usage example:
//
//	server := api.New(token, ":8080")
//	server.RegisterFunc(checkHandler.Path, checkHandler.Handle)
//	if err := server.Start(ctx, true); err != nil {
//	    logrus.WithError(err).Error("API start failed")
//	}
package api
