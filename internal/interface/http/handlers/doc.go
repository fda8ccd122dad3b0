// Package handlers contains the reusable pieces of the HTTP interface:
// health checks and middleware.
//
// # Health Checks
//
// The HealthChecker interface allows registering multiple named health checks
// that are executed in parallel:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("store", handlers.NewPingCheck(store))
//	checker.AddCheck("ranking_cache", handlers.NewPingCheck(redisCache))
//
//	status := checker.Check(ctx)
//
// # Middleware
//
// Middleware share the func(http.Handler) http.Handler shape and compose
// with Chain:
//
//	limiter := handlers.NewIPRateLimiter(20, 40, 10*time.Minute)
//	h := handlers.ChainHandler(mux,
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.RequestSizeLimitMiddleware(1<<20),
//	    limiter.Middleware(clientIP, onLimited),
//	)
package handlers
