/*
Package monitoring collects Prometheus metrics for the server.

Metrics live on a registry owned by each Metrics value, so tests and
multiple servers in one process never collide on registration. Metrics
implements the recorder interfaces of the job loop, the engine and the
module resolver:

	metrics := monitoring.NewMetrics()
	eng, _ := engine.New(ctx, engine.Config{Metrics: metrics, ...})
	res := resolver.New(loaders...).Instrument(metrics)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
*/
package monitoring
