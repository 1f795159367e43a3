// Package bootstrap runs the application lifecycle: typed configuration,
// component start and stop, lifecycle hooks, signal handling and a
// startup summary.
//
//	app, err := bootstrap.NewApp(&cfg)
//	app.RegisterComponent(schedulerComponent)
//	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*AppConfig]) error {
//	    return registerRoutes(a)
//	})
//	err = app.Run(ctx)
//
// Run blocks until SIGINT or SIGTERM. RunTask runs a finite job, such as a
// CLI transcription, with the same startup and shutdown.
package bootstrap
