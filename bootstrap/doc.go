// Package bootstrap runs the medscribe process lifecycle.
//
// Startup has three phases. Infrastructure components registered before Run
// (database, cache, storage, telemetry) start first. OnConfigure callbacks
// then build the business layer on top of them and register the components
// that serve traffic (HTTP server, reaper), which start in the third phase.
// Shutdown runs OnStop hooks and stops every component in reverse order.
//
//	app, err := bootstrap.NewApp(&cfg)
//	app.RegisterComponent(db)
//	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*Config]) error {
//	    return a.RegisterComponent(server)
//	})
//	err = app.Run(ctx)
package bootstrap
