package voxsync

// EventsModule routes contact and trigger pairs. The router subscribes to the backend
// when the engine starts, not at install.
type EventsModule struct {
	Log Logger
}

func (mod EventsModule) Install(app *App, cmd *Commands) {
	log := mod.Log
	if log == nil {
		log = app.Logger()
	}
	reg := MustResource[BodyRegistry](app)
	cmd.AddResources(NewEventRouter(reg, log.Named("events")))
	cmd.UseSystem(System(eventDispatchSystem).InStage(Dispatch))
}

func eventDispatchSystem(r *EventRouter) {
	r.Dispatch()
}
