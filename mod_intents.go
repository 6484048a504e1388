package voxsync

// IntentsModule applies queued intents against Engine at the start of every tick.
type IntentsModule struct {
	Engine *Engine
}

func (mod IntentsModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&IntentQueue{}, mod.Engine)
	cmd.UseSystem(System(intentApplySystem).InStage(Intake))
}

func intentApplySystem(q *IntentQueue, e *Engine) {
	for _, in := range q.Drain() {
		in.apply(e)
	}
}
