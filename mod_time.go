package voxsync

// Time is the fixed-step clock. Tick is the number of the step being run, starting at
// 1, and advances in PostStep.
type Time struct {
	Tick    uint64
	Dt      float32
	Elapsed float64
}

type TimeModule struct {
	TickRate float64
}

func (mod TimeModule) Install(app *App, cmd *Commands) {
	cmd.AddResources(&Time{
		Tick: 1,
		Dt:   float32(1 / mod.TickRate),
	})
	cmd.UseSystem(System(timeSystem).InStage(PostStep))
}

func timeSystem(t *Time) {
	t.Elapsed += float64(t.Dt)
	t.Tick++
}
