package voxsync

import "github.com/gekko3d/voxsync/rt/backend"

// PhysicsModule owns the backend through a BodyRegistry resource and steps it once per
// tick in the Simulate stage.
type PhysicsModule struct {
	Backend backend.Backend
	Log     Logger
}

func (mod PhysicsModule) Install(app *App, cmd *Commands) {
	log := mod.Log
	if log == nil {
		log = app.Logger()
	}
	cmd.AddResources(NewBodyRegistry(mod.Backend, log.Named("bodies")))
	cmd.UseSystem(System(physicsStepSystem).InStage(Simulate))
}

// physicsStepSystem is the happens-before boundary: nothing later in the tick sees
// backend state from before it.
func physicsStepSystem(reg *BodyRegistry, t *Time) {
	reg.Step(t.Dt)
}
