package voxsync

type GrabModule struct {
	Config GrabConfig
	Log    Logger
}

func (mod GrabModule) Install(app *App, cmd *Commands) {
	log := mod.Log
	if log == nil {
		log = app.Logger()
	}
	reg := MustResource[BodyRegistry](app)
	cmd.AddResources(NewKinematicController(reg, mod.Config, log.Named("grab")))
	cmd.UseSystem(System(grabUpdateSystem).InStage(Kinematic))
}

func grabUpdateSystem(k *KinematicController) {
	k.Update()
}
