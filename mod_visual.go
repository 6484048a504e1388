package voxsync

import "github.com/gekko3d/voxsync/rt/display"

type VisualModule struct {
	Display display.System
	Config  VisualConfig
	Log     Logger
}

func (mod VisualModule) Install(app *App, cmd *Commands) {
	log := mod.Log
	if log == nil {
		log = app.Logger()
	}
	reg := MustResource[BodyRegistry](app)
	cmd.AddResources(NewVisualSync(reg, mod.Display, mod.Config, log.Named("visual")))
	cmd.UseSystem(System(visualSyncSystem).InStage(Sync))
}

func visualSyncSystem(v *VisualSync) {
	v.Update()
}
