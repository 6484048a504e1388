package voxsync

import "github.com/gekko3d/voxsync/rt/volume"

type TerrainModule struct {
	World  *volume.World
	Config StreamingConfig
	Log    Logger
}

func (mod TerrainModule) Install(app *App, cmd *Commands) {
	log := mod.Log
	if log == nil {
		log = app.Logger()
	}
	reg := MustResource[BodyRegistry](app)
	cmd.AddResources(NewTerrainStreamer(reg, mod.World, mod.Config, log.Named("terrain")))
	cmd.UseSystem(System(terrainStreamSystem).InStage(Stream))
}

func terrainStreamSystem(s *TerrainStreamer, t *Time) {
	s.Update(t.Tick)
}
