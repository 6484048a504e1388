// Command voxsim runs the synchronization engine headless over a generated voxel world
// and reports what the terrain streamer did.
package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/gekko3d/voxsync"
	"github.com/gekko3d/voxsync/rt/backend"
	"github.com/gekko3d/voxsync/rt/display"
	"github.com/gekko3d/voxsync/rt/solver"
	"github.com/gekko3d/voxsync/rt/volume"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/draw"
)

const (
	groundTop   = 0
	worldRadius = 4
	mapScale    = 16
)

type options struct {
	config      string
	ticks       int
	boxes       int
	vox         string
	livenessMap string
	records     string
}

func main() {
	var opts options
	flag.StringVar(&opts.config, "config", "", "YAML config file (defaults apply when empty)")
	flag.IntVar(&opts.ticks, "ticks", 200, "number of world steps to run")
	flag.IntVar(&opts.boxes, "boxes", 8, "number of boxes to drop")
	debug := flag.Bool("debug", false, "log chunk loads, prunes and grabs")
	flag.StringVar(&opts.vox, "vox", "", "MagicaVoxel model to stamp onto the ground")
	flag.StringVar(&opts.livenessMap, "liveness-map", "", "write a PNG of how long each chunk stayed loaded")
	flag.StringVar(&opts.records, "records", "", "write the final body records as YAML")
	flag.Parse()

	log := voxsync.NewDefaultLogger("voxsim", *debug)
	if err := run(opts, log); err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(opts options, log voxsync.Logger) error {
	cfg := voxsync.DefaultConfig()
	if opts.config != "" {
		var err error
		if cfg, err = voxsync.LoadConfig(opts.config); err != nil {
			return err
		}
	}

	world := volume.NewWorld(-16, 48, volume.DefaultPalette())
	for _, c := range (volume.ChunkCoord{}).Neighborhood(worldRadius) {
		volume.GenerateFlat(world, c, groundTop, volume.Stone, volume.Grass)
	}
	if opts.vox != "" {
		if err := stampVox(world, opts.vox, log); err != nil {
			return err
		}
	}

	be := solver.New(solverConfig(cfg.Solver))
	scene := display.NewScene()
	engine, err := voxsync.NewEngine(cfg, be, scene, world, voxsync.WithLogger(log))
	if err != nil {
		return err
	}
	if err := engine.Start(); err != nil {
		return err
	}
	defer engine.Shutdown()

	pruned := 0
	engine.OnPrune(func(backend.Handle) { pruned++ })
	contacts := 0
	engine.RegisterContactListener(func(ev voxsync.ContactEvent) {
		if ev.Touch == backend.TouchFound {
			contacts++
		}
	})

	first, err := dropBoxes(engine, opts.boxes)
	if err != nil {
		return err
	}
	actor := voxsync.NewActorID()

	liveness := make(map[volume.ChunkCoord]int)
	for i := 0; i < opts.ticks; i++ {
		switch i {
		case opts.ticks / 2:
			if first != backend.NoBody {
				// look along -Z at the lowest box from just in front of it
				eye := mgl32.Vec3{0, groundTop + 1.5, 3.5}
				engine.Enqueue(voxsync.GrabIntent{
					View: voxsync.ActorView{Actor: actor, Eye: eye, Orientation: mgl32.QuatIdent()},
					Done: func(h backend.Handle, ok bool) {
						log.Infof("grab at tick %d: body %d ok=%v", i, h, ok)
					},
				})
			}
		case opts.ticks * 3 / 4:
			engine.Enqueue(voxsync.ReleaseIntent{Actor: actor})
		}
		if err := engine.Tick(); err != nil {
			return err
		}
		for _, c := range engine.Streamer().Loaded() {
			liveness[c]++
		}
	}

	stats := engine.Streamer().Stats()
	log.Infof("%d ticks: %d bodies, %d chunks loaded, %d colliders", opts.ticks, engine.Registry().Len(), len(engine.Streamer().Loaded()), stats.Colliders)
	log.Infof("streaming: %d loads, %d unloads, %d reloads, %d skipped columns, %d skipped degenerate",
		stats.Loads, stats.Unloads, stats.Reloads, stats.SkippedColumns, stats.SkippedDegenerate)
	log.Infof("%d contacts found, %d bodies pruned", contacts, pruned)

	if opts.livenessMap != "" {
		if err := writeLivenessMap(opts.livenessMap, liveness, opts.ticks); err != nil {
			return err
		}
	}
	if opts.records != "" {
		if err := writeRecords(opts.records, engine.RecordAll()); err != nil {
			return err
		}
	}
	return nil
}

func solverConfig(c voxsync.SolverConfig) solver.Config {
	sc := solver.DefaultConfig()
	sc.SleepThreshold = c.SleepThreshold
	sc.SleepTime = c.SleepTime
	sc.LinearDamping = c.LinearDamping
	sc.AngularDamping = c.AngularDamping
	sc.Friction = c.Friction
	sc.Restitution = c.Restitution
	return sc
}

// dropBoxes spawns a column of boxes over the origin chunk, spread on a small ring so
// some of them tumble off each other. It returns the lowest one.
func dropBoxes(e *voxsync.Engine, n int) (backend.Handle, error) {
	first := backend.NoBody
	half := mgl32.Vec3{0.5, 0.5, 0.5}
	for i := 0; i < n; i++ {
		angle := float32(i) * 0.7
		pos := mgl32.Vec3{
			float32(0.3 * float64(i%3)),
			float32(3 + 2*i),
			0.3 * angle,
		}
		pose := backend.Pose{
			Position: pos,
			Rotation: mgl32.QuatRotate(angle, mgl32.Vec3{0, 1, 0}),
		}
		h, err := e.CreateBox(pose, []voxsync.ShapeSpec{voxsync.BoxShape(half, mgl32.Vec3{})}, 1, false)
		if err != nil {
			return backend.NoBody, fmt.Errorf("drop box %d: %w", i, err)
		}
		if first == backend.NoBody {
			first = h
		}
	}
	return first, nil
}

func stampVox(w *volume.World, path string, log voxsync.Logger) error {
	f, err := volume.LoadVox(path)
	if err != nil {
		return err
	}
	if len(f.Models) == 0 {
		return fmt.Errorf("%s: no models", path)
	}
	m := f.Models[0]
	origin := [3]int{-int(m.SizeX) / 2, groundTop + 1, -int(m.SizeY) / 2}
	n := volume.Stamp(w, m, origin, func(byte) volume.BlockID { return volume.Stone })
	log.Infof("stamped %d voxels from %s", n, path)
	return nil
}

// writeLivenessMap renders one pixel per chunk, brighter the longer it stayed loaded,
// and scales it up for viewing.
func writeLivenessMap(path string, liveness map[volume.ChunkCoord]int, ticks int) error {
	size := 2*worldRadius + 1
	small := image.NewGray(image.Rect(0, 0, size, size))
	for c, n := range liveness {
		x, y := int(c.X)+worldRadius, int(c.Z)+worldRadius
		if x < 0 || y < 0 || x >= size || y >= size {
			continue
		}
		small.SetGray(x, y, color.Gray{Y: uint8(255 * n / max(ticks, 1))})
	}

	big := image.NewGray(image.Rect(0, 0, size*mapScale, size*mapScale))
	draw.NearestNeighbor.Scale(big, big.Bounds(), small, small.Bounds(), draw.Src, nil)

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("liveness map: %w", err)
	}
	defer out.Close()
	if err := png.Encode(out, big); err != nil {
		return fmt.Errorf("liveness map: %w", err)
	}
	return nil
}

func writeRecords(path string, recs []voxsync.BodyRecord) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("records: %w", err)
	}
	defer out.Close()
	return voxsync.EncodeRecords(out, recs)
}
