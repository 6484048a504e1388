package voxsync

import (
	"sort"

	"github.com/gekko3d/voxsync/rt/backend"
	"github.com/gekko3d/voxsync/rt/display"
	"github.com/go-gl/mathgl/mgl32"
)

// SwapPhase is where a visual pair is in the re-anchoring handoff.
type SwapPhase int

const (
	// PhaseStable: the front visual follows the body.
	PhaseStable SwapPhase = iota
	// PhasePreSwap: the back visual has been re-anchored and is shown next to the front.
	PhasePreSwap
	// PhaseSwapping: the front is hidden and parked, and the roles flip.
	PhaseSwapping
)

func (p SwapPhase) String() string {
	switch p {
	case PhaseStable:
		return "stable"
	case PhasePreSwap:
		return "pre-swap"
	case PhaseSwapping:
		return "swapping"
	}
	return "unknown"
}

// nextPhase is the per-tick transition of the swap protocol. far reports that the body
// is beyond the front visual's interpolation range.
func nextPhase(p SwapPhase, far bool) SwapPhase {
	switch p {
	case PhaseStable:
		if far {
			return PhasePreSwap
		}
		return PhaseStable
	case PhasePreSwap:
		return PhaseSwapping
	default:
		return PhaseStable
	}
}

// visualPair is one double-buffered visual at a fixed offset from the body origin.
type visualPair struct {
	front, back display.Handle
	offset      mgl32.Vec3
	phase       SwapPhase

	frontAnchor mgl32.Vec3
	backAnchor  mgl32.Vec3

	pushed  bool
	lastPos mgl32.Vec3
	lastRot mgl32.Quat
}

type proxyEntry struct {
	kind  display.Kind
	pairs []*visualPair
}

// VisualSync mirrors body poses onto display proxies once per tick.
type VisualSync struct {
	reg  *BodyRegistry
	disp display.System
	cfg  VisualConfig
	log  Logger

	proxies map[backend.Handle]*proxyEntry
	onPrune []func(backend.Handle)
}

func NewVisualSync(reg *BodyRegistry, disp display.System, cfg VisualConfig, log Logger) *VisualSync {
	return &VisualSync{
		reg:     reg,
		disp:    disp,
		cfg:     cfg,
		log:     orNop(log),
		proxies: make(map[backend.Handle]*proxyEntry),
	}
}

// Track spawns a visual pair per offset for h. The front visual is shown at once.
func (v *VisualSync) Track(h backend.Handle, kind display.Kind, offsets []mgl32.Vec3) error {
	pose, err := v.reg.Pose(h)
	if err != nil {
		return err
	}
	v.Untrack(h)

	entry := &proxyEntry{kind: kind}
	for _, off := range offsets {
		at := pose.Apply(off)
		p := &visualPair{
			front:       v.disp.Spawn(kind, display.At(at)),
			back:        v.disp.Spawn(kind, display.At(at)),
			offset:      off,
			frontAnchor: at,
			backAnchor:  at,
		}
		v.disp.SetVisible(p.front, true)
		v.push(p, p.front, p.frontAnchor, pose)
		entry.pairs = append(entry.pairs, p)
	}
	v.proxies[h] = entry
	return nil
}

// Untrack removes h's visuals. The body is left alone.
func (v *VisualSync) Untrack(h backend.Handle) {
	entry, ok := v.proxies[h]
	if !ok {
		return
	}
	for _, p := range entry.pairs {
		v.disp.Remove(p.front)
		v.disp.Remove(p.back)
	}
	delete(v.proxies, h)
}

func (v *VisualSync) Tracked(h backend.Handle) bool {
	_, ok := v.proxies[h]
	return ok
}

func (v *VisualSync) Len() int {
	return len(v.proxies)
}

// OnPrune registers fn to run after a pruned body is gone.
func (v *VisualSync) OnPrune(fn func(backend.Handle)) {
	v.onPrune = append(v.onPrune, fn)
}

// Update prunes, then syncs every surviving proxy.
func (v *VisualSync) Update() {
	v.Prune()
	for _, h := range v.handles() {
		v.sync(h)
	}
}

// Prune destroys bodies whose visuals died or that fell below the world floor, and
// returns them.
func (v *VisualSync) Prune() []backend.Handle {
	var pruned []backend.Handle
	for _, h := range v.handles() {
		reason := v.pruneReason(h)
		if reason == "" {
			continue
		}
		v.Untrack(h)
		v.reg.Destroy(h, true)
		pruned = append(pruned, h)
		v.log.Debugf("pruned body %d: %s", h, reason)
	}
	for _, h := range pruned {
		for _, fn := range v.onPrune {
			fn(h)
		}
	}
	return pruned
}

func (v *VisualSync) pruneReason(h backend.Handle) string {
	pose, err := v.reg.Pose(h)
	if err != nil {
		return "body gone"
	}
	if pose.Position.Y() < v.cfg.WorldFloor {
		return "below world floor"
	}
	for _, p := range v.proxies[h].pairs {
		if v.disp.IsDead(p.front) || v.disp.IsDead(p.back) {
			return "visual dead"
		}
	}
	return ""
}

func (v *VisualSync) sync(h backend.Handle) {
	pose, err := v.reg.Pose(h)
	if err != nil {
		return
	}
	for _, p := range v.proxies[h].pairs {
		v.step(p, pose)
	}
}

// step advances one pair by one tick.
func (v *VisualSync) step(p *visualPair, pose backend.Pose) {
	target := pose.Apply(p.offset)
	far := target.Sub(p.frontAnchor).Len() > v.cfg.SwapThreshold

	switch p.phase {
	case PhaseStable:
		if far {
			p.backAnchor = target
			v.disp.Teleport(p.back, display.At(target))
			v.push(p, p.back, p.backAnchor, pose)
		} else {
			v.pushIfMoved(p, pose)
		}
	case PhasePreSwap:
		v.push(p, p.back, p.backAnchor, pose)
		v.disp.SetVisible(p.back, true)
	case PhaseSwapping:
		v.disp.SetVisible(p.front, false)
		v.disp.Teleport(p.front, display.At(target))
		p.front, p.back = p.back, p.front
		p.frontAnchor, p.backAnchor = p.backAnchor, target
		v.push(p, p.front, p.frontAnchor, pose)
	}
	p.phase = nextPhase(p.phase, far)
}

func (v *VisualSync) pushIfMoved(p *visualPair, pose backend.Pose) {
	const eps = 1e-5
	if p.pushed && pose.Position.ApproxEqualThreshold(p.lastPos, eps) && pose.Rotation.ApproxEqualThreshold(p.lastRot, eps) {
		return
	}
	v.push(p, p.front, p.frontAnchor, pose)
}

// push sends the anchor-relative transform of the pair's visual at pose to h.
func (v *VisualSync) push(p *visualPair, h display.Handle, anchor mgl32.Vec3, pose backend.Pose) {
	rel := pose.Position.Sub(anchor)
	m := mgl32.Translate3D(rel.X(), rel.Y(), rel.Z()).
		Mul4(pose.Rotation.Mat4()).
		Mul4(mgl32.Translate3D(p.offset.X(), p.offset.Y(), p.offset.Z()))
	v.disp.SetTransform(h, m, v.cfg.InterpolationTicks)
	if h == p.front {
		p.pushed = true
		p.lastPos = pose.Position
		p.lastRot = pose.Rotation
	}
}

// Phase returns the swap phase of h's first visual pair.
func (v *VisualSync) Phase(h backend.Handle) (SwapPhase, bool) {
	entry, ok := v.proxies[h]
	if !ok || len(entry.pairs) == 0 {
		return PhaseStable, false
	}
	return entry.pairs[0].phase, true
}

// Visuals returns the current front and back handles of h's visual pairs.
func (v *VisualSync) Visuals(h backend.Handle) (front, back []display.Handle) {
	entry, ok := v.proxies[h]
	if !ok {
		return nil, nil
	}
	for _, p := range entry.pairs {
		front = append(front, p.front)
		back = append(back, p.back)
	}
	return front, back
}

// Clear removes every visual without touching bodies.
func (v *VisualSync) Clear() {
	for _, h := range v.handles() {
		v.Untrack(h)
	}
}

func (v *VisualSync) handles() []backend.Handle {
	out := make([]backend.Handle, 0, len(v.proxies))
	for h := range v.proxies {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
