package display

import (
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Proxy is the recorded state of one spawned proxy.
type Proxy struct {
	Kind        Kind
	Anchor      Transform
	Matrix      mgl32.Mat4
	InterpTicks int
	Visible     bool
	Dead        bool

	Teleports  int
	Transforms int
}

// World is where the host draws the proxy.
func (p Proxy) World() mgl32.Mat4 {
	return p.Anchor.Mat4().Mul4(p.Matrix)
}

// WorldPosition is the translation of World.
func (p Proxy) WorldPosition() mgl32.Vec3 {
	return p.World().Col(3).Vec3()
}

// Scene is an in-memory System. Killed proxies stay listed as dead until removed.
type Scene struct {
	mu      sync.Mutex
	next    Handle
	proxies map[Handle]*Proxy
}

var _ System = (*Scene)(nil)

func NewScene() *Scene {
	return &Scene{proxies: make(map[Handle]*Proxy)}
}

func (s *Scene) Spawn(kind Kind, at Transform) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.proxies[s.next] = &Proxy{
		Kind:   kind,
		Anchor: normalized(at),
		Matrix: mgl32.Ident4(),
	}
	return s.next
}

func (s *Scene) SetTransform(h Handle, m mgl32.Mat4, interpTicks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.live(h); p != nil {
		p.Matrix = m
		p.InterpTicks = interpTicks
		p.Transforms++
	}
}

func (s *Scene) SetVisible(h Handle, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.live(h); p != nil {
		p.Visible = visible
	}
}

func (s *Scene) Teleport(h Handle, at Transform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.live(h); p != nil {
		p.Anchor = normalized(at)
		p.Teleports++
	}
}

func (s *Scene) IsDead(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proxies[h]
	return !ok || p.Dead
}

func (s *Scene) Remove(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.proxies, h)
}

// Kill simulates the host destroying a proxy, e.g. an administrative cleanup.
func (s *Scene) Kill(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.proxies[h]; ok {
		p.Dead = true
		p.Visible = false
	}
}

// Proxy returns a copy of h's state.
func (s *Scene) Proxy(h Handle) (Proxy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.proxies[h]
	if !ok {
		return Proxy{}, false
	}
	return *p, true
}

func (s *Scene) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.proxies)
}

// Visible lists visible proxies in handle order.
func (s *Scene) Visible() []Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Handle
	for h, p := range s.proxies {
		if p.Visible {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *Scene) live(h Handle) *Proxy {
	p, ok := s.proxies[h]
	if !ok || p.Dead {
		return nil
	}
	return p
}

func normalized(t Transform) Transform {
	if t.Rotation.Len() < 1e-6 {
		t.Rotation = mgl32.QuatIdent()
	}
	t.Rotation = t.Rotation.Normalize()
	return t
}
