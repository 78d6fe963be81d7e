// Package force is a velocity-Verlet force simulation with d3-force semantics:
// link springs, many-body charge, collision avoidance and centering, cooled by a
// geometrically decaying alpha.
package force

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/barneshut"
	"gonum.org/v1/gonum/spatial/r2"
)

// Defaults used by canopy's layout.
const (
	DefaultLinkDistance      = 100.0
	DefaultLinkStrength      = 1.0
	DefaultChargeStrength    = -500.0
	DefaultChargeDistanceMin = 1.0
	DefaultChargeDistanceMax = 300.0
	DefaultTheta             = 0.9
	DefaultCollideRadius     = 30.0
	DefaultCollideStrength   = 0.7
	DefaultVelocityDecay     = 0.3
	DefaultAlphaMin          = 0.001
	DefaultAlphaDecay        = 0.0228
)

const (
	initialRadius = 10.0
	jiggleScale   = 1e-6
)

var initialAngle = math.Pi * (3 - math.Sqrt(5))

// Body is a simulated point. Fixed, when set, overrides integration.
type Body struct {
	Pos   r2.Vec
	Vel   r2.Vec
	Fixed *r2.Vec
}

// Coord2 implements barneshut.Particle2.
func (b *Body) Coord2() r2.Vec { return b.Pos }

// Mass implements barneshut.Particle2. All bodies carry the same charge.
func (b *Body) Mass() float64 { return 1 }

// Spring joins two bodies by index.
type Spring struct {
	Source, Target int
}

// Config holds the force parameters.
type Config struct {
	LinkDistance float64
	LinkStrength float64

	ChargeStrength    float64
	ChargeDistanceMin float64
	ChargeDistanceMax float64
	Theta             float64

	CollideRadius   float64
	CollideStrength float64

	Center r2.Vec

	VelocityDecay float64
	AlphaMin      float64
	AlphaDecay    float64
}

// DefaultConfig returns canopy's force configuration centered on center.
func DefaultConfig(center r2.Vec) Config {
	return Config{
		LinkDistance:      DefaultLinkDistance,
		LinkStrength:      DefaultLinkStrength,
		ChargeStrength:    DefaultChargeStrength,
		ChargeDistanceMin: DefaultChargeDistanceMin,
		ChargeDistanceMax: DefaultChargeDistanceMax,
		Theta:             DefaultTheta,
		CollideRadius:     DefaultCollideRadius,
		CollideStrength:   DefaultCollideStrength,
		Center:            center,
		VelocityDecay:     DefaultVelocityDecay,
		AlphaMin:          DefaultAlphaMin,
		AlphaDecay:        DefaultAlphaDecay,
	}
}

// Simulation integrates bodies one tick at a time. It is not safe for concurrent use.
type Simulation struct {
	cfg     Config
	bodies  []*Body
	springs []Spring
	bias    []float64

	alpha       float64
	alphaTarget float64
	random      func() float64
}

// New returns a simulation at alpha 1 with no bodies.
func New(cfg Config) *Simulation {
	return &Simulation{cfg: cfg, alpha: 1, random: rand.Float64}
}

// SetRandom replaces the jiggle source, for deterministic runs.
func (s *Simulation) SetRandom(fn func() float64) {
	s.random = fn
}

// Config returns the force parameters.
func (s *Simulation) Config() Config { return s.cfg }

// SetBodies replaces the simulated bodies. Springs must be set again afterwards.
func (s *Simulation) SetBodies(bodies []*Body) {
	s.bodies = bodies
	s.springs = nil
	s.bias = nil
}

// Bodies returns the simulated bodies.
func (s *Simulation) Bodies() []*Body { return s.bodies }

// SetSprings replaces the springs. Springs referencing a missing body are dropped.
func (s *Simulation) SetSprings(springs []Spring) {
	s.springs = s.springs[:0]
	count := make([]int, len(s.bodies))
	for _, sp := range springs {
		if sp.Source < 0 || sp.Source >= len(s.bodies) || sp.Target < 0 || sp.Target >= len(s.bodies) {
			continue
		}
		s.springs = append(s.springs, sp)
		count[sp.Source]++
		count[sp.Target]++
	}
	s.bias = make([]float64, len(s.springs))
	for i, sp := range s.springs {
		s.bias[i] = float64(count[sp.Source]) / float64(count[sp.Source]+count[sp.Target])
	}
}

// Springs returns the active springs.
func (s *Simulation) Springs() []Spring { return s.springs }

func (s *Simulation) Alpha() float64           { return s.alpha }
func (s *Simulation) SetAlpha(a float64)       { s.alpha = a }
func (s *Simulation) AlphaTarget() float64     { return s.alphaTarget }
func (s *Simulation) SetAlphaTarget(a float64) { s.alphaTarget = a }
func (s *Simulation) AlphaMin() float64        { return s.cfg.AlphaMin }

// Settled reports whether alpha has cooled below the minimum.
func (s *Simulation) Settled() bool { return s.alpha < s.cfg.AlphaMin }

// Tick cools alpha, applies every force and integrates positions once.
func (s *Simulation) Tick() {
	s.alpha += (s.alphaTarget - s.alpha) * s.cfg.AlphaDecay

	s.applyLinks()
	s.applyCharge()
	s.applyCollide()
	s.applyCenter()

	decay := 1 - s.cfg.VelocityDecay
	for _, b := range s.bodies {
		if b.Fixed != nil {
			b.Pos = *b.Fixed
			b.Vel = r2.Vec{}
			continue
		}
		b.Vel = r2.Scale(decay, b.Vel)
		b.Pos = r2.Add(b.Pos, b.Vel)
	}
}

// Energy returns the summed squared speed of all free bodies.
func (s *Simulation) Energy() float64 {
	var e float64
	for _, b := range s.bodies {
		if b.Fixed == nil {
			e += r2.Norm2(b.Vel)
		}
	}
	return e
}

func (s *Simulation) jiggle() float64 {
	return (s.random() - 0.5) * jiggleScale
}

func (s *Simulation) applyLinks() {
	if s.cfg.LinkStrength == 0 {
		return
	}
	for i, sp := range s.springs {
		src, dst := s.bodies[sp.Source], s.bodies[sp.Target]
		x := dst.Pos.X + dst.Vel.X - src.Pos.X - src.Vel.X
		if x == 0 {
			x = s.jiggle()
		}
		y := dst.Pos.Y + dst.Vel.Y - src.Pos.Y - src.Vel.Y
		if y == 0 {
			y = s.jiggle()
		}
		l := math.Sqrt(x*x + y*y)
		l = (l - s.cfg.LinkDistance) / l * s.alpha * s.cfg.LinkStrength
		x, y = x*l, y*l

		b := s.bias[i]
		dst.Vel.X -= x * b
		dst.Vel.Y -= y * b
		b = 1 - b
		src.Vel.X += x * b
		src.Vel.Y += y * b
	}
}

func (s *Simulation) applyCharge() {
	if s.cfg.ChargeStrength == 0 || len(s.bodies) < 2 {
		return
	}
	particles := make([]barneshut.Particle2, len(s.bodies))
	for i, b := range s.bodies {
		particles[i] = b
	}
	theta := s.cfg.Theta
	plane, err := barneshut.NewPlane(particles)
	if err != nil {
		// Coordinates too close to split; sum every pair directly.
		plane = &barneshut.Plane{Particles: particles}
		theta = 0
	}

	min2 := s.cfg.ChargeDistanceMin * s.cfg.ChargeDistanceMin
	max2 := math.Inf(1)
	if s.cfg.ChargeDistanceMax > 0 && !math.IsInf(s.cfg.ChargeDistanceMax, 1) {
		max2 = s.cfg.ChargeDistanceMax * s.cfg.ChargeDistanceMax
	}
	strength := s.cfg.ChargeStrength * s.alpha

	charge := func(p1, p2 barneshut.Particle2, _, m2 float64, v r2.Vec) r2.Vec {
		if p1 == p2 {
			return r2.Vec{}
		}
		l2 := v.X*v.X + v.Y*v.Y
		if l2 >= max2 {
			return r2.Vec{}
		}
		if l2 == 0 {
			if p2 == nil {
				return r2.Vec{}
			}
			v = r2.Vec{X: s.jiggle(), Y: s.jiggle()}
			l2 = v.X*v.X + v.Y*v.Y
		}
		if l2 < min2 {
			l2 = math.Sqrt(min2 * l2)
		}
		return r2.Scale(strength*m2/l2, v)
	}

	deltas := make([]r2.Vec, len(s.bodies))
	for i, b := range s.bodies {
		deltas[i] = plane.ForceOn(b, theta, charge)
	}
	for i, b := range s.bodies {
		b.Vel = r2.Add(b.Vel, deltas[i])
	}
}

func (s *Simulation) applyCollide() {
	if s.cfg.CollideRadius <= 0 || s.cfg.CollideStrength == 0 || len(s.bodies) < 2 {
		return
	}
	idx := newCollisionIndex(s.bodies)
	r := s.cfg.CollideRadius
	reach := 2 * r
	for i, b := range s.bodies {
		xi := r2.Add(b.Pos, b.Vel)
		for _, j := range idx.within(xi, reach) {
			if j <= i {
				continue
			}
			other := s.bodies[j]
			x := xi.X - other.Pos.X - other.Vel.X
			y := xi.Y - other.Pos.Y - other.Vel.Y
			l := x*x + y*y
			if l >= reach*reach {
				continue
			}
			if x == 0 {
				x = s.jiggle()
				l += x * x
			}
			if y == 0 {
				y = s.jiggle()
				l += y * y
			}
			l = math.Sqrt(l)
			l = (reach - l) / l * s.cfg.CollideStrength
			x, y = x*l, y*l

			// Equal radii split the correction evenly.
			const share = 0.5
			b.Vel.X += x * share
			b.Vel.Y += y * share
			other.Vel.X -= x * (1 - share)
			other.Vel.Y -= y * (1 - share)
		}
	}
}

func (s *Simulation) applyCenter() {
	if len(s.bodies) == 0 {
		return
	}
	var sum r2.Vec
	for _, b := range s.bodies {
		sum = r2.Add(sum, b.Pos)
	}
	shift := r2.Sub(r2.Scale(1/float64(len(s.bodies)), sum), s.cfg.Center)
	for _, b := range s.bodies {
		b.Pos = r2.Sub(b.Pos, shift)
	}
}

// Phyllotaxis returns the i-th start position of a sunflower spiral around center.
func Phyllotaxis(i int, center r2.Vec) r2.Vec {
	radius := initialRadius * math.Sqrt(0.5+float64(i))
	angle := float64(i) * initialAngle
	return r2.Vec{
		X: center.X + radius*math.Cos(angle),
		Y: center.Y + radius*math.Sin(angle),
	}
}
