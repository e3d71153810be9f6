// Package geom holds the small vector types shared by the wire format and the
// entity tables.
package geom

import "math"

type Vec3 struct {
	X, Y, Z float32
}

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }

func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

func (v Vec3) Scale(f float32) Vec3 { return Vec3{v.X * f, v.Y * f, v.Z * f} }

func (v Vec3) Dot(o Vec3) float32 { return v.X*o.X + v.Y*o.Y + v.Z*o.Z }

func (v Vec3) LengthSq() float32 { return v.Dot(v) }

// DistanceSq is the squared euclidean distance between two points.
func (v Vec3) DistanceSq(o Vec3) float32 { return v.Sub(o).LengthSq() }

// Quat is a rotation quaternion.
type Quat struct {
	X, Y, Z, W float32
}

var Identity = Quat{W: 1}

func (q Quat) Dot(o Quat) float32 { return q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W }

// AngleTo returns the smallest rotation between q and o in degrees. q and -q
// describe the same orientation and yield zero.
func (q Quat) AngleTo(o Quat) float32 {
	nq, no := q.Dot(q), o.Dot(o)
	if nq == 0 || no == 0 {
		if nq == no {
			return 0
		}
		return 180
	}
	d := math.Abs(float64(q.Dot(o))) / math.Sqrt(float64(nq)*float64(no))
	if d > 1 {
		d = 1
	}
	return float32(2 * math.Acos(d) * 180 / math.Pi)
}

// FromYaw builds a rotation around the vertical axis.
func FromYaw(deg float32) Quat {
	half := float64(deg) * math.Pi / 360
	return Quat{Y: float32(math.Sin(half)), W: float32(math.Cos(half))}
}

// Color is an RGB triple in the 0..1 range.
type Color struct {
	R, G, B float32
}

// Transform is the replicated physical state of a body.
type Transform struct {
	Position Vec3
	Rotation Quat
	Velocity Vec3
}
