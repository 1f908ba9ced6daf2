package common

import (
	"fmt"
	"math"
)

// Coord is the type of coordinates of entity position (x, y, z)
type Coord float32

// Vector3 is type of entity position
type Vector3 struct {
	X Coord `msgpack:"x" json:"x"`
	Y Coord `msgpack:"y" json:"y"`
	Z Coord `msgpack:"z" json:"z"`
}

func (p Vector3) String() string {
	return fmt.Sprintf("(%.2f, %.2f, %.2f)", p.X, p.Y, p.Z)
}

// DistanceTo calculates distance between two positions
func (p Vector3) DistanceTo(o Vector3) Coord {
	return Coord(math.Sqrt(float64(p.DistanceSqTo(o))))
}

// DistanceSqTo calculates the squared distance between two positions
func (p Vector3) DistanceSqTo(o Vector3) Coord {
	dx := p.X - o.X
	dy := p.Y - o.Y
	dz := p.Z - o.Z
	return dx*dx + dy*dy + dz*dz
}

// Sub calculates Vector3 p - Vector3 o
func (p Vector3) Sub(o Vector3) Vector3 {
	return Vector3{p.X - o.X, p.Y - o.Y, p.Z - o.Z}
}

// Add calculates Vector3 p + Vector3 o
func (p Vector3) Add(o Vector3) Vector3 {
	return Vector3{p.X + o.X, p.Y + o.Y, p.Z + o.Z}
}

// Mul calculates Vector3 p * m
func (p Vector3) Mul(m Coord) Vector3 {
	return Vector3{p.X * m, p.Y * m, p.Z * m}
}

// Lerp interpolates component-wise from p to o by t
func (p Vector3) Lerp(o Vector3, t float64) Vector3 {
	return p.Add(o.Sub(p).Mul(Coord(t)))
}

// ToMap converts the position into a tree node for delta compression
func (p Vector3) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"x": float64(p.X),
		"y": float64(p.Y),
		"z": float64(p.Z),
	}
}

// Yaw is the type of entity rotation around the vertical axis
type Yaw float32

// LerpYaw interpolates rotation scalarly from a to b by t
func LerpYaw(a, b Yaw, t float64) Yaw {
	return a + (b-a)*Yaw(t)
}
