// Package spatial implements a fixed cell size 3D hash grid used for proximity queries.
package spatial

import (
	"fmt"
	"math"

	"github.com/xiaonanln/worldsync/engine/common"
)

// CellKey is the integer coordinate of one grid cell
type CellKey struct {
	X, Y, Z int32
}

func (k CellKey) String() string {
	return fmt.Sprintf("[%d,%d,%d]", k.X, k.Y, k.Z)
}

type member struct {
	key CellKey
	pos common.Vector3
}

// Stats describes the occupation of the grid
type Stats struct {
	CellSize           float64 `json:"cellSize"`
	Cells              int     `json:"cells"`
	Entities           int     `json:"entities"`
	AvgEntitiesPerCell float64 `json:"avgEntitiesPerCell"`
	MaxEntitiesPerCell int     `json:"maxEntitiesPerCell"`
}

// Grid is a spatial hash grid. Every entity belongs to exactly one cell.
//
// Grid is not goroutine-safe: it is owned by a single room loop.
type Grid struct {
	cellSize float64
	cells    map[CellKey]common.EntityIDSet
	members  map[common.EntityID]member // reverse index for O(1) removal
}

// NewGrid creates a grid with the given cell size; cell size can not be changed later.
func NewGrid(cellSize float64) *Grid {
	if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		cellSize = 1
	}
	return &Grid{
		cellSize: cellSize,
		cells:    map[CellKey]common.EntityIDSet{},
		members:  map[common.EntityID]member{},
	}
}

func (g *Grid) String() string {
	return fmt.Sprintf("Grid<%v|C%d|E%d>", g.cellSize, len(g.cells), len(g.members))
}

// CellSize returns the edge length of cells
func (g *Grid) CellSize() float64 {
	return g.cellSize
}

func (g *Grid) cellCoord(v common.Coord) int32 {
	return g.clampedCoord(float64(v))
}

// clampedCoord maps v to its cell coordinate, saturating at the int32 key range
func (g *Grid) clampedCoord(v float64) int32 {
	c := math.Floor(v / g.cellSize)
	if c <= math.MinInt32 {
		return math.MinInt32
	} else if c >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(c)
}

// KeyOf returns the key of the cell containing pos
func (g *Grid) KeyOf(pos common.Vector3) CellKey {
	return CellKey{g.cellCoord(pos.X), g.cellCoord(pos.Y), g.cellCoord(pos.Z)}
}

// Insert puts the entity at pos, removing any previous membership first
func (g *Grid) Insert(id common.EntityID, pos common.Vector3) {
	g.Remove(id)

	key := g.KeyOf(pos)
	cell := g.cells[key]
	if cell == nil {
		cell = common.EntityIDSet{}
		g.cells[key] = cell
	}
	cell.Add(id)
	g.members[id] = member{key: key, pos: pos}
}

// Remove takes the entity out of the grid, does nothing if it is not there
func (g *Grid) Remove(id common.EntityID) {
	m, ok := g.members[id]
	if !ok {
		return
	}
	delete(g.members, id)

	cell := g.cells[m.key]
	if cell == nil {
		return
	}
	cell.Del(id)
	if len(cell) == 0 {
		delete(g.cells, m.key)
	}
}

// Contains checks if the entity is in the grid
func (g *Grid) Contains(id common.EntityID) bool {
	_, ok := g.members[id]
	return ok
}

// Position returns the last inserted position of the entity
func (g *Grid) Position(id common.EntityID) (common.Vector3, bool) {
	m, ok := g.members[id]
	return m.pos, ok
}

// Len returns the number of entities in the grid
func (g *Grid) Len() int {
	return len(g.members)
}

// Query returns all entities within radius of center.
//
// Only cells intersecting the bounding cube are visited, so the cost is
// proportional to the number of cells in range plus the candidates found.
func (g *Grid) Query(center common.Vector3, radius float64) []common.EntityID {
	if len(g.members) == 0 || radius < 0 || math.IsNaN(radius) {
		return []common.EntityID{}
	}

	cx, cy, cz := float64(center.X), float64(center.Y), float64(center.Z)
	minKey := CellKey{g.clampedCoord(cx - radius), g.clampedCoord(cy - radius), g.clampedCoord(cz - radius)}
	maxKey := CellKey{g.clampedCoord(cx + radius), g.clampedCoord(cy + radius), g.clampedCoord(cz + radius)}
	radiusSq := radius * radius

	visit := func(cell common.EntityIDSet, res []common.EntityID, seen common.EntityIDSet) []common.EntityID {
		for id := range cell {
			if seen.Contains(id) {
				continue
			}
			seen.Add(id)
			if float64(g.members[id].pos.DistanceSqTo(center)) <= radiusSq {
				res = append(res, id)
			}
		}
		return res
	}

	res := []common.EntityID{}
	seen := common.EntityIDSet{}
	// float64 since the product of three int32 spans overflows int64
	cellsInRange := float64(int64(maxKey.X)-int64(minKey.X)+1) *
		float64(int64(maxKey.Y)-int64(minKey.Y)+1) *
		float64(int64(maxKey.Z)-int64(minKey.Z)+1)
	if cellsInRange > float64(len(g.cells)) {
		// huge radius: walking the occupied cells is cheaper than walking the cube
		for key, cell := range g.cells {
			if key.X < minKey.X || key.X > maxKey.X || key.Y < minKey.Y || key.Y > maxKey.Y || key.Z < minKey.Z || key.Z > maxKey.Z {
				continue
			}
			res = visit(cell, res, seen)
		}
		return res
	}

	// int64 counters so that a range ending at math.MaxInt32 terminates
	for x := int64(minKey.X); x <= int64(maxKey.X); x++ {
		for y := int64(minKey.Y); y <= int64(maxKey.Y); y++ {
			for z := int64(minKey.Z); z <= int64(maxKey.Z); z++ {
				if cell, ok := g.cells[CellKey{int32(x), int32(y), int32(z)}]; ok {
					res = visit(cell, res, seen)
				}
			}
		}
	}
	return res
}

// Clear removes every entity from the grid
func (g *Grid) Clear() {
	g.cells = map[CellKey]common.EntityIDSet{}
	g.members = map[common.EntityID]member{}
}

// Stats returns occupation statistics of the grid
func (g *Grid) Stats() Stats {
	st := Stats{
		CellSize: g.cellSize,
		Cells:    len(g.cells),
		Entities: len(g.members),
	}
	for _, cell := range g.cells {
		if len(cell) > st.MaxEntitiesPerCell {
			st.MaxEntitiesPerCell = len(cell)
		}
	}
	if st.Cells > 0 {
		st.AvgEntitiesPerCell = float64(st.Entities) / float64(st.Cells)
	}
	return st
}
