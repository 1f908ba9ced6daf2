package syncclient

import (
	"github.com/xiaonanln/typeconv"
	"github.com/xiaonanln/worldsync/engine/common"
	"github.com/xiaonanln/worldsync/engine/delta"
)

// normalize converts generically decoded maps into delta trees recursively
func normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		for k, item := range val {
			val[k] = normalize(item)
		}
		return val
	case map[interface{}]interface{}:
		return normalize(typeconv.MapStringAnything(val))
	case []interface{}:
		for i, item := range val {
			val[i] = normalize(item)
		}
		return val
	}
	return v
}

func normalizeTree(v interface{}) delta.Tree {
	if t, ok := normalize(v).(delta.Tree); ok {
		return t
	}
	return delta.Tree{}
}

func toFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return float64(typeconv.Int(val)), true
	}
	return 0, false
}

// poseOf reads position and rotation from an entity state tree
func poseOf(t delta.Tree) (common.Vector3, common.Yaw, bool) {
	posTree, ok := t["pos"].(delta.Tree)
	if !ok {
		return common.Vector3{}, 0, false
	}
	x, okx := toFloat(posTree["x"])
	y, oky := toFloat(posTree["y"])
	z, okz := toFloat(posTree["z"])
	if !okx || !oky || !okz {
		return common.Vector3{}, 0, false
	}
	rot, _ := toFloat(t["rot"])
	return common.Vector3{X: common.Coord(x), Y: common.Coord(y), Z: common.Coord(z)}, common.Yaw(rot), true
}
