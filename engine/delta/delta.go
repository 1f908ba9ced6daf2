// Package delta computes structural diffs between two versions of a keyed data tree
// and applies them back.
//
// Trees are map[string]interface{} values. Nested map[string]interface{} values are
// diffed recursively, everything else (including slices) is compared as a whole leaf.
// Keys must be non-empty and must not contain the path separator.
package delta

import (
	"reflect"
	"sort"
	"strings"

	"github.com/xiaonanln/worldsync/engine/gwlog"
	"github.com/xiaonanln/worldsync/engine/proto"
)

// PathSeparator separates the keys of a delta path
const PathSeparator = "."

// Tree is a keyed data tree
type Tree = map[string]interface{}

// Compress returns the operations transforming previous into current
func Compress(current, previous Tree) []proto.DeltaOperation {
	ops := []proto.DeltaOperation{}
	if current == nil {
		current = Tree{}
	}
	if previous == nil {
		previous = Tree{}
	}
	if sameMap(current, previous) {
		return ops
	}
	return diff(ops, "", current, previous)
}

func validKey(key string) bool {
	return key != "" && !strings.Contains(key, PathSeparator)
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + PathSeparator + key
}

func sortedUnionKeys(a, b Tree) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func diff(ops []proto.DeltaOperation, prefix string, current, previous Tree) []proto.DeltaOperation {
	keys := sortedUnionKeys(current, previous)
	for _, k := range keys {
		if !validKey(k) {
			if prefix == "" {
				gwlog.Warnf("delta: key %q can not be addressed by a path, ignored", k)
				continue
			}
			// the subtree can not be addressed key by key, replace it as a whole
			return append(ops, proto.DeltaOperation{Path: prefix, Value: current, Operation: proto.DeltaSet})
		}
	}

	for _, k := range keys {
		if !validKey(k) {
			continue
		}
		path := joinPath(prefix, k)
		cur, inCur := current[k]
		prev, inPrev := previous[k]
		if !inCur {
			ops = append(ops, proto.DeltaOperation{Path: path, Operation: proto.DeltaDelete})
			continue
		}
		if !inPrev {
			ops = append(ops, proto.DeltaOperation{Path: path, Value: cur, Operation: proto.DeltaSet})
			continue
		}

		curMap, curIsMap := cur.(Tree)
		prevMap, prevIsMap := prev.(Tree)
		if curIsMap && prevIsMap {
			if !sameMap(curMap, prevMap) {
				ops = diff(ops, path, curMap, prevMap)
			}
			continue
		}
		if !equalLeaf(cur, prev) {
			ops = append(ops, proto.DeltaOperation{Path: path, Value: cur, Operation: proto.DeltaSet})
		}
	}
	return ops
}

func sameMap(a, b Tree) bool {
	if a == nil || b == nil {
		return false
	}
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

func equalLeaf(a, b interface{}) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return reflect.DeepEqual(a, b)
}

// Decompress applies operations to base and returns the resulting tree.
//
// base is never modified: maps along every written path are copied first.
// Operations with malformed paths are skipped.
func Decompress(base Tree, ops []proto.DeltaOperation) Tree {
	res := Tree{}
	for k, v := range base {
		res[k] = v
	}

	// maps already copied during this call can be written in place
	owned := map[uintptr]bool{reflect.ValueOf(res).Pointer(): true}
	for _, op := range ops {
		if !apply(res, op, owned) {
			gwlog.Debugf("delta: skipped malformed operation %s %q", op.Operation, op.Path)
		}
	}
	return res
}

func apply(root Tree, op proto.DeltaOperation, owned map[uintptr]bool) bool {
	if op.Path == "" {
		return false
	}
	segs := strings.Split(op.Path, PathSeparator)
	for _, seg := range segs {
		if seg == "" {
			return false
		}
	}
	if op.Operation != proto.DeltaSet && op.Operation != proto.DeltaDelete {
		return false
	}

	node := root
	for _, seg := range segs[:len(segs)-1] {
		child, ok := node[seg]
		if !ok || child == nil {
			if op.Operation == proto.DeltaDelete {
				return true // nothing to delete
			}
			newChild := Tree{}
			owned[reflect.ValueOf(newChild).Pointer()] = true
			node[seg] = newChild
			node = newChild
			continue
		}

		childMap, isMap := child.(Tree)
		if !isMap {
			return false
		}
		if !owned[reflect.ValueOf(childMap).Pointer()] {
			childMap = copyMap(childMap)
			owned[reflect.ValueOf(childMap).Pointer()] = true
			node[seg] = childMap
		}
		node = childMap
	}

	leaf := segs[len(segs)-1]
	if op.Operation == proto.DeltaSet {
		node[leaf] = op.Value
	} else {
		delete(node, leaf)
	}
	return true
}

func copyMap(m Tree) Tree {
	c := make(Tree, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// Clone deep copies the maps of a tree; slices and other leaves are shared
func Clone(t Tree) Tree {
	if t == nil {
		return nil
	}
	c := make(Tree, len(t))
	for k, v := range t {
		if m, ok := v.(Tree); ok {
			c[k] = Clone(m)
		} else {
			c[k] = v
		}
	}
	return c
}
