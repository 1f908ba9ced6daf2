package proto

// DeltaOpType is the kind of a delta operation
type DeltaOpType string

const (
	// DeltaSet assigns the value at the path
	DeltaSet DeltaOpType = "set"
	// DeltaDelete removes the leaf key at the path
	DeltaDelete DeltaOpType = "delete"
)

// DeltaOperation describes one change at a dot-separated path of a data tree
type DeltaOperation struct {
	Path      string      `msgpack:"path" json:"path"`
	Value     interface{} `msgpack:"value" json:"value"`
	Operation DeltaOpType `msgpack:"operation" json:"operation"`
}
