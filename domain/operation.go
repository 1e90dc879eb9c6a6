package domain

// Operation is the change stream operation type carried on the wire.
type Operation string

const (
	OpInsert       Operation = "insert"
	OpUpdate       Operation = "update"
	OpDelete       Operation = "delete"
	OpReplace      Operation = "replace"
	OpDrop         Operation = "drop"
	OpRename       Operation = "rename"
	OpDropDatabase Operation = "dropDatabase"
	OpInvalidate   Operation = "invalidate"
)

// Actionable reports whether the pipeline acts on the operation. Everything
// else is logged and dropped.
func (op Operation) Actionable() bool {
	switch op {
	case OpInsert, OpUpdate, OpDelete, OpReplace:
		return true
	}
	return false
}

// NeedsFullDocument reports whether the operation requires a full document
// snapshot in its envelope.
func (op Operation) NeedsFullDocument() bool {
	switch op {
	case OpInsert, OpUpdate, OpReplace:
		return true
	}
	return false
}
