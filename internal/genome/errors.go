package genome

import "errors"

// All genome errors are fatal: they indicate a broken structure or a caller
// bug, never a condition that a retry can fix.
var (
	ErrDuplicateEdge   = errors.New("connection already exists")
	ErrEdgeNotFound    = errors.New("connection not found")
	ErrIndexOutOfRange = errors.New("neuron index out of range")
	ErrIllegalEdge     = errors.New("illegal connection endpoints")
	ErrDanglingNeuron  = errors.New("dangling neuron")
	ErrNonFinite       = errors.New("non-finite parameter")
	ErrUnsorted        = errors.New("connections not sorted")
	ErrShapeMismatch   = errors.New("genome shape mismatch")
	ErrUnknownNeuron   = errors.New("unknown neuron id")
	ErrIllegalPosition = errors.New("illegal neuron position")
)
