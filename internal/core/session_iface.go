package core

import "github.com/google/uuid"

// ConnID is the process-unique id of one live connection.
type ConnID string

// NewConnID returns a fresh id; ids are never reused while the process runs.
func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}
