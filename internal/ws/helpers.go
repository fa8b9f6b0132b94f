package ws

import (
	"strconv"

	"github.com/google/uuid"
)

func newConnID() string {
	return uuid.NewString()
}

// parseCursor reads the after query value; empty means from the beginning.
func parseCursor(raw string) (int64, bool) {
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}
