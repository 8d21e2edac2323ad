package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random dash-less UUID, safe for headers and URLs.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
