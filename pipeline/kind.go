// Package pipeline sequences a full data refresh: expand archives, harvest
// the fetchable months per dataset kind, compact archives, and load the
// archive tree into the store.
package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Kind selects one dataset of the pipeline.
type Kind int

const (
	Wind Kind = iota
	Solar
	Price
)

// ErrInvalidKind rejects an unknown dataset selection. It is a caller
// error, never retried.
var ErrInvalidKind = errors.New("pipeline: invalid kind")

var kindNames = [...]string{"wind", "solar", "belpex"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseSelection maps a selection string to the kinds it covers.
// "all" (or empty) selects every kind.
func ParseSelection(s string) ([]Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "wind":
		return []Kind{Wind}, nil
	case "solar":
		return []Kind{Solar}, nil
	case "belpex", "price":
		return []Kind{Price}, nil
	case "all", "":
		return []Kind{Wind, Solar, Price}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidKind, s)
}
