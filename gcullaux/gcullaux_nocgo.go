//go:build tinygo || !cgo

package gcullaux

import (
	"errors"

	"github.com/soypat/gcull"
)

func ui(tree *gcull.Octree, cfg UIConfig) error {
	return errors.New("require cgo for UI rendering")
}
