//go:build tinygo || !cgo

package glcull

import (
	"errors"
	"io"

	"github.com/soypat/gcull"
	"github.com/soypat/geometry/ms3"
)

var errNoCGO = errors.New("GPU frustum testing requires CGo and is not supported on TinyGo")

// Init1x1GLFW starts a 1x1 sized GLFW so that user can start working with GPU.
// It returns a termination function that should be called when user is done running loads on GPU.
func Init1x1GLFW() (terminate func(), err error) {
	return nil, errNoCGO
}

// NewComputeGPUTester instantiates a [Tester] that runs on the GPU. source is
// the output of [Programmer.WriteComputeTester] for the same frustum f.
func NewComputeGPUTester(source io.Reader, f gcull.Frustum, cfg ComputeConfig) (*TesterGPU, error) {
	return nil, errNoCGO
}

// TesterGPU implements the [Tester] interface with GPU compute.
type TesterGPU struct {
	f gcull.Frustum
}

// Frustum returns the frustum baked into the tester's compute program.
func (t *TesterGPU) Frustum() gcull.Frustum { return t.f }

// TestBoxes implements the [Tester] interface.
func (t *TesterGPU) TestBoxes(boxes []ms3.Box, margins []float32, userData any) error {
	return errNoCGO
}

// Evaluations returns total box tests performed during the tester's lifetime.
func (t *TesterGPU) Evaluations() uint64 { return 0 }
