//go:build !tinygo && cgo

package glcull

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"unsafe"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/soypat/gcull"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glgl/v4.6-core/glgl"
)

// Init1x1GLFW starts a 1x1 sized GLFW so that user can start working with GPU.
// It returns a termination function that should be called when user is done running loads on GPU.
func Init1x1GLFW() (terminate func(), err error) {
	_, terminate, err = glgl.InitWithCurrentWindow33(glgl.WindowConfig{
		Title:   "compute",
		Version: [2]int{4, 6},
		Width:   1,
		Height:  1,
	})
	return terminate, err
}

// NewComputeGPUTester instantiates a [Tester] that runs on the GPU. source is
// the output of [Programmer.WriteComputeTester] for the same frustum f.
func NewComputeGPUTester(source io.Reader, f gcull.Frustum, cfg ComputeConfig) (*TesterGPU, error) {
	if cfg.InvocX < 1 {
		return nil, errZeroInvoc
	}
	combinedSource, err := glgl.ParseCombined(source)
	if err != nil {
		return nil, err
	}
	glprog, err := glgl.CompileProgram(combinedSource)
	if err != nil {
		return nil, errors.New(string(combinedSource.Compute) + "\n" + err.Error())
	}
	t := TesterGPU{
		prog:   glprog,
		f:      f,
		invocX: cfg.InvocX,
	}
	return &t, nil
}

// TesterGPU implements the [Tester] interface with GPU compute.
type TesterGPU struct {
	prog   glgl.Program
	f      gcull.Frustum
	invocX int
	evals  uint64
}

// Frustum returns the frustum baked into the tester's compute program.
func (t *TesterGPU) Frustum() gcull.Frustum { return t.f }

// TestBoxes implements the [Tester] interface.
func (t *TesterGPU) TestBoxes(boxes []ms3.Box, margins []float32, userData any) error {
	if len(boxes) != len(margins) {
		return errMismatchBufferLength
	} else if len(boxes) == 0 {
		return errEmptyBuffers
	}
	t.prog.Bind()
	defer t.prog.Unbind()
	err := computeMargins(boxes, margins, t.invocX)
	if err != nil {
		return err
	}
	t.evals += uint64(len(boxes))
	return nil
}

// Evaluations returns total box tests performed during the tester's lifetime.
func (t *TesterGPU) Evaluations() uint64 { return t.evals }

func computeMargins(boxes []ms3.Box, margins []float32, invocX int) error {
	if invocX < 1 {
		return errZeroInvoc
	}
	var p runtime.Pinner
	var boxSSBO, marginSSBO uint32
	p.Pin(&boxSSBO)
	p.Pin(&marginSSBO)
	defer p.Unpin()

	boxSSBO = loadSSBO(boxes, 0, gl.STATIC_DRAW)
	if boxSSBO == 0 {
		return glErrOrMessage("zero SSBO id set by GL during box loading")
	}
	defer gl.DeleteBuffers(1, &boxSSBO)

	marginSSBO = createSSBO(elemSize[float32]()*len(margins), 1, gl.DYNAMIC_READ)
	if marginSSBO == 0 {
		return glErrOrMessage("zero id SSBO creating margin buffer")
	}
	defer gl.DeleteBuffers(1, &marginSSBO)
	nWorkX := (len(margins) + invocX - 1) / invocX
	gl.DispatchCompute(uint32(nWorkX), 1, 1)
	gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT)
	err := copySSBO(margins, marginSSBO)
	if err != nil {
		return err
	}
	return glgl.Err()
}

func loadSSBO[T any](slice []T, base, usage uint32) (ssbo uint32) {
	var p runtime.Pinner
	p.Pin(&ssbo)
	gl.GenBuffers(1, &ssbo)
	p.Unpin()
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, ssbo)
	size := len(slice) * elemSize[T]()
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, size, unsafe.Pointer(&slice[0]), usage)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, base, ssbo)
	return ssbo
}

func createSSBO(size int, base, usage uint32) (ssbo uint32) {
	gl.GenBuffers(1, &ssbo)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, ssbo)
	gl.BufferData(gl.SHADER_STORAGE_BUFFER, size, nil, usage)
	gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, base, ssbo)
	return ssbo
}

func copySSBO[T any](dst []T, ssbo uint32) error {
	singleSize := elemSize[T]()
	bufSize := singleSize * len(dst)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, ssbo)
	ptr := gl.MapBufferRange(gl.SHADER_STORAGE_BUFFER, 0, bufSize, gl.MAP_READ_BIT)
	if ptr == nil {
		return glErrOrMessage("failed to map SSBO buffer during copy")
	}
	defer gl.UnmapBuffer(gl.SHADER_STORAGE_BUFFER)
	gpuBytes := unsafe.Slice((*byte)(ptr), bufSize)
	bufBytes := unsafe.Slice((*byte)(unsafe.Pointer(&dst[0])), bufSize)
	copy(bufBytes, gpuBytes)
	return nil
}

func elemSize[T any]() int {
	var z T
	return int(unsafe.Sizeof(z))
}

func glErrOrMessage(defaultMsg string) (err error) {
	err = glgl.Err()
	if err == nil {
		err = errors.New(defaultMsg)
	} else {
		err = fmt.Errorf("%s: %w", defaultMsg, err)
	}
	return err
}
