package glcull

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/soypat/gcull"
	"github.com/soypat/geometry/ms3"
)

// Tester evaluates frustum-box margins in vectorized form suitable for
// running on GPU. See [gcull.Frustum.BoxMargin] for the margin definition.
type Tester interface {
	// TestBoxes computes the frustum margin of each box. margins and boxes
	// must be of same length. Resulting margins are stored in margins; a
	// non-negative margin means the box is at least partially inside the
	// frustum.
	//
	// userData facilitates getting data to the testers for use in processing.
	TestBoxes(boxes []ms3.Box, margins []float32, userData any) error
	// Frustum returns the frustum the tester evaluates against.
	Frustum() gcull.Frustum
}

var (
	errEmptyBuffers         = fmt.Errorf("%w: empty buffers", gcull.ErrInvalidInput)
	errMismatchBufferLength = fmt.Errorf("%w: box and margin buffer length mismatch", gcull.ErrInvalidInput)
	errZeroInvoc            = errors.New("zero or negative invocation size")
)

// ComputeConfig configures the work group sizes of GPU compute workloads.
type ComputeConfig struct {
	// InvocX is the local work group size in the X dimension. Query the
	// maximum supported on the local machine with glgl.MaxComputeInvocations.
	InvocX int
}

// NewTesterCPU instantiates a [Tester] that runs on the CPU.
func NewTesterCPU(f gcull.Frustum) *TesterCPU {
	return &TesterCPU{f: f}
}

// TesterCPU implements the [Tester] interface with CPU evaluation.
type TesterCPU struct {
	f     gcull.Frustum
	evals uint64
}

// Frustum returns the frustum the tester evaluates against.
func (t *TesterCPU) Frustum() gcull.Frustum { return t.f }

// TestBoxes implements the [Tester] interface.
func (t *TesterCPU) TestBoxes(boxes []ms3.Box, margins []float32, userData any) error {
	if len(boxes) != len(margins) {
		return errMismatchBufferLength
	} else if len(boxes) == 0 {
		return errEmptyBuffers
	}
	for i, bb := range boxes {
		margins[i] = t.f.BoxMargin(bb)
	}
	t.evals += uint64(len(boxes))
	return nil
}

// Evaluations returns total box tests performed during the tester's lifetime.
func (t *TesterCPU) Evaluations() uint64 { return t.evals }

// Programmer generates compute shader source code which evaluates frustum-box
// margins on the GPU. The frustum's planes are baked into the source as
// constants, so a program is compiled per frustum and reused over arbitrarily
// many box batches.
type Programmer struct {
	computeHeader []byte
	scratch       []byte
	// Invocations size in X (local group size) to give each compute work group.
	invocX int
}

var defaultComputeHeader = []byte("#shader compute\n#version 430\n")

// NewDefaultProgrammer returns a Programmer with reasonable default parameters for use with glgl package on the local machine.
func NewDefaultProgrammer() *Programmer {
	return &Programmer{
		computeHeader: defaultComputeHeader,
		invocX:        32,
	}
}

// SetComputeInvocations sets the work group local-sizes. x*y*z must be less than maximum number of invocations.
func (p *Programmer) SetComputeInvocations(x, y, z int) {
	if y != 1 || z != 1 {
		panic("unsupported")
	} else if x < 1 {
		panic("zero or negative X invocation size")
	}
	p.invocX = x
}

// ComputeInvocations returns the worker group invocation size in x y and z.
func (p *Programmer) ComputeInvocations() (int, int, int) {
	return p.invocX, 1, 1
}

// WriteComputeTester creates the I/O compute program which evaluates the
// frustum margin of axis aligned boxes and writes it to the writer. The six
// planes of f are emitted as a shader constant.
func (p *Programmer) WriteComputeTester(w io.Writer, f gcull.Frustum) (int, error) {
	n, err := w.Write(p.computeHeader)
	if err != nil {
		return n, err
	}
	p.scratch = appendPlanesDecl(p.scratch[:0], f)
	ngot, err := w.Write(p.scratch)
	n += ngot
	if err != nil {
		return n, err
	}
	ngot, err = fmt.Fprintf(w, computeTesterBody, p.invocX)
	n += ngot
	return n, err
}

const computeTesterBody = `
layout(local_size_x = %d, local_size_y = 1, local_size_z = 1) in;

// Input: box corners, 6 floats per box (min xyz followed by max xyz).
layout(std430, binding = 0) buffer BoxesBuffer {
    float bbuf_corners[];
};

// Output: frustum margin per box. Maps to box buffer.
layout(std430, binding = 1) buffer MarginsBuffer {
    float bbuf_margins[];
};

float box_margin(vec3 lo, vec3 hi) {
    float margin = 3.4e38;
    for (int i = 0; i < 6; i++) {
        vec4 pl = frustum_planes[i];
        vec3 v = mix(lo, hi, greaterThanEqual(pl.xyz, vec3(0.0)));
        margin = min(margin, dot(pl.xyz, v) + pl.w);
    }
    return margin;
}

void main() {
    int idx = int( gl_GlobalInvocationID.x );
    if (idx >= bbuf_margins.length()) {
        return;
    }
    int c = idx*6;
    vec3 lo = vec3(bbuf_corners[c+0], bbuf_corners[c+1], bbuf_corners[c+2]);
    vec3 hi = vec3(bbuf_corners[c+3], bbuf_corners[c+4], bbuf_corners[c+5]);
    bbuf_margins[idx] = box_margin(lo, hi);   // Evaluate margin and store to output buffer.
}
`

func appendPlanesDecl(b []byte, f gcull.Frustum) []byte {
	b = append(b, "\nconst vec4 frustum_planes[6] = vec4[6](\n"...)
	for i := range f {
		b = append(b, "    vec4("...)
		b = appendFloats(b, ',', f[i].Normal.X, f[i].Normal.Y, f[i].Normal.Z, f[i].Offset)
		b = append(b, ')')
		if i != len(f)-1 {
			b = append(b, ',')
		}
		b = append(b, '\n')
	}
	b = append(b, ");\n"...)
	return b
}

const decimalDigits = 9

func appendFloat(b []byte, v float32) []byte {
	start := len(b)
	b = strconv.AppendFloat(b, float64(v), 'f', decimalDigits, 32)
	// Trim trailing zeroes, keeping one decimal digit.
	idx := bytes.IndexByte(b[start:], '.')
	end := len(b)
	for i := len(b) - 1; idx >= 0 && i > start+idx+1 && b[i] == '0'; i-- {
		end--
	}
	return b[:end]
}

func appendFloats(b []byte, sep byte, s ...float32) []byte {
	for i, v := range s {
		b = appendFloat(b, v)
		if i != len(s)-1 {
			b = append(b, sep)
		}
	}
	return b
}
