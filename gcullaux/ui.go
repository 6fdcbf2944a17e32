//go:build !tinygo && cgo

package gcullaux

import (
	"fmt"
	"log"
	"math"
	"time"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/soypat/gcull"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glgl/v4.6-core/glgl"
)

func ui(tree *gcull.Octree, cfg UIConfig) error {
	bb := tree.Bounds()
	diag := bb.Diagonal()
	center := bb.Center()
	// Initialize GLFW
	window, term, err := startGLFW(cfg.Width, cfg.Height)
	if err != nil {
		log.Fatal(err)
	}
	defer term()
	prog, err := glgl.CompileProgram(glgl.ShaderSource{
		Vertex: `#version 460
in vec3 aPos;
uniform mat4 uViewProjection;
void main() {
    gl_Position = uViewProjection * vec4(aPos, 1.0);
}
` + "\x00",
		Fragment: `#version 460
uniform vec3 uColor;
out vec4 fragColor;
void main() {
    fragColor = vec4(uColor, 1.0);
}
` + "\x00",
	})
	if err != nil {
		return fmt.Errorf("compiling wireframe program: %w", err)
	}
	prog.Bind()
	var vao uint32
	gl.GenVertexArrays(1, &vao)
	gl.BindVertexArray(vao)

	var vbo uint32
	gl.GenBuffers(1, &vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	vpUniform, err := prog.UniformLocation("uViewProjection\x00")
	if err != nil {
		return err
	}
	colorUniform, err := prog.UniformLocation("uColor\x00")
	if err != nil {
		return err
	}
	// Specify the layout of the vertex data
	posAttrib, err := prog.AttribLocation("aPos\x00")
	if err != nil {
		return err
	}
	gl.EnableVertexAttribArray(posAttrib)
	gl.VertexAttribPointer(posAttrib, 3, gl.FLOAT, false, 0, gl.PtrOffset(0))

	// Enable depth testing
	gl.Enable(gl.DEPTH_TEST)

	// Set up mouse input tracking

	minZoom := float64(diag * 0.00001)
	maxZoom := float64(diag * 10)
	var (
		yaw              float64
		pitch            float64
		lastMouseX       float64
		lastMouseY       float64
		camDist          float64 = float64(diag) // initial camera distance
		firstMouseMove           = true
		isMousePressed           = false
		yawSensitivity           = 0.005
		pitchSensitivity         = 0.005
		refresh                  = true
	)
	flagEdit := func() {
		refresh = true
	}
	window.SetCursorPosCallback(func(w *glfw.Window, xpos float64, ypos float64) {
		if !isMousePressed {
			return
		}
		flagEdit()
		if firstMouseMove {
			lastMouseX = xpos
			lastMouseY = ypos
			firstMouseMove = false
		}

		deltaX := xpos - lastMouseX
		deltaY := ypos - lastMouseY

		yaw += deltaX * yawSensitivity
		pitch -= deltaY * pitchSensitivity // Invert y-axis

		// Clamp pitch
		pi := math.Pi
		maxPitch := pi/2 - 0.01
		if pitch > maxPitch {
			pitch = maxPitch
		}
		if pitch < -maxPitch {
			pitch = -maxPitch
		}

		lastMouseX = xpos
		lastMouseY = ypos
	})

	window.SetScrollCallback(func(w *glfw.Window, xoff, yoff float64) {
		flagEdit()
		camDist -= yoff * (camDist*.1 + .01)
		if camDist < minZoom {
			camDist = minZoom // Minimum zoom level
		}
		if camDist > maxZoom {
			camDist = maxZoom // Maximum zoom level
		}
	})

	window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		switch button {
		case glfw.MouseButtonLeft:
			flagEdit()
			if action == glfw.Press {
				isMousePressed = true
				firstMouseMove = true
				window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
			} else if action == glfw.Release {
				isMousePressed = false
				window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
			}
		}
	})

	// Main render loop
	ctx := cfg.Context
	var culler gcull.Culler
	var visible []gcull.NodeID
	var lines []float32
	for !window.ShouldClose() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		width, height := window.GetSize()
		// Clear the screen
		gl.ClearColor(0.0, 0.0, 0.0, 1.0)
		gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

		// Place orbiting camera behind the target, same orbit as scroll/drag state.
		dir := ms3.Vec{
			X: float32(math.Cos(pitch) * math.Sin(yaw)),
			Y: float32(math.Sin(pitch)),
			Z: float32(math.Cos(pitch) * math.Cos(yaw)),
		}
		eye := ms3.Sub(center, ms3.Scale(float32(camDist), dir))
		view := LookAt(eye, center, ms3.Vec{Y: 1})
		near := float32(camDist) * 0.01
		far := float32(camDist) + 2*diag
		proj := Perspective(math.Pi/3, float32(width)/float32(height), near, far)
		vp := MulMat4(proj, view)

		// Cull against the very frustum rendering the frame. Boxes leaving
		// the viewport stop being drawn the frame they exit it.
		visible, err = culler.AppendVisible(visible[:0], tree, gcull.FrustumFromArray(vp))
		if err != nil {
			return err
		}
		lines = appendBoxLines(lines[:0], bb)
		rootVerts := int32(len(lines) / 3)
		for _, id := range visible {
			if tree.IsLeaf(id) {
				lines = appendBoxLines(lines, tree.NodeBox(id))
			}
		}
		gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
		gl.BufferData(gl.ARRAY_BUFFER, 4*len(lines), gl.Ptr(lines), gl.DYNAMIC_DRAW)

		// Set uniforms and draw root outline dim, visible leaves bright.
		prog.Bind()
		gl.UniformMatrix4fv(vpUniform, 1, true, &vp[0])
		gl.BindVertexArray(vao)
		gl.Uniform3f(colorUniform, 0.25, 0.25, 0.3)
		gl.DrawArrays(gl.LINES, 0, rootVerts)
		gl.Uniform3f(colorUniform, 0.3, 0.75, 1.0)
		gl.DrawArrays(gl.LINES, rootVerts, int32(len(lines)/3)-rootVerts)
		// Swap buffers and poll events
		window.SwapBuffers()

		// Limit frame rate
		for {
			time.Sleep(time.Second / 60)
			glfw.PollEvents()
			if refresh || window.ShouldClose() || ctx.Err() != nil {
				refresh = false
				break
			}
		}
	}
	return nil
}

// boxEdges pairs box corner indices sharing an edge. Corners are indexed by
// their xyz octant bits.
var boxEdges = [12][2]int{
	{0, 1}, {2, 3}, {4, 5}, {6, 7},
	{0, 2}, {1, 3}, {4, 6}, {5, 7},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

// appendBoxLines appends the twelve edges of the box as pairs of interleaved
// XYZ line segment vertices.
func appendBoxLines(dst []float32, bb ms3.Box) []float32 {
	var corners [8]ms3.Vec
	for i := range corners {
		v := bb.Min
		if i&1 != 0 {
			v.X = bb.Max.X
		}
		if i&2 != 0 {
			v.Y = bb.Max.Y
		}
		if i&4 != 0 {
			v.Z = bb.Max.Z
		}
		corners[i] = v
	}
	for _, e := range boxEdges {
		a, b := corners[e[0]], corners[e[1]]
		dst = append(dst, a.X, a.Y, a.Z, b.X, b.Y, b.Z)
	}
	return dst
}

func startGLFW(width, height int) (window *glfw.Window, term func(), err error) {
	if err := glfw.Init(); err != nil {
		log.Fatalln("Failed to initialize GLFW:", err)
	}

	// Create GLFW window
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 6)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.Resizable, glfw.False)

	window, err = glfw.CreateWindow(width, height, "gcull Octree Visibility Visualizer", nil, nil)
	if err != nil {
		log.Fatalln("Failed to create GLFW window:", err)
	}
	window.MakeContextCurrent()

	// Initialize OpenGL
	if err := gl.Init(); err != nil {
		log.Fatalln("Failed to initialize OpenGL:", err)
	}
	return window, glfw.Terminate, err
}
