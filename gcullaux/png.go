package gcullaux

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/golang/freetype/raster"
	"github.com/soypat/gcull"
	"github.com/soypat/geometry/ms2"
	"golang.org/x/image/math/fixed"
)

var (
	planVisible = color.RGBA{R: 0x7a, G: 0xb3, B: 0xe0, A: 0xff}
	planGrid    = color.RGBA{R: 0xb4, G: 0xb4, B: 0xb4, A: 0xff}
	planBorder  = color.RGBA{R: 0x32, G: 0x32, B: 0x32, A: 0xff}
)

// RenderPNGFile renders a top-down plan view of the octree leaf grid and
// saves the result to a PNG file with said filename. Leaf cells among visible
// are filled, remaining cells keep the background color. The image width is
// sized automatically from the image height argument to preserve the aspect
// ratio of the octree bounds seen from above.
func RenderPNGFile(filename string, tree *gcull.Octree, visible []gcull.NodeID, picHeight int) error {
	if tree == nil || tree.Len() == 0 {
		return fmt.Errorf("%w: plan view of unbuilt octree", gcull.ErrInvalidInput)
	} else if picHeight < 8 {
		return fmt.Errorf("%w: picture height too small", gcull.ErrInvalidInput)
	}
	bb := tree.Bounds()
	sz := bb.Size()
	if sz.X <= 0 || sz.Y <= 0 {
		return fmt.Errorf("%w: degenerate octree bounds", gcull.ErrInvalidInput)
	}
	pixPerUnit := float64(picHeight) / float64(sz.Y)
	picWidth := int(pixPerUnit * float64(sz.X))
	img := image.NewRGBA(image.Rect(0, 0, picWidth, picHeight))
	for i := range img.Pix {
		img.Pix[i] = 0xff // White background.
	}
	rz := raster.NewRasterizer(picWidth, picHeight)
	rz.UseNonZeroWinding = true
	painter := raster.NewRGBAPainter(img)
	pv := planView{min: ms2.Vec{X: bb.Min.X, Y: bb.Min.Y}, pixPerUnit: pixPerUnit, height: picHeight}

	isVisible := make(map[gcull.NodeID]bool, len(visible))
	for _, id := range visible {
		isVisible[id] = true
	}
	line := float32(1 / pixPerUnit) // One pixel expressed in world units.
	first, n := tree.Leaves()
	for k := 0; k < n; k++ {
		id := first + gcull.NodeID(k)
		cell := tree.NodeBox(id)
		lo := ms2.Vec{X: cell.Min.X, Y: cell.Min.Y}
		hi := ms2.Vec{X: cell.Max.X, Y: cell.Max.Y}
		if isVisible[id] {
			pv.fillRect(rz, painter, lo, hi, planVisible)
		}
		pv.strokeRect(rz, painter, lo, hi, line, planGrid)
	}
	pv.strokeRect(rz, painter, ms2.Vec{X: bb.Min.X, Y: bb.Min.Y}, ms2.Vec{X: bb.Max.X, Y: bb.Max.Y}, 2*line, planBorder)

	fp, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer fp.Close()
	err = png.Encode(fp, img)
	if err != nil {
		return err
	}
	fp.Sync()
	return nil
}

// planView projects world XY coordinates onto image pixels with Y up.
type planView struct {
	min        ms2.Vec
	pixPerUnit float64
	height     int
}

func (pv planView) point(x, y float32) fixed.Point26_6 {
	px := float64(x-pv.min.X) * pv.pixPerUnit
	py := float64(pv.height) - float64(y-pv.min.Y)*pv.pixPerUnit
	return fixed.Point26_6{X: fixed.Int26_6(px * 64), Y: fixed.Int26_6(py * 64)}
}

func (pv planView) fillRect(rz *raster.Rasterizer, painter *raster.RGBAPainter, lo, hi ms2.Vec, c color.Color) {
	painter.SetColor(c)
	rz.Clear()
	rz.Start(pv.point(lo.X, lo.Y))
	rz.Add1(pv.point(hi.X, lo.Y))
	rz.Add1(pv.point(hi.X, hi.Y))
	rz.Add1(pv.point(lo.X, hi.Y))
	rz.Add1(pv.point(lo.X, lo.Y))
	rz.Rasterize(painter)
}

// strokeRect outlines the rectangle towards its inside with line width t in
// world units.
func (pv planView) strokeRect(rz *raster.Rasterizer, painter *raster.RGBAPainter, lo, hi ms2.Vec, t float32, c color.Color) {
	pv.fillRect(rz, painter, lo, ms2.Vec{X: hi.X, Y: lo.Y + t}, c)
	pv.fillRect(rz, painter, ms2.Vec{X: lo.X, Y: hi.Y - t}, hi, c)
	pv.fillRect(rz, painter, lo, ms2.Vec{X: lo.X + t, Y: hi.Y}, c)
	pv.fillRect(rz, painter, ms2.Vec{X: hi.X - t, Y: lo.Y}, hi, c)
}
