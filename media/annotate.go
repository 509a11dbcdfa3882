package media

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	boxColor   = color.RGBA{0, 255, 0, 0}
	labelColor = color.RGBA{0, 0, 0, 0}
)

const (
	labelFont      = gocv.FontHersheySimplex
	labelScale     = 0.9
	labelThickness = 2
	boxThickness   = 2
)

// Annotate draws a green box around r on img and a filled label holding name
// just above it. img is modified in place.
func Annotate(img *gocv.Mat, r image.Rectangle, name string) {
	gocv.Rectangle(img, r, boxColor, boxThickness)
	if name == "" {
		return
	}

	size := gocv.GetTextSize(name, labelFont, labelScale, labelThickness)
	top := r.Min.Y - size.Y - 10
	label := image.Rect(r.Min.X, top, r.Min.X+size.X, r.Min.Y)
	gocv.Rectangle(img, label, boxColor, -1)
	gocv.PutText(img, name, image.Pt(r.Min.X, r.Min.Y-10), labelFont, labelScale, labelColor, labelThickness)
}
