package media

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// ErrInvalidImage is returned for empty, truncated or otherwise undecodable uploads.
var ErrInvalidImage = errors.New("invalid image")

// Decode decodes an encoded image (jpeg, png, ...) into a 3-channel BGR Mat.
// EXIF orientation is not applied here; see Rotate. the caller owns the returned Mat.
func Decode(data []byte) (gocv.Mat, error) {
	return decode(data, gocv.IMReadColor|gocv.IMReadIgnoreOrientation)
}

// DecodeGray decodes an encoded image into a single-channel Mat.
func DecodeGray(data []byte) (gocv.Mat, error) {
	return decode(data, gocv.IMReadGrayScale|gocv.IMReadIgnoreOrientation)
}

func decode(data []byte, flags gocv.IMReadFlag) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), fmt.Errorf("%w: empty input", ErrInvalidImage)
	}
	mat, err := gocv.IMDecode(data, flags)
	if err != nil {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("%w: could not decode %d bytes", ErrInvalidImage, len(data))
	}
	return mat, nil
}

// EncodePNG encodes a Mat losslessly. gallery samples are stored this way so that a
// sample read back is pixel-identical to what was written.
func EncodePNG(mat gocv.Mat) ([]byte, error) {
	return encode(gocv.PNGFileExt, mat)
}

// EncodeJPEG encodes a Mat as jpeg with the OpenCV default quality.
func EncodeJPEG(mat gocv.Mat) ([]byte, error) {
	return encode(gocv.JPEGFileExt, mat)
}

func encode(ext gocv.FileExt, mat gocv.Mat) ([]byte, error) {
	if mat.Empty() {
		return nil, fmt.Errorf("cannot encode empty image as %s", ext)
	}
	buf, err := gocv.IMEncode(ext, mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image as %s: %w", ext, err)
	}
	defer buf.Close()

	// GetBytes points into C memory that is released by Close
	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

// ToGray returns a single-channel copy of src. a src that is already single-channel is cloned.
func ToGray(src gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	switch src.Channels() {
	case 1:
		src.CopyTo(&gray)
	case 4:
		gocv.CvtColor(src, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	}
	return gray
}

// Equalize returns a histogram-equalized copy of a single-channel image.
func Equalize(gray gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	gocv.EqualizeHist(gray, &dst)
	return dst
}

// Blur returns a 5x5 gaussian-blurred copy of src.
func Blur(src gocv.Mat) gocv.Mat {
	dst := gocv.NewMat()
	gocv.GaussianBlur(src, &dst, image.Pt(5, 5), 0, 0, gocv.BorderDefault)
	return dst
}

// ResizeTo returns src scaled to exactly width x height.
func ResizeTo(src gocv.Mat, width, height int) (gocv.Mat, error) {
	if width <= 0 || height <= 0 {
		return gocv.NewMat(), fmt.Errorf("invalid resize target %dx%d", width, height)
	}
	if src.Empty() {
		return gocv.NewMat(), fmt.Errorf("cannot resize empty image")
	}
	dst := gocv.NewMat()
	gocv.Resize(src, &dst, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
	if dst.Empty() {
		dst.Close()
		return gocv.NewMat(), fmt.Errorf("resize to %dx%d produced an empty image", width, height)
	}
	return dst, nil
}

// Crop returns an independent copy of the region r of src. r is clamped to the image first.
func Crop(src gocv.Mat, r image.Rectangle) (gocv.Mat, error) {
	r = r.Intersect(Bounds(src))
	if r.Empty() {
		return gocv.NewMat(), fmt.Errorf("crop region %v lies outside %dx%d image", r, src.Cols(), src.Rows())
	}
	region := src.Region(r)
	defer region.Close()
	return region.Clone(), nil
}

// Bounds returns the rectangle covering the whole Mat.
func Bounds(mat gocv.Mat) image.Rectangle {
	return image.Rect(0, 0, mat.Cols(), mat.Rows())
}

// ExpandRect grows r by margin pixels on every side, clamped to bounds.
func ExpandRect(r image.Rectangle, margin int, bounds image.Rectangle) image.Rectangle {
	x1 := max(r.Min.X-margin, bounds.Min.X)
	y1 := max(r.Min.Y-margin, bounds.Min.Y)
	x2 := min(r.Max.X+margin, bounds.Max.X)
	y2 := min(r.Max.Y+margin, bounds.Max.Y)
	return image.Rect(x1, y1, x2, y2)
}
