package media

import (
	"image"

	"gocv.io/x/gocv"
)

type AssetType string

const (
	AssetTypeUpload   AssetType = "upload"   // raw photos as received on /upload
	AssetTypeDetected AssetType = "detected" // annotated copies of processed photos
	AssetTypeDebug    AssetType = "debug"    // intermediate grayscale / rotated frames
)

// Rotation is the orientation correction applied to an input photo before
// detection. RotationExif derives it from the EXIF orientation tag of the upload.
type Rotation string

const (
	RotationNone  Rotation = "none"
	RotationCW90  Rotation = "cw90"
	RotationCCW90 Rotation = "ccw90"
	Rotation180   Rotation = "180"
	RotationExif  Rotation = "exif"
)

// FaceDetector finds face bounding boxes in an image. Implementations accept
// color or grayscale input and return rectangles in the input's coordinates.
type FaceDetector interface {
	Detect(img gocv.Mat) []image.Rectangle
}
