package media

import (
	"bytes"
	"fmt"
	"log"

	"github.com/rwcarlsen/goexif/exif"
	"gocv.io/x/gocv"
)

// ParseRotation validates a configured rotation name.
func ParseRotation(s string) (Rotation, error) {
	switch r := Rotation(s); r {
	case RotationNone, RotationCW90, RotationCCW90, Rotation180, RotationExif:
		return r, nil
	case "":
		return RotationNone, nil
	default:
		return "", fmt.Errorf("unknown rotation %q", s)
	}
}

// ExifRotation reads the EXIF orientation tag of an encoded jpeg and returns the
// rotation that brings it upright. mirrored orientations are treated as their
// unmirrored counterparts. anything unreadable yields RotationNone.
func ExifRotation(data []byte) Rotation {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return RotationNone
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil || tag == nil {
		return RotationNone
	}
	v, err := tag.Int(0)
	if err != nil {
		log.Printf("media.orientation: unreadable orientation tag: %v", err)
		return RotationNone
	}
	switch v {
	case 3, 4:
		return Rotation180
	case 5, 6:
		return RotationCW90
	case 7, 8:
		return RotationCCW90
	default:
		return RotationNone
	}
}

// Rotate returns a rotated copy of src. RotationExif must be resolved with
// ExifRotation before calling; it is treated like RotationNone here.
func Rotate(src gocv.Mat, r Rotation) gocv.Mat {
	dst := gocv.NewMat()
	switch r {
	case RotationCW90:
		gocv.Rotate(src, &dst, gocv.Rotate90Clockwise)
	case RotationCCW90:
		gocv.Rotate(src, &dst, gocv.Rotate90CounterClockwise)
	case Rotation180:
		gocv.Rotate(src, &dst, gocv.Rotate180Clockwise)
	default:
		src.CopyTo(&dst)
	}
	return dst
}

// ResolveRotation turns the configured rotation into a concrete one for a given upload.
func ResolveRotation(configured Rotation, data []byte) Rotation {
	if configured == RotationExif {
		return ExifRotation(data)
	}
	return configured
}
