package media

import (
	"fmt"
	"image"
	"log"

	"gocv.io/x/gocv"
)

// OpenCV's CASCADE_SCALE_IMAGE; gocv does not export the flag
const cascadeScaleImage = 2

// CascadeStage is one classifier profile tried by a CascadeDetector.
type CascadeStage struct {
	Name         string
	Classifier   gocv.CascadeClassifier
	ScaleFactor  float64
	MinNeighbors int
	MinSize      int
}

// CascadeDetector runs its stages in order and returns the result of the first
// stage that finds anything. it is not safe for concurrent use; each worker
// loads its own.
type CascadeDetector struct {
	stages []CascadeStage
}

// NewCascadeDetector loads the primary (frontalface_default) and alternate
// (frontalface_alt) classifiers. altPath may be empty to run without a fallback.
func NewCascadeDetector(primaryPath, altPath string) (*CascadeDetector, error) {
	primary := gocv.NewCascadeClassifier()
	if !primary.Load(primaryPath) {
		primary.Close()
		return nil, fmt.Errorf("failed to load cascade classifier from %s", primaryPath)
	}
	d := &CascadeDetector{stages: []CascadeStage{{
		Name:         "default",
		Classifier:   primary,
		ScaleFactor:  1.2,
		MinNeighbors: 3,
		MinSize:      20,
	}}}

	if altPath != "" {
		alt := gocv.NewCascadeClassifier()
		if !alt.Load(altPath) {
			alt.Close()
			d.Close()
			return nil, fmt.Errorf("failed to load alternate cascade classifier from %s", altPath)
		}
		d.stages = append(d.stages, CascadeStage{
			Name:         "alt",
			Classifier:   alt,
			ScaleFactor:  1.3,
			MinNeighbors: 3,
			MinSize:      30,
		})
	}

	log.Printf("detection(cascade): loaded %d stage(s) from %s", len(d.stages), primaryPath)
	return d, nil
}

// Prepare converts img to the equalized, blurred grayscale frame the classifiers run on.
func Prepare(img gocv.Mat) gocv.Mat {
	gray := ToGray(img)
	defer gray.Close()
	eq := Equalize(gray)
	defer eq.Close()
	return Blur(eq)
}

// Detect returns face rectangles in detector order. an empty result is not an error.
func (d *CascadeDetector) Detect(img gocv.Mat) []image.Rectangle {
	if d == nil || img.Empty() {
		return nil
	}
	prepared := Prepare(img)
	defer prepared.Close()

	bounds := Bounds(prepared)
	for _, stage := range d.stages {
		found := stage.Classifier.DetectMultiScaleWithParams(
			prepared,
			stage.ScaleFactor,
			stage.MinNeighbors,
			cascadeScaleImage,
			image.Pt(stage.MinSize, stage.MinSize),
			image.Pt(0, 0),
		)

		rects := make([]image.Rectangle, 0, len(found))
		for _, r := range found {
			r = r.Intersect(bounds)
			if !r.Empty() {
				rects = append(rects, r)
			}
		}
		if len(rects) > 0 {
			log.Printf("detection(cascade): %d face(s) found by %s stage", len(rects), stage.Name)
			return rects
		}
	}
	return nil
}

func (d *CascadeDetector) Close() {
	if d == nil {
		return
	}
	for _, s := range d.stages {
		s.Classifier.Close()
	}
	d.stages = nil
	log.Println("detection(cascade): closed classifiers")
}
