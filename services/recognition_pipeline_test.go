package services

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/camden-git/faceattend/gallery"
	"github.com/camden-git/faceattend/media"
)

type staticDetector struct {
	rects    []image.Rectangle
	lastSize image.Point
}

func (d *staticDetector) Detect(img gocv.Mat) []image.Rectangle {
	d.lastSize = image.Pt(img.Cols(), img.Rows())
	return d.rects
}

type recordingRecorder struct {
	mu      sync.Mutex
	names   []string
	outcome RecordOutcome
	err     error
}

func (r *recordingRecorder) Record(ctx context.Context, name string, when time.Time) (RecordOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	return r.outcome, r.err
}

// twoFaceScene paints two distinct noise patches on a black BGR canvas and
// enrolls their grayscale crops as Alice and Bob.
func twoFaceScene(t *testing.T) (gocv.Mat, []image.Rectangle, *memorySource) {
	t.Helper()
	canvas := gocv.NewMatWithSize(100, 200, gocv.MatTypeCV8UC3)
	rects := []image.Rectangle{image.Rect(10, 20, 60, 70), image.Rect(120, 20, 170, 70)}

	src := newMemorySource()
	for i, r := range rects {
		patch := noise(t, r.Dy(), r.Dx(), int64(100+i))
		bgr := gocvGrayToBGR(patch)
		region := canvas.Region(r)
		bgr.CopyTo(&region)
		region.Close()
		bgr.Close()
		patch.Close()
	}
	for i, name := range []string{"Alice", "Bob"} {
		crop, err := media.Crop(canvas, rects[i])
		if err != nil {
			t.Fatalf("Crop() error = %v", err)
		}
		gray := media.ToGray(crop)
		src.add(name, gray)
		gray.Close()
		crop.Close()
	}
	return canvas, rects, src
}

func isGreen(m gocv.Mat, row, col int) bool {
	px := m.GetVecbAt(row, col)
	return px[0] == 0 && px[1] == 255 && px[2] == 0
}

func TestProcess_NoFaces(t *testing.T) {
	img := gocv.NewMatWithSize(50, 50, gocv.MatTypeCV8UC3)
	defer img.Close()
	rec := &recordingRecorder{outcome: OutcomeRecorded}

	p := NewRecognitionPipeline(&staticDetector{}, NewFaceMatcher(newMemorySource(), 0.70, 3), media.RotationNone, 20).
		WithRecorder(rec)
	res, err := p.Process(context.Background(), img, time.Now())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	defer res.Close()

	if res.FaceCount != 0 || res.RecognizedName != gallery.UnknownName {
		t.Errorf("Process() = %d faces, %q; want 0, UNKNOWN", res.FaceCount, res.RecognizedName)
	}
	if len(rec.names) != 0 {
		t.Errorf("recorder called with %v, want no calls", rec.names)
	}
}

func TestProcess_TwoKnownFaces(t *testing.T) {
	canvas, rects, src := twoFaceScene(t)
	defer canvas.Close()
	defer src.close()
	rec := &recordingRecorder{outcome: OutcomeRecorded}

	p := NewRecognitionPipeline(&staticDetector{rects: rects}, NewFaceMatcher(src, 0.70, 3), media.RotationNone, 0).
		WithRecorder(rec)
	res, err := p.Process(context.Background(), canvas, time.Now())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	defer res.Close()

	if res.FaceCount != 2 {
		t.Fatalf("FaceCount = %d, want 2", res.FaceCount)
	}
	if res.Faces[0].Verdict.PersonName != "Alice" || res.Faces[1].Verdict.PersonName != "Bob" {
		t.Errorf("verdicts = %q, %q; want Alice, Bob", res.Faces[0].Verdict.PersonName, res.Faces[1].Verdict.PersonName)
	}
	// the last non-unknown verdict in detector order wins
	if res.RecognizedName != "Bob" {
		t.Errorf("RecognizedName = %q, want Bob", res.RecognizedName)
	}
	for _, r := range rects {
		if !isGreen(res.Annotated, r.Min.Y+r.Dy()/2, r.Min.X) {
			t.Errorf("face at %v is not annotated", r)
		}
	}
	if isGreen(canvas, rects[0].Min.Y+rects[0].Dy()/2, rects[0].Min.X) {
		t.Error("input image was modified")
	}
	if len(rec.names) != 1 || rec.names[0] != "Bob" || res.Attendance != OutcomeRecorded {
		t.Errorf("recorder calls = %v, outcome %q", rec.names, res.Attendance)
	}
}

func TestProcess_UnknownFaceIsNotAnnotated(t *testing.T) {
	canvas, rects, src := twoFaceScene(t)
	defer canvas.Close()
	defer src.close()
	empty := newMemorySource()

	p := NewRecognitionPipeline(&staticDetector{rects: rects[:1]}, NewFaceMatcher(empty, 0.70, 3), media.RotationNone, 0)
	res, err := p.Process(context.Background(), canvas, time.Now())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	defer res.Close()

	if res.FaceCount != 1 || res.RecognizedName != gallery.UnknownName {
		t.Errorf("Process() = %d faces, %q; want 1, UNKNOWN", res.FaceCount, res.RecognizedName)
	}
	if isGreen(res.Annotated, rects[0].Min.Y+rects[0].Dy()/2, rects[0].Min.X) {
		t.Error("unknown face was annotated")
	}
}

func TestProcess_AttendanceFailureKeepsRecognition(t *testing.T) {
	canvas, rects, src := twoFaceScene(t)
	defer canvas.Close()
	defer src.close()
	rec := &recordingRecorder{err: ErrServiceUnavailable}

	p := NewRecognitionPipeline(&staticDetector{rects: rects[:1]}, NewFaceMatcher(src, 0.70, 3), media.RotationNone, 0).
		WithRecorder(rec)
	res, err := p.Process(context.Background(), canvas, time.Now())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	defer res.Close()

	if res.RecognizedName != "Alice" {
		t.Errorf("RecognizedName = %q, want Alice", res.RecognizedName)
	}
	if !errors.Is(res.AttendanceErr, ErrServiceUnavailable) {
		t.Errorf("AttendanceErr = %v, want ErrServiceUnavailable", res.AttendanceErr)
	}
}

func TestProcess_RotatesBeforeDetection(t *testing.T) {
	img := gocv.NewMatWithSize(100, 200, gocv.MatTypeCV8UC3)
	defer img.Close()
	det := &staticDetector{}

	p := NewRecognitionPipeline(det, NewFaceMatcher(newMemorySource(), 0.70, 3), media.RotationCCW90, 20)
	res, err := p.Process(context.Background(), img, time.Now())
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	defer res.Close()

	if det.lastSize != image.Pt(100, 200) {
		t.Errorf("detector saw %v, want 100x200 after ccw90", det.lastSize)
	}
	if res.Annotated.Cols() != 100 || res.Annotated.Rows() != 200 {
		t.Errorf("annotated size = %dx%d, want rotated 100x200", res.Annotated.Cols(), res.Annotated.Rows())
	}
}

func TestProcessBytes_InvalidImage(t *testing.T) {
	p := NewRecognitionPipeline(&staticDetector{}, NewFaceMatcher(newMemorySource(), 0.70, 3), media.RotationNone, 20)
	res, err := p.ProcessBytes(context.Background(), []byte("not a jpeg"), time.Now())
	defer res.Close()
	if !errors.Is(err, media.ErrInvalidImage) {
		t.Errorf("ProcessBytes() error = %v, want ErrInvalidImage", err)
	}
}
