package services

import (
	"context"
	"math/rand"
	"sort"
	"testing"

	"gocv.io/x/gocv"

	"github.com/camden-git/faceattend/gallery"
	"github.com/camden-git/faceattend/models"
)

// memorySource is an in-memory SampleSource; SamplesOf hands out clones.
type memorySource struct {
	samples map[string][]gocv.Mat
}

func newMemorySource() *memorySource {
	return &memorySource{samples: make(map[string][]gocv.Mat)}
}

func (s *memorySource) add(person string, img gocv.Mat) {
	s.samples[person] = append(s.samples[person], img.Clone())
}

func (s *memorySource) close() {
	for _, mats := range s.samples {
		for _, m := range mats {
			m.Close()
		}
	}
}

func (s *memorySource) ListPersons(ctx context.Context) ([]models.PersonSummary, error) {
	var out []models.PersonSummary
	for name, mats := range s.samples {
		out = append(out, models.PersonSummary{Name: name, SampleCount: len(mats)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memorySource) SamplesOf(ctx context.Context, person string) ([]gallery.FaceSample, error) {
	var out []gallery.FaceSample
	for i, m := range s.samples[person] {
		out = append(out, gallery.FaceSample{Person: person, Seq: i + 1, Image: m.Clone()})
	}
	return out, nil
}

func noise(t *testing.T, rows, cols int, seed int64) gocv.Mat {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			m.SetUCharAt(y, x, uint8(r.Intn(256)))
		}
	}
	return m
}

// inverted returns 255-src with a little seeded jitter, so each call yields a
// distinct image that is maximally unlike src.
func inverted(t *testing.T, src gocv.Mat, seed int64) gocv.Mat {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	m := gocv.NewMatWithSize(src.Rows(), src.Cols(), gocv.MatTypeCV8UC1)
	for y := 0; y < src.Rows(); y++ {
		for x := 0; x < src.Cols(); x++ {
			v := 255 - int(src.GetUCharAt(y, x)) + r.Intn(11) - 5
			m.SetUCharAt(y, x, uint8(min(255, max(0, v))))
		}
	}
	return m
}

func uniform(rows, cols int, v uint8) gocv.Mat {
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
	m.SetTo(gocv.NewScalar(float64(v), 0, 0, 0))
	return m
}

func gocvGrayToBGR(gray gocv.Mat) gocv.Mat {
	bgr := gocv.NewMat()
	gocv.CvtColor(gray, &bgr, gocv.ColorGrayToBGR)
	return bgr
}
