package services

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sort"

	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/camden-git/faceattend/gallery"
	"github.com/camden-git/faceattend/media"
	"github.com/camden-git/faceattend/models"
)

const (
	DefaultMatchThreshold = 0.70
	DefaultMatchTopK      = 3

	// maxDistance is the TM_SQDIFF_NORMED value of maximal dissimilarity
	maxDistance = 1.0
)

// SampleSource is the read side of the gallery used for matching.
type SampleSource interface {
	ListPersons(ctx context.Context) ([]models.PersonSummary, error)
	SamplesOf(ctx context.Context, person string) ([]gallery.FaceSample, error)
}

// MatchVerdict is the outcome of matching one face region against the gallery.
type MatchVerdict struct {
	PersonName        string  `json:"person_name"`
	Distance          float64 `json:"distance"`
	ConsideredSamples int     `json:"considered_samples"`
}

// Known reports whether the verdict names an enrolled person.
func (v MatchVerdict) Known() bool {
	return v.PersonName != gallery.UnknownName
}

// FaceMatcher compares a face region with every enrolled sample using
// normalized squared-difference template matching.
type FaceMatcher struct {
	source SampleSource

	// Threshold and TopK are calibration knobs; there is no procedure deriving them
	Threshold float64
	TopK      int
	// Concurrency bounds how many persons are scored in parallel
	Concurrency int
}

func NewFaceMatcher(source SampleSource, threshold float64, topK int) *FaceMatcher {
	if threshold <= 0 {
		threshold = DefaultMatchThreshold
	}
	if topK <= 0 {
		topK = DefaultMatchTopK
	}
	return &FaceMatcher{
		source:      source,
		Threshold:   threshold,
		TopK:        topK,
		Concurrency: runtime.NumCPU(),
	}
}

type personScore struct {
	name    string
	mean    float64
	samples int
}

// Match returns the closest person for faceRegion (colour or grayscale), or
// UNKNOWN when nobody is closer than the threshold. an error is returned only
// when the gallery can not be listed or ctx ends.
func (m *FaceMatcher) Match(ctx context.Context, faceRegion gocv.Mat) (MatchVerdict, error) {
	unknown := MatchVerdict{PersonName: gallery.UnknownName, Distance: maxDistance}
	if faceRegion.Empty() {
		return unknown, nil
	}

	persons, err := m.source.ListPersons(ctx)
	if err != nil {
		return unknown, fmt.Errorf("failed to list gallery: %w", err)
	}

	probe := media.ToGray(faceRegion)
	defer probe.Close()

	scores := make([]personScore, len(persons))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, m.Concurrency))
	for i, p := range persons {
		i, name := i, p.Name
		g.Go(func() error {
			score, err := m.scorePerson(gctx, probe, name)
			if err != nil {
				return err
			}
			scores[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return unknown, err
	}

	best := personScore{mean: maxDistance}
	considered := 0
	for _, s := range scores {
		considered += s.samples
		if s.samples == 0 {
			continue
		}
		if best.name == "" || s.mean < best.mean || (s.mean == best.mean && s.name < best.name) {
			best = s
		}
	}

	verdict := MatchVerdict{PersonName: gallery.UnknownName, Distance: best.mean, ConsideredSamples: considered}
	if best.name != "" && best.mean < m.Threshold {
		verdict.PersonName = best.name
	}
	log.Printf("matcher: best candidate %q distance %.4f over %d samples -> %s", best.name, best.mean, considered, verdict.PersonName)
	return verdict, nil
}

// scorePerson returns the mean of the TopK lowest distances between probe and
// the samples of person. samples that fail to resize or compare are skipped.
func (m *FaceMatcher) scorePerson(ctx context.Context, probe gocv.Mat, person string) (personScore, error) {
	samples, err := m.source.SamplesOf(ctx, person)
	if err != nil {
		if ctx.Err() != nil {
			return personScore{}, ctx.Err()
		}
		log.Printf("matcher: skipping %s: %v", person, err)
		return personScore{name: person}, nil
	}
	defer gallery.CloseAll(samples)

	distances := make([]float64, 0, len(samples))
	for _, s := range samples {
		d, err := Distance(probe, s.Image)
		if err != nil {
			log.Printf("matcher: skipping %s #%d: %v", person, s.Seq, err)
			continue
		}
		distances = append(distances, d)
	}
	if len(distances) == 0 {
		return personScore{name: person}, nil
	}

	sort.Float64s(distances)
	k := min(m.TopK, len(distances))
	var sum float64
	for _, d := range distances[:k] {
		sum += d
	}
	return personScore{name: person, mean: sum / float64(k), samples: len(distances)}, nil
}

// Distance resizes sample to the probe's size and returns the TM_SQDIFF_NORMED
// score of the pair: 0 for identical pixels, up to 1 for maximal dissimilarity.
// two all-black images score 1, not 0, since both norms are zero.
// both inputs must be single-channel.
func Distance(probe, sample gocv.Mat) (float64, error) {
	if probe.Empty() || sample.Empty() {
		return 0, fmt.Errorf("cannot compare empty image")
	}

	resized := sample
	if sample.Rows() != probe.Rows() || sample.Cols() != probe.Cols() {
		var err error
		resized, err = media.ResizeTo(sample, probe.Cols(), probe.Rows())
		if err != nil {
			return 0, err
		}
		defer resized.Close()
	}

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	gocv.MatchTemplate(probe, resized, &result, gocv.TmSqdiffNormed, mask)
	if result.Empty() {
		return 0, fmt.Errorf("template match produced no score")
	}
	return float64(result.GetFloatAt(0, 0)), nil
}
