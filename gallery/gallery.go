package gallery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gocv.io/x/gocv"
	"golang.org/x/text/unicode/norm"

	"github.com/camden-git/faceattend/media"
	"github.com/camden-git/faceattend/models"
	"github.com/camden-git/faceattend/utils"
)

// UnknownName is the verdict name for a face that matched nobody. it can not be enrolled.
const UnknownName = "UNKNOWN"

var (
	ErrNoFaceInSample = errors.New("no face detected in training image")
	ErrGalleryIO      = errors.New("gallery storage failure")
	ErrInvalidName    = errors.New("invalid person name")
)

// SampleStore is the key-value view of sample storage: (person, seq) -> encoded image.
type SampleStore interface {
	Get(person string, seq int) ([]byte, error)
	Put(person string, seq int, data []byte) error
	ListPersons() ([]string, error)
	ListSequences(person string) ([]int, error)
}

// FaceSample is one decoded grayscale enrollment image. Close releases the pixels.
type FaceSample struct {
	Person string
	Seq    int
	Image  gocv.Mat
}

func (s *FaceSample) Close() {
	s.Image.Close()
}

// Gallery is the set of enrolled persons and their face samples.
type Gallery struct {
	store SampleStore

	// detector instances are not safe for concurrent use
	detMu    sync.Mutex
	detector media.FaceDetector

	writeLocks utils.KeyedMutex
}

func New(store SampleStore, detector media.FaceDetector) *Gallery {
	return &Gallery{store: store, detector: detector}
}

// NormalizeName trims and NFC-normalizes a person name and rejects names that
// can not be used as a storage key.
func NormalizeName(name string) (string, error) {
	n := norm.NFC.String(strings.TrimSpace(name))
	switch {
	case n == "":
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	case n == "." || n == "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.HasPrefix(n, "."):
		return "", fmt.Errorf("%w: %q starts with a dot", ErrInvalidName, name)
	case strings.ContainsAny(n, `/\`):
		return "", fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	case strings.EqualFold(n, UnknownName):
		return "", fmt.Errorf("%w: %q is reserved", ErrInvalidName, name)
	}
	if strings.IndexFunc(n, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("%w: %q contains control characters", ErrInvalidName, name)
	}
	return n, nil
}

// AddSample detects the face in img, stores its tight grayscale crop as the
// next sample of person and returns what was stored. the first detected face
// is used when there are several.
func (g *Gallery) AddSample(ctx context.Context, person string, img gocv.Mat) (models.FaceSampleInfo, error) {
	name, err := NormalizeName(person)
	if err != nil {
		return models.FaceSampleInfo{}, err
	}
	if img.Empty() {
		return models.FaceSampleInfo{}, fmt.Errorf("%w: empty training image", media.ErrInvalidImage)
	}

	g.detMu.Lock()
	rects := g.detector.Detect(img)
	g.detMu.Unlock()
	if len(rects) == 0 {
		return models.FaceSampleInfo{}, ErrNoFaceInSample
	}

	face, err := media.Crop(img, rects[0])
	if err != nil {
		return models.FaceSampleInfo{}, fmt.Errorf("%w: %v", ErrNoFaceInSample, err)
	}
	defer face.Close()
	gray := media.ToGray(face)
	defer gray.Close()

	data, err := media.EncodePNG(gray)
	if err != nil {
		return models.FaceSampleInfo{}, fmt.Errorf("%w: %v", ErrGalleryIO, err)
	}

	unlock, err := g.writeLocks.LockContext(ctx, name)
	if err != nil {
		return models.FaceSampleInfo{}, err
	}
	defer unlock()

	seqs, err := g.store.ListSequences(name)
	if err != nil {
		return models.FaceSampleInfo{}, fmt.Errorf("%w: %v", ErrGalleryIO, err)
	}
	seq := 1
	for _, s := range seqs {
		if s >= seq {
			seq = s + 1
		}
	}

	if err := g.store.Put(name, seq, data); err != nil {
		return models.FaceSampleInfo{}, fmt.Errorf("%w: %v", ErrGalleryIO, err)
	}

	log.Printf("gallery: face #%d saved for %s (%dx%d)", seq, name, gray.Cols(), gray.Rows())
	return models.FaceSampleInfo{Person: name, Seq: seq, Width: gray.Cols(), Height: gray.Rows()}, nil
}

// AddSampleBytes decodes an encoded training photo and enrolls it.
func (g *Gallery) AddSampleBytes(ctx context.Context, person string, data []byte) (models.FaceSampleInfo, error) {
	img, err := media.Decode(data)
	if err != nil {
		return models.FaceSampleInfo{}, err
	}
	defer img.Close()
	return g.AddSample(ctx, person, img)
}

// ListPersons returns every enrolled person with its sample count, sorted by name.
func (g *Gallery) ListPersons(ctx context.Context) ([]models.PersonSummary, error) {
	persons, err := g.store.ListPersons()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGalleryIO, err)
	}

	summaries := make([]models.PersonSummary, 0, len(persons))
	for _, p := range persons {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seqs, err := g.store.ListSequences(p)
		if err != nil {
			log.Printf("gallery: skipping %s, cannot list samples: %v", p, err)
			continue
		}
		summaries = append(summaries, models.PersonSummary{Name: p, SampleCount: len(seqs)})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries, nil
}

// SamplesOf decodes all samples of person in sequence order. samples that can
// not be read or decoded are logged and skipped. the caller closes the result.
func (g *Gallery) SamplesOf(ctx context.Context, person string) ([]FaceSample, error) {
	seqs, err := g.store.ListSequences(person)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGalleryIO, err)
	}

	samples := make([]FaceSample, 0, len(seqs))
	for _, seq := range seqs {
		if err := ctx.Err(); err != nil {
			CloseAll(samples)
			return nil, err
		}
		data, err := g.store.Get(person, seq)
		if err != nil {
			log.Printf("gallery: skipping %s #%d: %v", person, seq, err)
			continue
		}
		img, err := media.DecodeGray(data)
		if err != nil {
			log.Printf("gallery: skipping corrupt sample %s #%d: %v", person, seq, err)
			continue
		}
		samples = append(samples, FaceSample{Person: person, Seq: seq, Image: img})
	}
	return samples, nil
}

// SampleInfos lists the stored samples of person without keeping their pixels.
func (g *Gallery) SampleInfos(ctx context.Context, person string) ([]models.FaceSampleInfo, error) {
	samples, err := g.SamplesOf(ctx, person)
	if err != nil {
		return nil, err
	}
	defer CloseAll(samples)

	infos := make([]models.FaceSampleInfo, 0, len(samples))
	for _, s := range samples {
		infos = append(infos, models.FaceSampleInfo{Person: s.Person, Seq: s.Seq, Width: s.Image.Cols(), Height: s.Image.Rows()})
	}
	return infos, nil
}

// SampleData returns the stored PNG bytes of one sample.
func (g *Gallery) SampleData(person string, seq int) ([]byte, error) {
	data, err := g.store.Get(person, seq)
	if errors.Is(err, media.ErrSampleNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGalleryIO, err)
	}
	return data, nil
}

func CloseAll(samples []FaceSample) {
	for i := range samples {
		samples[i].Close()
	}
}
