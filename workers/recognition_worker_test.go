package workers

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/camden-git/faceattend/gallery"
	"github.com/camden-git/faceattend/media"
	"github.com/camden-git/faceattend/models"
	"github.com/camden-git/faceattend/services"
)

type emptySource struct{}

func (emptySource) ListPersons(context.Context) ([]models.PersonSummary, error) { return nil, nil }
func (emptySource) SamplesOf(context.Context, string) ([]gallery.FaceSample, error) {
	return nil, nil
}

// gateDetector blocks every Detect call until release is closed.
type gateDetector struct {
	entered chan struct{}
	release chan struct{}
}

func (d gateDetector) Detect(gocv.Mat) []image.Rectangle {
	if d.entered != nil {
		d.entered <- struct{}{}
	}
	if d.release != nil {
		<-d.release
	}
	return nil
}

func factory(det media.FaceDetector) PipelineFactory {
	return func() (*services.RecognitionPipeline, func(), error) {
		m := services.NewFaceMatcher(emptySource{}, 0.70, 3)
		return services.NewRecognitionPipeline(det, m, media.RotationNone, 20), func() {}, nil
	}
}

func blankPNG(t *testing.T) []byte {
	t.Helper()
	m := gocv.NewMatWithSize(32, 32, gocv.MatTypeCV8UC3)
	defer m.Close()
	data, err := media.EncodePNG(m)
	if err != nil {
		t.Fatalf("EncodePNG() error = %v", err)
	}
	return data
}

func TestRecognitionPool_Submit(t *testing.T) {
	pool, err := NewRecognitionPool(factory(gateDetector{}), 4, 2)
	if err != nil {
		t.Fatalf("NewRecognitionPool() error = %v", err)
	}
	defer pool.Stop()

	res, err := pool.Submit(context.Background(), blankPNG(t), time.Now(), "")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	defer res.Close()
	if res.FaceCount != 0 || res.RecognizedName != gallery.UnknownName {
		t.Errorf("Submit() = %d faces, %q; want 0, UNKNOWN", res.FaceCount, res.RecognizedName)
	}

	bad, err := pool.Submit(context.Background(), []byte("garbage"), time.Now(), "")
	defer bad.Close()
	if !errors.Is(err, media.ErrInvalidImage) {
		t.Errorf("Submit(garbage) error = %v, want ErrInvalidImage", err)
	}
	if pool.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after completion, want 0", pool.PendingCount())
	}
}

func TestRecognitionPool_QueueFull(t *testing.T) {
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	pool, err := NewRecognitionPool(factory(gateDetector{entered: entered, release: release}), 1, 1)
	if err != nil {
		t.Fatalf("NewRecognitionPool() error = %v", err)
	}
	defer pool.Stop()

	data := blankPNG(t)
	done := make(chan error, 2)
	submit := func() {
		res, err := pool.Submit(context.Background(), data, time.Now(), "")
		res.Close()
		done <- err
	}
	waitFor := func(cond func() bool) {
		deadline := time.Now().Add(2 * time.Second)
		for !cond() && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
	}

	// one job held by the worker, then one waiting in the queue
	go submit()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never started the first job")
	}
	go submit()
	waitFor(func() bool { return len(pool.JobQueue) == 1 })

	res, err := pool.Submit(context.Background(), data, time.Now(), "")
	res.Close()
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("third Submit() error = %v, want ErrQueueFull", err)
	}

	close(release)
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Errorf("queued Submit() error = %v", err)
		}
	}
}

func TestRecognitionPool_CallerGivesUp(t *testing.T) {
	release := make(chan struct{})
	pool, err := NewRecognitionPool(factory(gateDetector{release: release}), 2, 1)
	if err != nil {
		t.Fatalf("NewRecognitionPool() error = %v", err)
	}
	defer pool.Stop()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	res, err := pool.Submit(ctx, blankPNG(t), time.Now(), "")
	res.Close()
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Submit() error = %v, want DeadlineExceeded", err)
	}
}

func TestNewRecognitionPool_FactoryError(t *testing.T) {
	built, cleaned := 0, 0
	f := func() (*services.RecognitionPipeline, func(), error) {
		built++
		if built == 2 {
			return nil, nil, errors.New("cascade missing")
		}
		p, _, _ := factory(gateDetector{})()
		return p, func() { cleaned++ }, nil
	}

	if _, err := NewRecognitionPool(f, 1, 3); err == nil {
		t.Fatal("NewRecognitionPool() expected error")
	}
	if cleaned != 1 {
		t.Errorf("cleanups run = %d, want 1", cleaned)
	}
}
