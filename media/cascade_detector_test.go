package media

import (
	"os"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
)

func cascadePaths(t *testing.T) (string, string) {
	t.Helper()
	primary := filepath.Join("..", "models", "haarcascade_frontalface_default.xml")
	alt := filepath.Join("..", "models", "haarcascade_frontalface_alt.xml")
	if _, err := os.Stat(primary); err != nil {
		t.Skipf("cascade file %s not available", primary)
	}
	if _, err := os.Stat(alt); err != nil {
		t.Skipf("cascade file %s not available", alt)
	}
	return primary, alt
}

func TestNewCascadeDetector_MissingFile(t *testing.T) {
	d, err := NewCascadeDetector(filepath.Join(t.TempDir(), "missing.xml"), "")
	if err == nil {
		d.Close()
		t.Fatal("NewCascadeDetector() with missing file: expected error")
	}
}

func TestCascadeDetector_BlankImageHasNoFaces(t *testing.T) {
	primary, alt := cascadePaths(t)
	d, err := NewCascadeDetector(primary, alt)
	if err != nil {
		t.Fatalf("NewCascadeDetector() error = %v", err)
	}
	defer d.Close()

	blank := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer blank.Close()

	if rects := d.Detect(blank); len(rects) != 0 {
		t.Errorf("Detect(blank) = %v, want no faces", rects)
	}
}

func TestPrepare_ProducesSingleChannel(t *testing.T) {
	color := gocv.NewMatWithSize(32, 32, gocv.MatTypeCV8UC3)
	defer color.Close()

	prepared := Prepare(color)
	defer prepared.Close()
	if prepared.Channels() != 1 {
		t.Errorf("Prepare() channels = %d, want 1", prepared.Channels())
	}
	if prepared.Rows() != 32 || prepared.Cols() != 32 {
		t.Errorf("Prepare() size = %dx%d, want 32x32", prepared.Cols(), prepared.Rows())
	}
}
