package media

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"gocv.io/x/gocv"
)

const (
	DetectedJpegQuality = 90
	JpegFileExtension   = ".jpg"
)

// Processor persists the artifacts of a recognition request: the raw upload
// and, when enabled, the annotated and grayscale frames. it relies on a Store
// implementation for saving the results.
type Processor struct {
	store Store
}

func NewProcessor(store Store) *Processor {
	return &Processor{store: store}
}

// Store returns the backend the artifacts are written to.
func (p *Processor) Store() Store {
	return p.store
}

// UploadFilename builds the photo_<timestamp>_<uuid>.jpg name used for uploads.
func UploadFilename(capturedAt time.Time) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate UUID for upload: %w", err)
	}
	return fmt.Sprintf("photo_%s_%s%s", capturedAt.Format("20060102_150405"), id.String(), JpegFileExtension), nil
}

// SaveUpload stores the raw bytes exactly as received.
func (p *Processor) SaveUpload(data []byte, capturedAt time.Time) (string, error) {
	name, err := UploadFilename(capturedAt)
	if err != nil {
		return "", err
	}
	rel, err := p.store.Save(AssetTypeUpload, name, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to save upload via store: %w", err)
	}
	return rel, nil
}

// DiscardUpload removes a stored upload that turned out not to be an image.
func (p *Processor) DiscardUpload(relativePath string) error {
	if err := p.store.Delete(relativePath); err != nil {
		return fmt.Errorf("failed to discard upload via store: %w", err)
	}
	return nil
}

// SaveAnnotated stores an annotated frame as jpeg under the detected directory,
// named after the upload it was produced from.
func (p *Processor) SaveAnnotated(annotated gocv.Mat, uploadName string) (string, error) {
	return p.saveMat(AssetTypeDetected, annotated, "detected_"+uploadName)
}

// SaveDebug stores an intermediate frame (rotated or grayscale) for troubleshooting.
func (p *Processor) SaveDebug(frame gocv.Mat, label, uploadName string) (string, error) {
	return p.saveMat(AssetTypeDebug, frame, label+"_"+uploadName)
}

func (p *Processor) saveMat(assetType AssetType, mat gocv.Mat, filename string) (string, error) {
	img, err := mat.ToImage()
	if err != nil {
		return "", fmt.Errorf("failed to convert frame to image: %w", err)
	}

	reader, writer := io.Pipe()
	go func() {
		err := imaging.Encode(writer, img, imaging.JPEG, imaging.JPEGQuality(DetectedJpegQuality))
		if err != nil {
			log.Printf("processor: Failed to encode %s frame: %v", assetType, err)
		}
		writer.CloseWithError(err)
	}()

	rel, err := p.store.Save(assetType, filename, reader)
	reader.Close()
	if err != nil {
		return "", fmt.Errorf("failed to save %s frame via store: %w", assetType, err)
	}
	log.Printf("processor: saved %s frame at %s", assetType, rel)
	return rel, nil
}
