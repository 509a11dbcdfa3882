package services

import (
	"context"
	"image"
	"log"
	"time"

	"gocv.io/x/gocv"

	"github.com/camden-git/faceattend/gallery"
	"github.com/camden-git/faceattend/media"
)

const DefaultFaceMargin = 20

// Matcher identifies a single face region.
type Matcher interface {
	Match(ctx context.Context, faceRegion gocv.Mat) (MatchVerdict, error)
}

// Recorder turns a recognized name into an attendance outcome.
type Recorder interface {
	Record(ctx context.Context, personName string, when time.Time) (RecordOutcome, error)
}

// FaceResult is the verdict for one detected face, in detector coordinates of the rotated frame.
type FaceResult struct {
	X1      int          `json:"x1"`
	Y1      int          `json:"y1"`
	X2      int          `json:"x2"`
	Y2      int          `json:"y2"`
	Verdict MatchVerdict `json:"verdict"`
}

// Result of processing one photo. Annotated is owned by the caller and must be closed.
type Result struct {
	FaceCount      int           `json:"face_count"`
	RecognizedName string        `json:"recognized_name"`
	Faces          []FaceResult  `json:"faces"`
	Attendance     RecordOutcome `json:"attendance,omitempty"`
	AttendanceErr  error         `json:"-"`
	Annotated      gocv.Mat      `json:"-"`
}

func (r *Result) Close() {
	r.Annotated.Close()
}

// RecognitionPipeline runs rotation, detection, matching and annotation for
// one photo and optionally records attendance for the recognized name. a
// pipeline owns its detector and must not be used from several goroutines.
type RecognitionPipeline struct {
	detector media.FaceDetector
	matcher  Matcher
	recorder Recorder

	Rotation media.Rotation
	Margin   int

	// DebugSink, when set, receives the rotated frame and the prepared grayscale frame
	DebugSink func(label string, frame gocv.Mat)
}

func NewRecognitionPipeline(detector media.FaceDetector, matcher Matcher, rotation media.Rotation, margin int) *RecognitionPipeline {
	if margin < 0 {
		margin = DefaultFaceMargin
	}
	return &RecognitionPipeline{
		detector: detector,
		matcher:  matcher,
		Rotation: rotation,
		Margin:   margin,
	}
}

// WithRecorder enables attendance recording for recognized names.
func (p *RecognitionPipeline) WithRecorder(r Recorder) *RecognitionPipeline {
	p.recorder = r
	return p
}

// ProcessBytes decodes an uploaded photo and processes it. undecodable input
// yields media.ErrInvalidImage.
func (p *RecognitionPipeline) ProcessBytes(ctx context.Context, data []byte, when time.Time) (Result, error) {
	img, err := media.Decode(data)
	if err != nil {
		return Result{RecognizedName: gallery.UnknownName, Annotated: gocv.NewMat()}, err
	}
	defer img.Close()
	return p.process(ctx, img, media.ResolveRotation(p.Rotation, data), when)
}

// Process handles an already decoded BGR image. the input is not modified.
func (p *RecognitionPipeline) Process(ctx context.Context, img gocv.Mat, when time.Time) (Result, error) {
	rotation := p.Rotation
	if rotation == media.RotationExif {
		rotation = media.RotationNone
	}
	return p.process(ctx, img, rotation, when)
}

func (p *RecognitionPipeline) process(ctx context.Context, img gocv.Mat, rotation media.Rotation, when time.Time) (Result, error) {
	res := Result{RecognizedName: gallery.UnknownName, Faces: []FaceResult{}}

	frame := media.Rotate(img, rotation)
	defer frame.Close()
	res.Annotated = frame.Clone()

	if p.DebugSink != nil {
		p.DebugSink("rotated", frame)
		prepared := media.Prepare(frame)
		p.DebugSink("gray", prepared)
		prepared.Close()
	}

	rects := p.detector.Detect(frame)
	res.FaceCount = len(rects)
	if len(rects) == 0 {
		log.Println("pipeline: no faces detected")
		return res, nil
	}

	bounds := media.Bounds(frame)
	for i, r := range rects {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		verdict := p.matchRegion(ctx, frame, r, bounds, i)
		res.Faces = append(res.Faces, FaceResult{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y, Verdict: verdict})
		if verdict.Known() {
			media.Annotate(&res.Annotated, r, verdict.PersonName)
			res.RecognizedName = verdict.PersonName
		}
	}
	log.Printf("pipeline: %d face(s), recognized %s", res.FaceCount, res.RecognizedName)

	if p.recorder != nil && res.RecognizedName != gallery.UnknownName {
		res.Attendance, res.AttendanceErr = p.recorder.Record(ctx, res.RecognizedName, when)
		if res.AttendanceErr != nil {
			log.Printf("pipeline: attendance for %s failed: %v", res.RecognizedName, res.AttendanceErr)
		}
	}
	return res, nil
}

// matchRegion crops the margin-expanded face and matches it. failures are
// contained to this region and reported as UNKNOWN.
func (p *RecognitionPipeline) matchRegion(ctx context.Context, frame gocv.Mat, r, bounds image.Rectangle, idx int) MatchVerdict {
	unknown := MatchVerdict{PersonName: gallery.UnknownName, Distance: maxDistance}

	region, err := media.Crop(frame, media.ExpandRect(r, p.Margin, bounds))
	if err != nil {
		log.Printf("pipeline: face %d: %v", idx, err)
		return unknown
	}
	defer region.Close()

	verdict, err := p.matcher.Match(ctx, region)
	if err != nil {
		log.Printf("pipeline: face %d: match failed: %v", idx, err)
		return unknown
	}
	return verdict
}
