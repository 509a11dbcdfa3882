package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/camden-git/faceattend/media"
	"github.com/camden-git/faceattend/services"
)

// ErrQueueFull is returned by Submit when every worker is busy and the queue is at capacity.
var ErrQueueFull = errors.New("recognition queue full")

var errPoolStopped = errors.New("recognition pool stopped")

// PipelineFactory builds one pipeline per worker together with its cleanup.
// detectors are not shared between workers.
type PipelineFactory func() (*services.RecognitionPipeline, func(), error)

type RecognitionJob struct {
	ID         string
	Data       []byte
	CapturedAt time.Time
	UploadName string // name under which the raw upload was stored, used for debug artifacts

	ctx    context.Context
	result chan jobResult
}

type jobResult struct {
	res services.Result
	err error
}

type RecognitionPool struct {
	JobQueue chan RecognitionJob
	Wg       sync.WaitGroup
	StopChan chan struct{}
	Pending  map[string]time.Time
	Mutex    sync.Mutex

	// Artifacts, when set, receives debug frames of every job
	Artifacts *media.Processor

	stopOnce sync.Once
}

// NewRecognitionPool builds numWorkers pipelines up front, so a broken
// classifier path fails here instead of inside a worker.
func NewRecognitionPool(newPipeline PipelineFactory, queueSize, numWorkers int) (*RecognitionPool, error) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}

	pipelines := make([]*services.RecognitionPipeline, 0, numWorkers)
	cleanups := make([]func(), 0, numWorkers)
	for i := 0; i < numWorkers; i++ {
		p, cleanup, err := newPipeline()
		if err != nil {
			for _, c := range cleanups {
				c()
			}
			return nil, fmt.Errorf("failed to build pipeline for worker %d: %w", i, err)
		}
		pipelines = append(pipelines, p)
		cleanups = append(cleanups, cleanup)
	}

	pool := &RecognitionPool{
		JobQueue: make(chan RecognitionJob, queueSize),
		StopChan: make(chan struct{}),
		Pending:  make(map[string]time.Time),
	}
	pool.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go pool.worker(i, pipelines[i], cleanups[i])
	}
	log.Printf("Started %d recognition worker(s) with queue size %d", numWorkers, queueSize)
	return pool, nil
}

func (rp *RecognitionPool) worker(id int, pipeline *services.RecognitionPipeline, cleanup func()) {
	defer rp.Wg.Done()
	defer func() {
		if cleanup != nil {
			cleanup()
		}
		log.Printf("worker %d: pipeline released", id)
	}()

	log.Printf("worker %d: started", id)
	for {
		select {
		case job := <-rp.JobQueue:
			rp.run(id, pipeline, job)
		case <-rp.StopChan:
			// fail whatever is still queued so no submitter waits forever
			for {
				select {
				case job := <-rp.JobQueue:
					rp.finish(job, jobResult{res: emptyResult(), err: errPoolStopped})
				default:
					log.Printf("worker %d: stopping, stop signal received", id)
					return
				}
			}
		}
	}
}

func (rp *RecognitionPool) run(id int, pipeline *services.RecognitionPipeline, job RecognitionJob) {
	if err := job.ctx.Err(); err != nil {
		log.Printf("worker %d: skipping job %s, caller gone: %v", id, job.ID, err)
		rp.finish(job, jobResult{res: emptyResult(), err: err})
		return
	}

	pipeline.DebugSink = nil
	if rp.Artifacts != nil && job.UploadName != "" {
		pipeline.DebugSink = func(label string, frame gocv.Mat) {
			if _, err := rp.Artifacts.SaveDebug(frame, label, job.UploadName); err != nil {
				log.Printf("worker %d: failed to save %s frame: %v", id, label, err)
			}
		}
	}

	start := time.Now()
	res, err := pipeline.ProcessBytes(job.ctx, job.Data, job.CapturedAt)
	log.Printf("worker %d: job %s done in %v (%d face(s), %s)", id, job.ID, time.Since(start).Round(time.Millisecond), res.FaceCount, res.RecognizedName)
	rp.finish(job, jobResult{res: res, err: err})
}

func (rp *RecognitionPool) finish(job RecognitionJob, r jobResult) {
	rp.Mutex.Lock()
	delete(rp.Pending, job.ID)
	rp.Mutex.Unlock()
	job.result <- r
}

func emptyResult() services.Result {
	return services.Result{Annotated: gocv.NewMat()}
}

// Submit queues a photo and waits for its result. when ctx ends first the job
// still completes in the background and its result is discarded. the caller
// closes the returned Result.
func (rp *RecognitionPool) Submit(ctx context.Context, data []byte, capturedAt time.Time, uploadName string) (services.Result, error) {
	job := RecognitionJob{
		ID:         uuid.NewString(),
		Data:       data,
		CapturedAt: capturedAt,
		UploadName: uploadName,
		ctx:        ctx,
		result:     make(chan jobResult, 1),
	}

	select {
	case <-rp.StopChan:
		return emptyResult(), errPoolStopped
	default:
	}

	rp.Mutex.Lock()
	rp.Pending[job.ID] = time.Now()
	rp.Mutex.Unlock()

	select {
	case rp.JobQueue <- job:
	default:
		rp.Mutex.Lock()
		delete(rp.Pending, job.ID)
		rp.Mutex.Unlock()
		log.Printf("WARNING: recognition queue full, rejecting upload %s", uploadName)
		return emptyResult(), ErrQueueFull
	}

	select {
	case r := <-job.result:
		return r.res, r.err
	case <-ctx.Done():
		go func() {
			r := <-job.result
			r.res.Close()
		}()
		return emptyResult(), ctx.Err()
	}
}

// PendingCount reports queued plus in-flight jobs.
func (rp *RecognitionPool) PendingCount() int {
	rp.Mutex.Lock()
	defer rp.Mutex.Unlock()
	return len(rp.Pending)
}

func (rp *RecognitionPool) Stop() {
	rp.stopOnce.Do(func() {
		log.Println("Stopping recognition workers...")
		close(rp.StopChan)
		rp.Wg.Wait()
		log.Println("All recognition workers stopped")
	})
}
