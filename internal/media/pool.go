package media

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"igharvest/pkg/logger"
	"igharvest/pkg/ratelimit"
)

// Job is one media URL to fetch for a content record
type Job struct {
	// Index is the caller's position for the record, echoed in the result
	Index      int
	ExternalID string
	URL        string
}

// Result is the outcome of a Job
type Result struct {
	Job      Job
	Image    Image
	Path     string
	Cached   bool
	Err      error
	Duration time.Duration
}

// Sink stores fetched media; the pool skips jobs whose file already exists
type Sink interface {
	Lookup(shortcode string) (string, bool)
	Save(shortcode string, img Image) (string, error)
}

// Pool fetches media concurrently. A Pool runs once: Start, Submit, Stop.
type Pool struct {
	numWorkers int
	jobs       chan Job
	results    chan Result
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	fetcher    Fetcher
	sink       Sink
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

// NewPool creates a pool; a nil sink keeps media in memory only and a nil
// limiter does not throttle
func NewPool(numWorkers int, fetcher Fetcher, sink Sink, limiter ratelimit.Limiter, log logger.Logger) *Pool {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pool{
		numWorkers: numWorkers,
		jobs:       make(chan Job, numWorkers*2),
		results:    make(chan Result, numWorkers),
		fetcher:    fetcher,
		sink:       sink,
		limiter:    limiter,
		logger:     log,
	}
}

// Start launches the workers
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.logger.DebugWithFields("Starting media pool", map[string]interface{}{
		"num_workers": p.numWorkers,
	})
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop closes the queue, waits for the workers and closes Results
func (p *Pool) Stop() {
	close(p.jobs)
	p.wg.Wait()
	close(p.results)
	p.cancel()
}

// Submit queues a job; it fails once the pool's context is done
func (p *Pool) Submit(job Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("media pool is shutting down: %w", p.ctx.Err())
	}
}

// Results streams job outcomes until Stop
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Download runs every job through a fresh cycle of the pool and returns the
// results ordered by Job.Index. Jobs not reached before ctx ends are missing.
func (p *Pool) Download(ctx context.Context, jobs []Job) []Result {
	p.Start(ctx)

	var out []Result
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range p.Results() {
			out = append(out, r)
		}
	}()

	for _, job := range jobs {
		if err := p.Submit(job); err != nil {
			break
		}
	}
	p.Stop()
	<-done

	sort.Slice(out, func(i, j int) bool { return out[i].Job.Index < out[j].Job.Index })
	return out
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for job := range p.jobs {
		if p.ctx.Err() != nil {
			return
		}
		result := p.process(job, id)
		select {
		case p.results <- result:
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) process(job Job, workerID int) (result Result) {
	start := time.Now()
	result.Job = job
	defer func() { result.Duration = time.Since(start) }()

	if p.sink != nil {
		if path, ok := p.sink.Lookup(job.ExternalID); ok {
			result.Path, result.Cached = path, true
			return result
		}
	}

	if err := p.limiter.Wait(p.ctx); err != nil {
		result.Err = err
		return result
	}

	img, err := p.fetcher.Fetch(p.ctx, job.URL)
	if err != nil {
		result.Err = fmt.Errorf("download failed: %w", err)
		p.logger.WithError(err).WarnWithFields("Media download failed", map[string]interface{}{
			"worker_id":   workerID,
			"external_id": job.ExternalID,
		})
		return result
	}
	result.Image = img

	if p.sink != nil {
		path, err := p.sink.Save(job.ExternalID, img)
		if err != nil {
			result.Err = fmt.Errorf("save failed: %w", err)
			return result
		}
		result.Path = path
	}

	p.logger.DebugWithFields("Media stored", map[string]interface{}{
		"worker_id":   workerID,
		"external_id": job.ExternalID,
		"size":        len(img.Data),
	})
	return result
}

// Downloader runs every Download on a fresh Pool sharing one fetcher, sink
// and limiter, so the rate limit spans runs
type Downloader struct {
	workers int
	fetcher Fetcher
	sink    Sink
	limiter ratelimit.Limiter
	logger  logger.Logger
}

// NewDownloader creates a Downloader; see NewPool for the nil defaults
func NewDownloader(workers int, fetcher Fetcher, sink Sink, limiter ratelimit.Limiter, log logger.Logger) *Downloader {
	return &Downloader{workers: workers, fetcher: fetcher, sink: sink, limiter: limiter, logger: log}
}

// Download fetches jobs and returns the results ordered by Job.Index
func (d *Downloader) Download(ctx context.Context, jobs []Job) []Result {
	if len(jobs) == 0 {
		return nil
	}
	return NewPool(d.workers, d.fetcher, d.sink, d.limiter, d.logger).Download(ctx, jobs)
}
