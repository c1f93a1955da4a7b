package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/kirillkom/ai-processing-pipeline/internal/core/domain"
)

type blobStoreFake struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	saveErr error
	openErr error
}

func newBlobStoreFake() *blobStoreFake {
	return &blobStoreFake{blobs: make(map[string][]byte)}
}

func (f *blobStoreFake) Save(_ context.Context, key, _ string, body io.Reader, _ int64) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.blobs[key]; ok {
		return domain.WrapError(domain.ErrBlobExists, "save", errors.New(key))
	}
	f.blobs[key] = payload
	return nil
}

func (f *blobStoreFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.blobs[key]
	if !ok {
		return nil, domain.WrapError(domain.ErrBlobNotFound, "open", errors.New(key))
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

type publisherFake struct {
	published [][]byte
	err       error
}

func (f *publisherFake) Publish(_ context.Context, body []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, body)
	return nil
}

type resultStoreFake struct {
	results   map[string]domain.Result
	upsertErr error
	getErr    error
	upserts   int
}

func newResultStoreFake() *resultStoreFake {
	return &resultStoreFake{results: make(map[string]domain.Result)}
}

func (f *resultStoreFake) Upsert(_ context.Context, result domain.Result) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts++
	f.results[result.ID] = result
	return nil
}

func (f *resultStoreFake) Get(_ context.Context, id string) (*domain.Result, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	result, ok := f.results[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrResultNotFound, "get", errors.New(id))
	}
	return &result, nil
}

type extractorFake struct {
	extraction domain.Extraction
	err        error
	calls      int
	lastJob    domain.Job
	lastBody   []byte
}

func (f *extractorFake) Extract(_ context.Context, job domain.Job, payload []byte) (domain.Extraction, error) {
	f.calls++
	f.lastJob = job
	f.lastBody = payload
	if f.err != nil {
		return domain.Extraction{}, f.err
	}
	return f.extraction, nil
}

type deliveryFake struct {
	body          []byte
	attempt       int
	completed     int
	abandoned     int
	deadLettered  int
	reason        string
	deadLetterErr error
}

func (d *deliveryFake) Body() []byte          { return d.body }
func (d *deliveryFake) Attempt() int          { return d.attempt }
func (d *deliveryFake) EnqueuedAt() time.Time { return time.Time{} }

func (d *deliveryFake) Complete(context.Context) error {
	d.completed++
	return nil
}

func (d *deliveryFake) Abandon(context.Context) error {
	d.abandoned++
	return nil
}

func (d *deliveryFake) DeadLetter(_ context.Context, reason string) error {
	if d.deadLetterErr != nil {
		return d.deadLetterErr
	}
	d.deadLettered++
	d.reason = reason
	return nil
}

func (d *deliveryFake) settlements() int {
	return d.completed + d.abandoned + d.deadLettered
}

type submitObserverFake struct {
	uploaded  int
	published int
	orphans   int
}

func (o *submitObserverFake) BlobUploaded(domain.FileType, int64) { o.uploaded++ }
func (o *submitObserverFake) JobPublished(domain.FileType)        { o.published++ }
func (o *submitObserverFake) OrphanBlob()                         { o.orphans++ }
