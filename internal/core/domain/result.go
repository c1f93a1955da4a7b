package domain

import "time"

// Result is the terminal artifact of a processed job, keyed by the job id.
type Result struct {
	ID               string    `json:"id"`
	AIResponse       string    `json:"ai_response"`
	AISummary        string    `json:"ai_summary,omitempty"`
	FileType         FileType  `json:"file_type"`
	BlobName         string    `json:"blob_name"`
	OriginalFilename string    `json:"original_filename,omitempty"`
	ContentType      string    `json:"content_type,omitempty"`
	FileSizeBytes    int64     `json:"file_size_bytes,omitempty"`
	PageCount        int       `json:"page_count,omitempty"`
	ContentText      string    `json:"content_text,omitempty"`
	Attempt          int       `json:"attempt,omitempty"`
	ProcessingStart  time.Time `json:"processing_start"`
	ProcessingEnd    time.Time `json:"processing_end"`
}

// Extraction is what an extractor produces from the raw payload.
type Extraction struct {
	Response    string
	Summary     string
	ContentText string
	PageCount   int
}

type JobState string

const (
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
)

// JobStatus is the two-state view exposed to clients. A job that never
// existed is indistinguishable from one still in flight.
type JobStatus struct {
	ID         string
	State      JobState
	Result     *Result
	RetryAfter time.Duration
}

// Outcome records how the worker settled a delivery.
type Outcome string

const (
	OutcomeCompleted    Outcome = "completed"
	OutcomeAbandoned    Outcome = "abandoned"
	OutcomeDeadLettered Outcome = "dead_lettered"
)

const ProcessingMessage = "Processing, please retry after some time."

// StatusView is the client-facing body of a status lookup. A processing job
// carries only the message; the retry hint travels out of band.
type StatusView struct {
	ID      string      `json:"id,omitempty"`
	Status  JobState    `json:"status,omitempty"`
	Data    *StatusData `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

type StatusData struct {
	Result      string     `json:"result"`
	Summary     string     `json:"summary,omitempty"`
	FileType    FileType   `json:"file_type,omitempty"`
	PageCount   int        `json:"page_count,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (s JobStatus) View() StatusView {
	if s.State != JobStateCompleted || s.Result == nil {
		return StatusView{Message: ProcessingMessage}
	}
	data := &StatusData{
		Result:    s.Result.AIResponse,
		Summary:   s.Result.AISummary,
		FileType:  s.Result.FileType,
		PageCount: s.Result.PageCount,
	}
	if !s.Result.ProcessingEnd.IsZero() {
		end := s.Result.ProcessingEnd
		data.CompletedAt = &end
	}
	return StatusView{ID: s.ID, Status: JobStateCompleted, Data: data}
}
