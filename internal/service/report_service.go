package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/univops/registrar-api/internal/models"
	"github.com/univops/registrar-api/pkg/config"
	appErrors "github.com/univops/registrar-api/pkg/errors"
	"github.com/univops/registrar-api/pkg/export"
	"github.com/univops/registrar-api/pkg/jobs"
)

type transcriptSource interface {
	Transcript(ctx context.Context, studentID string) (*models.Transcript, error)
}

type fileStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

type downloadSigner interface {
	Generate(jobID, relPath string) (string, time.Time, error)
	Parse(token string) (jobID, relPath string, expiresAt time.Time, err error)
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File     *os.File
	Filename string
	Format   models.ReportFormat
}

// ReportService orchestrates asynchronous transcript report generation.
// Job state lives in memory; generated files and their signed download
// tokens survive as long as the process does.
type ReportService struct {
	transcripts transcriptSource
	students    studentReader
	storage     fileStore
	signer      downloadSigner
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	queue       *jobs.Queue
	logger      *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*models.ReportJob
}

// NewReportService constructs the report service and its worker queue.
func NewReportService(transcripts transcriptSource, students studentReader, store fileStore, signer downloadSigner, cfg config.ReportsConfig, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReportService{
		transcripts: transcripts,
		students:    students,
		storage:     store,
		signer:      signer,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		logger:      logger,
		jobs:        make(map[string]*models.ReportJob),
	}
	s.queue = jobs.NewQueue("transcript_reports", s.process, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the report workers.
func (s *ReportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the report workers.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// Request validates the target student and enqueues a report job.
func (s *ReportService) Request(ctx context.Context, studentID string, format models.ReportFormat) (*models.ReportJob, error) {
	if format != models.ReportFormatCSV && format != models.ReportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "unsupported report format")
	}
	if _, err := s.students.FindByID(ctx, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	job := &models.ReportJob{
		ID:          uuid.NewString(),
		StudentID:   studentID,
		Format:      format,
		Status:      models.ReportStatusPending,
		RequestedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "transcript_report"}); err != nil {
		s.fail(job.ID, "failed to enqueue report job")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	return s.snapshot(job.ID), nil
}

// Status returns job state. Ready jobs carry a fresh signed download token.
func (s *ReportService) Status(ctx context.Context, jobID string) (*models.ReportJob, error) {
	job := s.snapshot(jobID)
	if job == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
	}
	if job.Status == models.ReportStatusReady && s.signer != nil {
		token, expiresAt, err := s.signer.Generate(job.ID, job.FilePath)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download token")
		}
		job.DownloadToken = token
		job.ExpiresAt = &expiresAt
	}
	return job, nil
}

// Download resolves a signed token to the generated file.
func (s *ReportService) Download(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidArgument, "invalid or expired download token")
	}
	job := s.snapshot(jobID)
	if job == nil || job.Status != models.ReportStatusReady || job.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "report not available")
	}
	file, err := s.storage.Open(job.FilePath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open report file")
	}
	filename := fmt.Sprintf("transcript-%s.%s", job.StudentID, job.Format)
	return &ReportDownload{File: file, Filename: filename, Format: job.Format}, nil
}

func (s *ReportService) process(ctx context.Context, job jobs.Job) error {
	record := s.snapshot(job.ID)
	if record == nil {
		return fmt.Errorf("unknown report job %s", job.ID)
	}

	transcript, err := s.transcripts.Transcript(ctx, record.StudentID)
	if err != nil {
		s.fail(job.ID, "failed to build transcript")
		return err
	}
	student, err := s.students.FindByID(ctx, record.StudentID)
	if err != nil {
		s.fail(job.ID, "failed to load student")
		return err
	}

	dataset := transcriptDataset(transcript)
	var payload []byte
	switch record.Format {
	case models.ReportFormatPDF:
		title := fmt.Sprintf("Transcript - %s (%s)", student.FullName, student.StudentNo)
		payload, err = s.pdf.Render(dataset, title)
	default:
		payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		s.fail(job.ID, "failed to render report")
		return err
	}

	relPath := fmt.Sprintf("transcripts/%s-%s.%s", record.StudentID, record.ID, record.Format)
	if _, err := s.storage.Save(relPath, payload); err != nil {
		s.fail(job.ID, "failed to store report")
		return err
	}

	now := time.Now().UTC()
	s.mu.Lock()
	if j, ok := s.jobs[job.ID]; ok {
		j.Status = models.ReportStatusReady
		j.FilePath = relPath
		j.Error = ""
		j.CompletedAt = &now
	}
	s.mu.Unlock()

	s.logger.Info("transcript report ready",
		zap.String("job_id", job.ID),
		zap.String("student_id", record.StudentID),
		zap.String("format", string(record.Format)))
	return nil
}

func (s *ReportService) fail(jobID, message string) {
	now := time.Now().UTC()
	s.mu.Lock()
	if j, ok := s.jobs[jobID]; ok {
		j.Status = models.ReportStatusFailed
		j.Error = message
		j.CompletedAt = &now
	}
	s.mu.Unlock()
}

func (s *ReportService) snapshot(jobID string) *models.ReportJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}

func transcriptDataset(transcript *models.Transcript) export.Dataset {
	headers := []string{"Course Code", "Course Name", "Credits", "Grade", "Points", "Assigned At"}
	rows := make([]map[string]string, 0, len(transcript.Entries))
	for _, entry := range transcript.Entries {
		rows = append(rows, map[string]string{
			"Course Code": entry.CourseCode,
			"Course Name": entry.CourseName,
			"Credits":     strconv.Itoa(entry.Credits),
			"Grade":       entry.Value,
			"Points":      fmt.Sprintf("%.1f", models.GradePoints(entry.Value)),
			"Assigned At": entry.AssignedAt.Format(time.RFC3339),
		})
	}
	return export.Dataset{
		Headers: headers,
		Rows:    rows,
		Footer:  []string{fmt.Sprintf("GPA: %.2f", transcript.GPA)},
	}
}
