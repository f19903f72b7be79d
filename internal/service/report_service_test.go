package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/univops/registrar-api/internal/models"
	"github.com/univops/registrar-api/pkg/config"
	appErrors "github.com/univops/registrar-api/pkg/errors"
	"github.com/univops/registrar-api/pkg/storage"
)

type mockTranscriptSource struct {
	transcript *models.Transcript
}

func (m *mockTranscriptSource) Transcript(ctx context.Context, studentID string) (*models.Transcript, error) {
	return m.transcript, nil
}

func newReportFixture(t *testing.T) *ReportService {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	transcripts := &mockTranscriptSource{transcript: &models.Transcript{
		StudentID: "s1",
		Entries: []models.GradeDetail{
			{Grade: models.Grade{ID: "g1", Value: "A", AssignedAt: time.Now().UTC()}, CourseID: "cs101", StudentID: "s1", CourseCode: "CS101", CourseName: "Intro", Credits: 3},
		},
		GPA: 4.0,
	}}
	students := &mockStudentDir{students: map[string]*models.Student{
		"s1": {ID: "s1", StudentNo: "S-1001", FullName: "Alice Johnson"},
	}}
	cfg := config.ReportsConfig{WorkerConcurrency: 1, WorkerRetries: 1}
	return NewReportService(transcripts, students, store, signer, cfg, zap.NewNop())
}

func TestReportServiceRejectsUnknownFormat(t *testing.T) {
	svc := newReportFixture(t)
	svc.Start(context.Background())
	defer svc.Stop()

	_, err := svc.Request(context.Background(), "s1", models.ReportFormat("xlsx"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidArgument))
}

func TestReportServiceRejectsUnknownStudent(t *testing.T) {
	svc := newReportFixture(t)
	svc.Start(context.Background())
	defer svc.Stop()

	_, err := svc.Request(context.Background(), "ghost", models.ReportFormatCSV)
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}

func TestReportServiceGeneratesAndServesCSV(t *testing.T) {
	svc := newReportFixture(t)
	ctx := context.Background()
	svc.Start(ctx)
	defer svc.Stop()

	job, err := svc.Request(ctx, "s1", models.ReportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusPending, job.Status)

	require.Eventually(t, func() bool {
		current, err := svc.Status(ctx, job.ID)
		return err == nil && current.Status == models.ReportStatusReady
	}, 2*time.Second, 10*time.Millisecond)

	ready, err := svc.Status(ctx, job.ID)
	require.NoError(t, err)
	require.NotEmpty(t, ready.DownloadToken)
	require.NotNil(t, ready.ExpiresAt)

	download, err := svc.Download(ctx, ready.DownloadToken)
	require.NoError(t, err)
	defer download.File.Close()

	content, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(content), "CS101")
	assert.Contains(t, string(content), "GPA: 4.00")
}

func TestReportServiceRejectsTamperedToken(t *testing.T) {
	svc := newReportFixture(t)
	ctx := context.Background()
	svc.Start(ctx)
	defer svc.Stop()

	job, err := svc.Request(ctx, "s1", models.ReportFormatCSV)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := svc.Status(ctx, job.ID)
		return err == nil && current.Status == models.ReportStatusReady
	}, 2*time.Second, 10*time.Millisecond)

	ready, err := svc.Status(ctx, job.ID)
	require.NoError(t, err)

	_, err = svc.Download(ctx, ready.DownloadToken+"x")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidArgument))
}

func TestReportServiceStatusUnknownJob(t *testing.T) {
	svc := newReportFixture(t)

	_, err := svc.Status(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound))
}
