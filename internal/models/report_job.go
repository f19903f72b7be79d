package models

import "time"

// ReportFormat enumerates supported transcript report formats.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ReportStatus tracks the lifecycle of a transcript report job.
type ReportStatus string

const (
	ReportStatusPending ReportStatus = "PENDING"
	ReportStatusReady   ReportStatus = "READY"
	ReportStatusFailed  ReportStatus = "FAILED"
)

// ReportJob describes an asynchronous transcript report request.
type ReportJob struct {
	ID          string       `json:"id"`
	StudentID   string       `json:"student_id"`
	Format      ReportFormat `json:"format"`
	Status      ReportStatus `json:"status"`
	FilePath    string       `json:"-"`
	Error       string       `json:"error,omitempty"`
	RequestedAt time.Time    `json:"requested_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`

	// DownloadToken is populated on read once the report is ready.
	DownloadToken string     `json:"download_token,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}
