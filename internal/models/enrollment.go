package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment entry.
type EnrollmentStatus string

// An unenrolled entry is kept as WITHDRAWN rather than deleted so that
// "has this student ever held an enrollment for this course" stays
// answerable for prerequisite checks.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "ENROLLED"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
)

// Enrollment captures a student's registration to a course.
// The (course_id, student_id) pair is unique across all statuses.
type Enrollment struct {
	ID          string           `db:"id" json:"id"`
	CourseID    string           `db:"course_id" json:"course_id"`
	StudentID   string           `db:"student_id" json:"student_id"`
	Status      EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt  time.Time        `db:"enrolled_at" json:"enrolled_at"`
	WithdrawnAt *time.Time       `db:"withdrawn_at" json:"withdrawn_at,omitempty"`
}

// EnrollmentDetail enriches Enrollment with course and student info.
type EnrollmentDetail struct {
	Enrollment
	CourseCode  string `db:"course_code" json:"course_code"`
	CourseName  string `db:"course_name" json:"course_name"`
	StudentName string `db:"student_name" json:"student_name"`
}

// Eligibility is the computed answer to "may this student enroll now".
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// BulkEnrollOutcome reports the per-student result of a bulk enrollment.
type BulkEnrollOutcome struct {
	StudentID string `json:"student_id"`
	Enrolled  bool   `json:"enrolled"`
	Reason    string `json:"reason,omitempty"`
}
