package models

import "time"

// Grade records the single grade held by an enrollment. Re-assigning a
// grade replaces this record in place; no history is retained.
type Grade struct {
	ID           string    `db:"id" json:"id"`
	EnrollmentID string    `db:"enrollment_id" json:"enrollment_id"`
	Value        string    `db:"value" json:"value"`
	Comments     string    `db:"comments" json:"comments"`
	AssignedAt   time.Time `db:"assigned_at" json:"assigned_at"`
}

// GradeDetail enriches a Grade with enrollment and course context.
type GradeDetail struct {
	Grade
	CourseID   string `db:"course_id" json:"course_id"`
	StudentID  string `db:"student_id" json:"student_id"`
	CourseCode string `db:"course_code" json:"course_code"`
	CourseName string `db:"course_name" json:"course_name"`
	Credits    int    `db:"credits" json:"credits"`
}

// Transcript is a student's graded record plus the weighted GPA.
type Transcript struct {
	StudentID string        `json:"student_id"`
	Entries   []GradeDetail `json:"entries"`
	GPA       float64       `json:"gpa"`
}

// GradePoints maps a letter grade to its point value. The vocabulary is
// open: unrecognised values count as 0.0.
func GradePoints(value string) float64 {
	switch value {
	case "A+", "A":
		return 4.0
	case "A-":
		return 3.7
	case "B+":
		return 3.3
	case "B":
		return 3.0
	case "B-":
		return 2.7
	case "C+":
		return 2.3
	case "C":
		return 2.0
	case "C-":
		return 1.7
	case "D+":
		return 1.3
	case "D":
		return 1.0
	case "F":
		return 0.0
	default:
		return 0.0
	}
}
