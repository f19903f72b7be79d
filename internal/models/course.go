package models

import "time"

// DefaultCourseCapacity applies when a course is created without one.
const DefaultCourseCapacity = 30

// Course is a catalog entry. The id is the stable storage key; the course
// code is the mutable business key shown to users. Roster and transcript
// data is always keyed by id so a code rename never re-keys anything.
type Course struct {
	ID           string    `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	Credits      int       `db:"credits" json:"credits"`
	Capacity     int       `db:"capacity" json:"capacity"`
	DepartmentID *string   `db:"department_id" json:"department_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`

	// Prerequisites holds course ids. Entries referencing deleted courses
	// are kept for display but skipped by the eligibility engine.
	Prerequisites []string `db:"-" json:"prerequisites"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	Search       string
	DepartmentID string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
