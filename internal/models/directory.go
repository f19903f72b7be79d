package models

import "time"

// Student is a pure identity record consumed by roster and transcript.
type Student struct {
	ID        string    `db:"id" json:"id"`
	StudentNo string    `db:"student_no" json:"student_no"`
	FullName  string    `db:"full_name" json:"full_name"`
	Email     string    `db:"email" json:"email"`
	Major     string    `db:"major" json:"major"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Employee is a staff identity record with a department reference.
type Employee struct {
	ID           string    `db:"id" json:"id"`
	FullName     string    `db:"full_name" json:"full_name"`
	Email        string    `db:"email" json:"email"`
	Position     string    `db:"position" json:"position"`
	DepartmentID *string   `db:"department_id" json:"department_id,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// DirectoryFilter provides filters for listing directory records.
type DirectoryFilter struct {
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// DirectorySearchResult groups matches across both record kinds.
// Matches are returned in storage order, unranked.
type DirectorySearchResult struct {
	Students  []Student  `json:"students"`
	Employees []Employee `json:"employees"`
}
