package seed

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/univops/registrar-api/internal/service"
)

// Run loads a small development dataset through the regular services. The
// enrollment step uses the trusted unchecked path so seeding is not subject
// to prerequisite ordering.
func Run(ctx context.Context, catalog *service.CatalogService, directory *service.DirectoryService, roster *service.RosterService, logger *zap.Logger) error {
	department, err := catalog.CreateDepartment(ctx, service.DepartmentRequest{Name: "Computer Science"})
	if err != nil {
		return fmt.Errorf("seed department: %w", err)
	}

	intro, err := catalog.CreateCourse(ctx, service.CreateCourseRequest{
		Code:         "CS101",
		Name:         "Introduction to Programming",
		Credits:      3,
		Capacity:     30,
		DepartmentID: &department.ID,
	})
	if err != nil {
		return fmt.Errorf("seed course: %w", err)
	}
	if _, err := catalog.CreateCourse(ctx, service.CreateCourseRequest{
		Code:          "CS201",
		Name:          "Data Structures",
		Credits:       4,
		Capacity:      25,
		DepartmentID:  &department.ID,
		Prerequisites: []string{intro.ID},
	}); err != nil {
		return fmt.Errorf("seed course: %w", err)
	}

	mathDept, err := catalog.CreateDepartment(ctx, service.DepartmentRequest{Name: "Mathematics"})
	if err != nil {
		return fmt.Errorf("seed department: %w", err)
	}
	if _, err := catalog.CreateCourse(ctx, service.CreateCourseRequest{
		Code:         "MATH201",
		Name:         "Linear Algebra",
		Credits:      4,
		Capacity:     40,
		DepartmentID: &mathDept.ID,
	}); err != nil {
		return fmt.Errorf("seed course: %w", err)
	}

	students := []service.StudentRequest{
		{StudentNo: "S-1001", FullName: "Alice Johnson", Email: "alice@example.edu", Major: "Computer Science"},
		{StudentNo: "S-1002", FullName: "Bob Martinez", Email: "bob@example.edu", Major: "Mathematics"},
	}
	for _, req := range students {
		student, err := directory.CreateStudent(ctx, req)
		if err != nil {
			return fmt.Errorf("seed student: %w", err)
		}
		if err := roster.SeedEnroll(ctx, intro.ID, student.ID); err != nil {
			return fmt.Errorf("seed enrollment: %w", err)
		}
	}

	logger.Info("seed data loaded",
		zap.String("department_id", department.ID),
		zap.Int("students", len(students)))
	return nil
}
