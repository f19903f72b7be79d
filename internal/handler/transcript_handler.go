package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/univops/registrar-api/internal/service"
	appErrors "github.com/univops/registrar-api/pkg/errors"
	"github.com/univops/registrar-api/pkg/response"
)

// TranscriptHandler exposes grade and transcript endpoints.
type TranscriptHandler struct {
	transcripts *service.TranscriptService
}

// NewTranscriptHandler constructs TranscriptHandler.
func NewTranscriptHandler(transcripts *service.TranscriptService) *TranscriptHandler {
	return &TranscriptHandler{transcripts: transcripts}
}

// Assign godoc
// @Summary Assign or replace a grade
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.AssignGradeRequest true "Grade payload"
// @Success 200 {object} response.Envelope
// @Router /grades [put]
func (h *TranscriptHandler) Assign(c *gin.Context) {
	var req service.AssignGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidArgument.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.transcripts.AssignGrade(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Get godoc
// @Summary Get the grade a student holds for a course
// @Tags Grades
// @Produce json
// @Param courseId query string true "Course ID"
// @Param studentId query string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /grades [get]
func (h *TranscriptHandler) Get(c *gin.Context) {
	courseID := c.Query("courseId")
	studentID := c.Query("studentId")
	if courseID == "" || studentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidArgument, "courseId and studentId are required"))
		return
	}
	grade, err := h.transcripts.GetGrade(c.Request.Context(), courseID, studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grade, nil)
}

// Delete godoc
// @Summary Delete a grade record
// @Tags Grades
// @Produce json
// @Param id path string true "Grade ID"
// @Success 204
// @Router /grades/{id} [delete]
func (h *TranscriptHandler) Delete(c *gin.Context) {
	if err := h.transcripts.DeleteGrade(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// StudentGrades godoc
// @Summary List a student's grades
// @Tags Grades
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/grades [get]
func (h *TranscriptHandler) StudentGrades(c *gin.Context) {
	grades, err := h.transcripts.GradesOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// CourseGrades godoc
// @Summary List all grades recorded for a course
// @Tags Grades
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/grades [get]
func (h *TranscriptHandler) CourseGrades(c *gin.Context) {
	grades, err := h.transcripts.CourseGrades(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, nil)
}

// GPA godoc
// @Summary Get a student's credit-weighted GPA
// @Tags Grades
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/gpa [get]
func (h *TranscriptHandler) GPA(c *gin.Context) {
	gpa, err := h.transcripts.GPA(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"gpa": gpa}, nil)
}

// Transcript godoc
// @Summary Get a student's full transcript
// @Tags Grades
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/transcript [get]
func (h *TranscriptHandler) Transcript(c *gin.Context) {
	transcript, err := h.transcripts.Transcript(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, transcript, nil)
}
