package handler

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"quitescan/internal/metrics"
	"quitescan/internal/queue"
	"quitescan/internal/roster"
)

// registrationRequest mirrors the registration form fields.
type registrationRequest struct {
	StudentID    string `json:"student_id" binding:"required"`
	FirstName    string `json:"first_name" binding:"required"`
	LastName     string `json:"last_name" binding:"required"`
	Email        string `json:"email" binding:"required"`
	DepartmentID string `json:"department_id"`
	PhoneNumber  string `json:"phone_number"`
	Address      string `json:"address"`
	DateOfBirth  string `json:"date_of_birth"`
}

func (r registrationRequest) toInput() (roster.RegistrationInput, error) {
	in := roster.RegistrationInput{
		StudentID:    r.StudentID,
		FirstName:    r.FirstName,
		LastName:     r.LastName,
		Email:        r.Email,
		DepartmentID: r.DepartmentID,
		PhoneNumber:  r.PhoneNumber,
		Address:      r.Address,
	}
	if r.DateOfBirth != "" {
		dob, err := time.Parse("2006-01-02", r.DateOfBirth)
		if err != nil {
			return in, &roster.ValidationError{Fields: map[string]string{"date_of_birth": "must be YYYY-MM-DD"}}
		}
		in.DateOfBirth = &dob
	}
	return in, nil
}

// RegistrationForm returns the data a registration form needs: the active
// departments to choose from.
func (h *Handler) RegistrationForm(c *gin.Context) {
	departments, err := h.roster.ActiveDepartments(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"departments": departments})
}

// SubmitRegistration handles public self-registration; the student lands in
// the pending queue.
func (h *Handler) SubmitRegistration(c *gin.Context) {
	var req registrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in, err := req.toInput()
	if err != nil {
		renderError(c, err)
		return
	}
	student, err := h.roster.SubmitRegistration(c.Request.Context(), in)
	if err != nil {
		renderError(c, err)
		return
	}
	metrics.Registrations.WithLabelValues("self").Inc()
	h.enqueueQRImage(c, student)
	c.JSON(http.StatusCreated, gin.H{
		"message":  "Registration submitted successfully! Please wait for admin approval.",
		"redirect": "/student/registration-success/",
		"student":  student,
	})
}

// RegistrationSuccess mirrors the post-registration confirmation page.
func (h *Handler) RegistrationSuccess(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Registration submitted successfully! Please wait for admin approval."})
}

// RegisterByAdmin creates an already-approved student.
func (h *Handler) RegisterByAdmin(c *gin.Context) {
	var req registrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in, err := req.toInput()
	if err != nil {
		renderError(c, err)
		return
	}
	student, err := h.roster.RegisterByAdmin(c.Request.Context(), in, adminName(c))
	if err != nil {
		renderError(c, err)
		return
	}
	metrics.Registrations.WithLabelValues("admin").Inc()
	h.enqueueQRImage(c, student)
	c.JSON(http.StatusCreated, gin.H{
		"message": "Student " + student.FullName() + " registered successfully!",
		"student": student,
	})
}

// enqueueQRImage schedules image rendering off the request path. A publish
// failure is logged only; the worker backfill sweep will catch the student.
func (h *Handler) enqueueQRImage(c *gin.Context, student roster.Student) {
	if h.q == nil {
		return
	}
	err := h.q.Publish(c.Request.Context(), queue.Message{Type: queue.TypeQRImage, Body: []byte(student.ID)})
	if err != nil {
		log.Printf("qr image enqueue failed for %s: %v", student.StudentID, err)
	}
}

// PendingRegistrations lists students awaiting a decision.
func (h *Handler) PendingRegistrations(c *gin.Context) {
	students, err := h.roster.PendingRegistrations(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"students": students})
}

// StudentDetail returns one student, for the approval form.
func (h *Handler) StudentDetail(c *gin.Context) {
	student, err := h.roster.Student(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"student": student})
}

// ApproveStudent decides a pending registration.
func (h *Handler) ApproveStudent(c *gin.Context) {
	var req struct {
		RegistrationStatus string `json:"registration_status" binding:"required"`
		RejectionReason    string `json:"rejection_reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	student, err := h.roster.Approve(c.Request.Context(), c.Param("id"),
		req.RegistrationStatus, req.RejectionReason, adminName(c))
	if err != nil {
		renderError(c, err)
		return
	}
	metrics.Decisions.WithLabelValues(student.RegistrationStatus).Inc()
	c.JSON(http.StatusOK, gin.H{
		"message": "Student registration " + student.RegistrationStatus + " successfully!",
		"student": student,
	})
}

// ListStudents pages through the full roster.
func (h *Handler) ListStudents(c *gin.Context) {
	page := pageParam(c, "page")
	students, total, err := h.roster.Students(c.Request.Context(), page)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"students":    students,
		"page":        page,
		"total":       total,
		"total_pages": h.pageCount(total),
	})
}

// SetStudentStatus flips a student between active and inactive.
func (h *Handler) SetStudentStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	student, err := h.roster.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"student": student})
}

// QRCodes pages through active students with their QR image locations.
func (h *Handler) QRCodes(c *gin.Context) {
	page := pageParam(c, "page")
	students, total, err := h.roster.QRCodeRoster(c.Request.Context(), page)
	if err != nil {
		renderError(c, err)
		return
	}
	type qrEntry struct {
		StudentID string `json:"student_id"`
		Name      string `json:"name"`
		Token     string `json:"qr_token"`
		ImageURL  string `json:"image_url,omitempty"`
	}
	entries := make([]qrEntry, 0, len(students))
	for _, s := range students {
		e := qrEntry{StudentID: s.StudentID, Name: s.FullName(), Token: s.QRToken}
		if s.QRImagePath != "" {
			e.ImageURL = mediaURL(s.QRImagePath)
		}
		entries = append(entries, e)
	}
	c.JSON(http.StatusOK, gin.H{
		"students":    entries,
		"page":        page,
		"total":       total,
		"total_pages": h.pageCount(total),
	})
}

// mediaURL maps a stored image path to its serving URL. Remote URLs
// (Cloudinary) are stored as-is.
func mediaURL(path string) string {
	if len(path) > 4 && path[:4] == "http" {
		return path
	}
	return "/media/" + path
}

// ListDepartments returns every department for the management page.
func (h *Handler) ListDepartments(c *gin.Context) {
	departments, err := h.roster.Departments(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"departments": departments})
}

type departmentRequest struct {
	Name        string `json:"name" binding:"required"`
	Code        string `json:"code" binding:"required"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

// CreateDepartment adds a department.
func (h *Handler) CreateDepartment(c *gin.Context) {
	var req departmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dep, err := h.roster.CreateDepartment(c.Request.Context(), roster.DepartmentInput(req))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Department added successfully!", "department": dep})
}

// GetDepartment returns one department, for the edit form.
func (h *Handler) GetDepartment(c *gin.Context) {
	dep, err := h.roster.Department(c.Request.Context(), c.Param("id"))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"department": dep})
}

// EditDepartment updates a department.
func (h *Handler) EditDepartment(c *gin.Context) {
	var req departmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dep, err := h.roster.EditDepartment(c.Request.Context(), c.Param("id"), roster.DepartmentInput(req))
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Department updated successfully!", "department": dep})
}
