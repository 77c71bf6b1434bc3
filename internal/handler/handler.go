// Package handler wires the HTTP surface: public registration and scanning,
// the admin gate/login flow, and the admin dashboard and report endpoints.
package handler

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"quitescan/internal/attendance"
	"quitescan/internal/auth"
	"quitescan/internal/config"
	"quitescan/internal/queue"
	"quitescan/internal/roster"
)

// CredentialVerifier checks an admin username/password pair.
type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) error
}

// Handler holds every dependency the routes need.
type Handler struct {
	cfg     config.App
	roster  *roster.Service
	scans   *attendance.Service
	reports *attendance.Repository
	creds   CredentialVerifier
	q       queue.Queue
}

// New creates a handler.
func New(cfg config.App, rosterSvc *roster.Service, scans *attendance.Service,
	reports *attendance.Repository, creds CredentialVerifier, q queue.Queue) *Handler {
	return &Handler{cfg: cfg, roster: rosterSvc, scans: scans, reports: reports, creds: creds, q: q}
}

// Register attaches all routes to the engine.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/student/register/", h.RegistrationForm)
	r.POST("/student/register/", h.SubmitRegistration)
	r.GET("/student/registration-success/", h.RegistrationSuccess)

	r.GET("/admin-gate/", h.GateStatus)
	r.POST("/admin-gate/", h.PassGate)
	r.POST("/admin/login/", auth.RequireGate(h.cfg.SessionSigningKey, h.cfg.SessionIssuer), h.Login)

	r.POST("/student/process-scan/", h.ProcessScan)

	r.GET("/sw.js", h.ServiceWorker)
	r.GET("/robots.txt", h.RobotsTxt)
	r.GET("/sitemap.xml", h.SitemapXML)

	admin := r.Group("", auth.RequireAdmin(h.cfg.SessionSigningKey, h.cfg.SessionIssuer))
	admin.GET("/dashboard/", h.Dashboard)
	admin.GET("/register-student/", h.RegistrationForm)
	admin.POST("/register-student/", h.RegisterByAdmin)
	admin.GET("/admin/pending-registrations/", h.PendingRegistrations)
	admin.GET("/admin/approve-student/:id/", h.StudentDetail)
	admin.POST("/admin/approve-student/:id/", h.ApproveStudent)
	admin.GET("/admin/manage-departments/", h.ListDepartments)
	admin.POST("/admin/manage-departments/", h.CreateDepartment)
	admin.GET("/admin/edit-department/:id/", h.GetDepartment)
	admin.POST("/admin/edit-department/:id/", h.EditDepartment)
	admin.GET("/students/", h.ListStudents)
	admin.POST("/students/:id/status/", h.SetStudentStatus)
	admin.GET("/qr-codes/", h.QRCodes)
	admin.GET("/report/", h.DailyReport)
	admin.GET("/report/monthly-all/", h.MonthlyReport)
	admin.GET("/report/weekly-all/", h.WeeklyReport)
	admin.POST("/logout/", h.Logout)
}

// renderError maps domain errors to HTTP responses.
func renderError(c *gin.Context, err error) {
	var verr *roster.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"errors": verr.Fields})
	case errors.Is(err, roster.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, roster.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, roster.ErrNotPending):
		c.JSON(http.StatusConflict, gin.H{"error": "registration is not pending"})
	default:
		log.Printf("request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pageParam(c *gin.Context, name string) int {
	page, err := strconv.Atoi(c.DefaultQuery(name, "1"))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func (h *Handler) pageCount(total int) int {
	size := h.cfg.PageSize
	if size <= 0 {
		size = 10
	}
	pages := (total + size - 1) / size
	if pages < 1 {
		pages = 1
	}
	return pages
}

// monthParam parses a "YYYY-MM" query value, falling back to now when the
// value is missing or malformed and fallback is true.
func monthParam(c *gin.Context, name string, fallback bool) (year, month int, str string) {
	str = c.Query(name)
	if t, err := time.Parse("2006-01", str); err == nil {
		return t.Year(), int(t.Month()), str
	}
	if !fallback {
		return 0, 0, ""
	}
	now := time.Now()
	return now.Year(), int(now.Month()), now.Format("2006-01")
}

func dateParam(c *gin.Context, name string) time.Time {
	if t, err := time.Parse("2006-01-02", c.Query(name)); err == nil {
		return t
	}
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func adminName(c *gin.Context) string {
	name, _ := c.Get(auth.ContextAdminKey)
	s, _ := name.(string)
	return s
}
