package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Dashboard aggregates today's activity, the checked-in list, recent logs
// and the per-department and yearly stats.
func (h *Handler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	currentYear := now.Year()
	selectedYear := currentYear
	if v := c.Query("year"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			selectedYear = parsed
		}
	}
	yearOptions := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		yearOptions = append(yearOptions, currentYear+i)
	}

	search := strings.TrimSpace(c.Query("activity_search"))
	actYear, actMonth, monthStr := monthParam(c, "activity_month", true)

	todayCount, err := h.reports.DayLogCount(ctx, today)
	if err != nil {
		renderError(c, err)
		return
	}
	totalStudents, err := h.roster.ActiveCount(ctx)
	if err != nil {
		renderError(c, err)
		return
	}

	checkedInPage := pageParam(c, "page_checked_in")
	checkedIn, checkedInTotal, err := h.reports.CheckedInStudents(ctx,
		h.cfg.PageSize, (checkedInPage-1)*h.cfg.PageSize)
	if err != nil {
		renderError(c, err)
		return
	}

	logsPage := pageParam(c, "page_logs")
	logs, logsTotal, err := h.reports.RecentLogs(ctx, actYear, actMonth, search,
		h.cfg.PageSize, (logsPage-1)*h.cfg.PageSize)
	if err != nil {
		renderError(c, err)
		return
	}

	deptStats, err := h.reports.DepartmentStats(ctx, today)
	if err != nil {
		renderError(c, err)
		return
	}
	yearlyCheckins, err := h.reports.YearlyDistinct(ctx, selectedYear)
	if err != nil {
		renderError(c, err)
		return
	}

	resp := gin.H{
		"today_count":         todayCount,
		"total_students":      totalStudents,
		"checked_in_students": checkedIn,
		"checked_in_page":     checkedInPage,
		"checked_in_pages":    h.pageCount(checkedInTotal),
		"recent_logs":         logs,
		"logs_page":           logsPage,
		"logs_pages":          h.pageCount(logsTotal),
		"department_stats":    deptStats,
		"yearly_check_ins":    yearlyCheckins,
		"current_year":        currentYear,
		"selected_year":       selectedYear,
		"year_options":        yearOptions,
		"activity_month":      monthStr,
		"activity_search":     search,
	}
	if search != "" {
		activityCount, err := h.reports.ActivityCount(ctx, actYear, actMonth, search)
		if err != nil {
			renderError(c, err)
			return
		}
		resp["activity_login_count"] = activityCount
	}
	c.JSON(http.StatusOK, resp)
}

// DailyReport shows per-student check-in/out times for one date, the
// department breakdown and the latest monthly and weekly summaries.
func (h *Handler) DailyReport(c *gin.Context) {
	ctx := c.Request.Context()
	date := dateParam(c, "date")
	page := pageParam(c, "page")

	rows, total, err := h.reports.DailyAttendance(ctx, date, h.cfg.PageSize, (page-1)*h.cfg.PageSize)
	if err != nil {
		renderError(c, err)
		return
	}
	present, err := h.reports.PresentCount(ctx, date)
	if err != nil {
		renderError(c, err)
		return
	}
	totalStudents, err := h.roster.ActiveCount(ctx)
	if err != nil {
		renderError(c, err)
		return
	}
	deptStats, err := h.reports.DepartmentStats(ctx, date)
	if err != nil {
		renderError(c, err)
		return
	}
	monthly, err := h.reports.LatestMonthBucket(ctx)
	if err != nil {
		renderError(c, err)
		return
	}
	weekly, err := h.reports.LatestWeekBucket(ctx)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"selected_date":      date.Format("2006-01-02"),
		"student_attendance": rows,
		"page":               page,
		"total_pages":        h.pageCount(total),
		"present_students":   present,
		"total_students":     totalStudents,
		"department_stats":   deptStats,
		"monthly_summary":    monthly,
		"weekly_summary":     weekly,
	})
}

// MonthlyReport pages through monthly distinct-student check-in buckets,
// optionally narrowed to one department, with a total for a selected month.
func (h *Handler) MonthlyReport(c *gin.Context) {
	ctx := c.Request.Context()
	page := pageParam(c, "page")
	departmentID := c.Query("department")
	year, month, monthStr := monthParam(c, "month", true)

	buckets, total, err := h.reports.MonthlyBuckets(ctx, departmentID,
		h.cfg.PageSize, (page-1)*h.cfg.PageSize)
	if err != nil {
		renderError(c, err)
		return
	}
	monthTotal, err := h.reports.MonthTotal(ctx, year, month, departmentID)
	if err != nil {
		renderError(c, err)
		return
	}
	departments, err := h.roster.Departments(ctx)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"monthly":              buckets,
		"page":                 page,
		"total_pages":          h.pageCount(total),
		"departments":          departments,
		"selected_department":  departmentID,
		"selected_month":       monthStr,
		"selected_month_total": monthTotal,
	})
}

// WeeklyReport pages through weekly distinct-student check-in buckets,
// optionally narrowed to one calendar month.
func (h *Handler) WeeklyReport(c *gin.Context) {
	ctx := c.Request.Context()
	page := pageParam(c, "page")
	year, month, monthStr := monthParam(c, "month", false)

	buckets, total, err := h.reports.WeeklyBuckets(ctx, year, month,
		h.cfg.PageSize, (page-1)*h.cfg.PageSize)
	if err != nil {
		renderError(c, err)
		return
	}
	options, err := h.reports.MonthOptions(ctx)
	if err != nil {
		renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"weekly":         buckets,
		"page":           page,
		"total_pages":    h.pageCount(total),
		"month_options":  options,
		"selected_month": monthStr,
	})
}
