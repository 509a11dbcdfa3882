package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/camden-git/faceattend/models"
)

// AttendanceReader is the read side of the employee directory used by the dashboard.
type AttendanceReader interface {
	ListAll(ctx context.Context) ([]models.Employee, error)
	ListAttendanceByDate(ctx context.Context, date string) ([]models.AttendanceRecord, error)
}

type DashboardTotals struct {
	Total   int `json:"total"`
	Present int `json:"present"`
	Absent  int `json:"absent"`
}

type DashboardResponse struct {
	Date       string                    `json:"date"`
	Employees  []models.Employee         `json:"employees"`
	Attendance []models.AttendanceRecord `json:"attendance"`
	Totals     DashboardTotals           `json:"totals"`
}

type DashboardHandler struct {
	Directory AttendanceReader
	Location  *time.Location // nil means time.Local
	Now       func() time.Time
}

func (h *DashboardHandler) today() string {
	now := time.Now
	if h.Now != nil {
		now = h.Now
	}
	loc := h.Location
	if loc == nil {
		loc = time.Local
	}
	return now().In(loc).Format(models.DateLayout)
}

// DashboardData serves GET /api/dashboard-data?date=YYYY-MM-DD; the date defaults to today.
func (h *DashboardHandler) DashboardData(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.today()
	} else if _, err := time.Parse(models.DateLayout, date); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "date must be formatted as YYYY-MM-DD")
		return
	}

	employees, err := h.Directory.ListAll(r.Context())
	if err != nil {
		log.Printf("Error listing employees for dashboard: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to load employees")
		return
	}
	records, err := h.Directory.ListAttendanceByDate(r.Context(), date)
	if err != nil {
		log.Printf("Error listing attendance for %s: %v", date, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to load attendance")
		return
	}

	present := make(map[uint]struct{}, len(records))
	for _, rec := range records {
		present[rec.EmployeeID] = struct{}{}
	}
	if employees == nil {
		employees = []models.Employee{}
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}

	writeJSON(w, http.StatusOK, DashboardResponse{
		Date:       date,
		Employees:  employees,
		Attendance: records,
		Totals: DashboardTotals{
			Total:   len(employees),
			Present: len(present),
			Absent:  max(0, len(employees)-len(present)),
		},
	})
}
