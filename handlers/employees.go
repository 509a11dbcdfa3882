package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/faceattend/models"
	"github.com/camden-git/faceattend/repository"
)

type EmployeeHandler struct {
	Repo repository.EmployeeRepositoryInterface
}

type createEmployeeRequest struct {
	Name       string `json:"name"`
	Department string `json:"department"`
}

type addAliasRequest struct {
	Alias string `json:"alias"`
}

func (h *EmployeeHandler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Repo.ListAll(r.Context())
	if err != nil {
		log.Printf("Error listing employees: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to list employees")
		return
	}
	if employees == nil {
		employees = []models.Employee{}
	}
	writeJSON(w, http.StatusOK, employees)
}

func (h *EmployeeHandler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req createEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidName, "name is required")
		return
	}

	employee := &models.Employee{Name: req.Name, Department: strings.TrimSpace(req.Department)}
	if err := h.Repo.Create(r.Context(), employee); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmployee) {
			WriteAPIError(w, http.StatusConflict, CodeConflict, "an employee with this name already exists")
			return
		}
		log.Printf("Error creating employee %s: %v", req.Name, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to create employee")
		return
	}
	writeJSON(w, http.StatusCreated, employee)
}

func (h *EmployeeHandler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}
	employee, err := h.Repo.GetByID(r.Context(), id)
	if errors.Is(err, repository.ErrEmployeeNotFound) {
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, "employee not found")
		return
	}
	if err != nil {
		log.Printf("Error getting employee %d: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to get employee")
		return
	}
	writeJSON(w, http.StatusOK, employee)
}

// AddAlias registers another name under which the gallery may know the employee.
func (h *EmployeeHandler) AddAlias(w http.ResponseWriter, r *http.Request) {
	id, ok := employeeID(w, r)
	if !ok {
		return
	}
	var req addAliasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON body")
		return
	}
	req.Alias = strings.TrimSpace(req.Alias)
	if req.Alias == "" {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidName, "alias is required")
		return
	}

	if _, err := h.Repo.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrEmployeeNotFound) {
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "employee not found")
			return
		}
		log.Printf("Error getting employee %d: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to get employee")
		return
	}
	if err := h.Repo.AddAlias(r.Context(), id, req.Alias); err != nil {
		log.Printf("Error adding alias %s for employee %d: %v", req.Alias, id, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to add alias")
		return
	}

	employee, err := h.Repo.GetByID(r.Context(), id)
	if err != nil {
		log.Printf("Error reloading employee %d: %v", id, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to get employee")
		return
	}
	writeJSON(w, http.StatusCreated, employee)
}

func employeeID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "employee_id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid employee ID")
		return 0, false
	}
	return uint(id), true
}
