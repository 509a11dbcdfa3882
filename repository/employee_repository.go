package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/camden-git/faceattend/models"
)

var (
	// ErrEmployeeNotFound is returned when no employee or alias carries the given name
	ErrEmployeeNotFound = errors.New("employee not found")
	// ErrDuplicateAttendance is returned when a record for (employee, date) already exists
	ErrDuplicateAttendance = errors.New("attendance already recorded for this date")
	// ErrAttendanceNotFound is returned by GetAttendance when no row exists for (employee, date)
	ErrAttendanceNotFound = errors.New("attendance not found")
	// ErrDuplicateEmployee is returned when an employee or alias name is already taken
	ErrDuplicateEmployee = errors.New("employee name already exists")
)

// EmployeeRepository handles database operations for employees, their aliases and attendance
type EmployeeRepository struct {
	DB *gorm.DB
}

func NewEmployeeRepository(db *gorm.DB) *EmployeeRepository {
	return &EmployeeRepository{DB: db}
}

// FindEmployeeByName matches the exact employee name first, then an exact alias.
func (r *EmployeeRepository) FindEmployeeByName(ctx context.Context, name string) (*models.Employee, error) {
	var employee models.Employee
	err := r.DB.WithContext(ctx).Where("name = ?", name).First(&employee).Error
	if err == nil {
		return &employee, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up employee '%s': %w", name, err)
	}

	var alias models.Alias
	err = r.DB.WithContext(ctx).Where("name = ?", name).First(&alias).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: '%s'", ErrEmployeeNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up alias '%s': %w", name, err)
	}

	if err := r.DB.WithContext(ctx).First(&employee, alias.EmployeeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: alias '%s' points to missing employee %d", ErrEmployeeNotFound, name, alias.EmployeeID)
		}
		return nil, fmt.Errorf("failed to load employee %d for alias '%s': %w", alias.EmployeeID, name, err)
	}
	return &employee, nil
}

func (r *EmployeeRepository) SetPresent(ctx context.Context, employeeID uint) error {
	result := r.DB.WithContext(ctx).Model(&models.Employee{}).
		Where("id = ?", employeeID).
		Updates(map[string]interface{}{
			"status":     models.EmployeeStatusPresent,
			"updated_at": time.Now().Unix(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to mark employee %d present: %w", employeeID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", ErrEmployeeNotFound, employeeID)
	}
	return nil
}

// AppendAttendance inserts a record; the unique (employee_id, date) index turns a
// second insert for the same day into ErrDuplicateAttendance.
func (r *EmployeeRepository) AppendAttendance(ctx context.Context, record *models.AttendanceRecord) error {
	if record.CreatedAt == 0 {
		record.CreatedAt = time.Now().Unix()
	}
	err := r.DB.WithContext(ctx).Create(record).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: employee %d on %s", ErrDuplicateAttendance, record.EmployeeID, record.Date)
	}
	if err != nil {
		return fmt.Errorf("failed to append attendance for employee %d: %w", record.EmployeeID, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func (r *EmployeeRepository) HasAttendanceToday(ctx context.Context, employeeID uint, date string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&models.AttendanceRecord{}).
		Where("employee_id = ? AND date = ?", employeeID, date).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check attendance for employee %d on %s: %w", employeeID, date, err)
	}
	return count > 0, nil
}

func (r *EmployeeRepository) GetAttendance(ctx context.Context, employeeID uint, date string) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	err := r.DB.WithContext(ctx).
		Where("employee_id = ? AND date = ?", employeeID, date).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: employee %d on %s", ErrAttendanceNotFound, employeeID, date)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load attendance for employee %d on %s: %w", employeeID, date, err)
	}
	return &record, nil
}

func (r *EmployeeRepository) Create(ctx context.Context, employee *models.Employee) error {
	now := time.Now().Unix()
	if employee.CreatedAt == 0 {
		employee.CreatedAt = now
	}
	employee.UpdatedAt = now
	if employee.Status == "" {
		employee.Status = models.EmployeeStatusAbsent
	}
	err := r.DB.WithContext(ctx).Create(employee).Error
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateEmployee, employee.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to create employee %s: %w", employee.Name, err)
	}
	return nil
}

// Upsert creates the employee or updates the department of an existing one with the same name.
func (r *EmployeeRepository) Upsert(ctx context.Context, employee *models.Employee) (bool, error) {
	var existing models.Employee
	err := r.DB.WithContext(ctx).Where("name = ?", employee.Name).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true, r.Create(ctx, employee)
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up employee %s: %w", employee.Name, err)
	}

	existing.Department = employee.Department
	existing.UpdatedAt = time.Now().Unix()
	err = r.DB.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
		"department": existing.Department,
		"updated_at": existing.UpdatedAt,
	}).Error
	if err != nil {
		return false, fmt.Errorf("failed to update employee %s: %w", employee.Name, err)
	}
	*employee = existing
	return false, nil
}

func (r *EmployeeRepository) GetByID(ctx context.Context, id uint) (*models.Employee, error) {
	var employee models.Employee
	err := r.DB.WithContext(ctx).Preload("Aliases").First(&employee, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id %d", ErrEmployeeNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get employee by ID %d: %w", id, err)
	}
	return &employee, nil
}

// ListAll retrieves all employees ordered by id, preloading Aliases
func (r *EmployeeRepository) ListAll(ctx context.Context) ([]models.Employee, error) {
	var employees []models.Employee
	err := r.DB.WithContext(ctx).Preload("Aliases").Order("id ASC").Find(&employees).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	return employees, nil
}

func (r *EmployeeRepository) AddAlias(ctx context.Context, employeeID uint, alias string) error {
	a := models.Alias{EmployeeID: employeeID, Name: alias}
	err := r.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&a).Error
	if err != nil {
		return fmt.Errorf("failed to add alias '%s' for employee %d: %w", alias, employeeID, err)
	}
	return nil
}

func (r *EmployeeRepository) ListAttendanceByDate(ctx context.Context, date string) ([]models.AttendanceRecord, error) {
	var records []models.AttendanceRecord
	err := r.DB.WithContext(ctx).Where("date = ?", date).Order("time ASC, id ASC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance for %s: %w", date, err)
	}
	return records, nil
}

// ResetStatuses marks every employee absent, for the start of a new day.
func (r *EmployeeRepository) ResetStatuses(ctx context.Context) (int64, error) {
	result := r.DB.WithContext(ctx).Model(&models.Employee{}).
		Where("status <> ?", models.EmployeeStatusAbsent).
		Updates(map[string]interface{}{
			"status":     models.EmployeeStatusAbsent,
			"updated_at": time.Now().Unix(),
		})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset employee statuses: %w", result.Error)
	}
	return result.RowsAffected, nil
}
