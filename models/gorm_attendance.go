package models

// AttendanceRecord is one check-in of an employee on one local calendar day.
// the (employee_id, date) pair is unique.
type AttendanceRecord struct {
	ID           uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	EmployeeID   uint   `gorm:"not null;uniqueIndex:idx_attendance_employee_date" json:"employee_id"`
	Date         string `gorm:"not null;uniqueIndex:idx_attendance_employee_date;index" json:"date"` // YYYY-MM-DD
	Time         string `gorm:"not null" json:"time"`                                                // HH:MM:SS
	EmployeeName string `gorm:"not null" json:"name"`
	CreatedAt    int64  `gorm:"not null" json:"created_at"`

	Employee *Employee `gorm:"foreignKey:EmployeeID" json:"-"`
}

// TableName explicitly sets the table name for GORM.
func (AttendanceRecord) TableName() string {
	return "attendance"
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)
