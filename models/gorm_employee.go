package models

const (
	EmployeeStatusPresent = "Yes"
	EmployeeStatusAbsent  = "No"
)

// Employee is a row of the employee directory.
// It corresponds to the 'employees' table.
type Employee struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name       string `gorm:"not null;uniqueIndex" json:"name"`
	Department string `json:"department"`
	Status     string `json:"status"`                     // "Yes" once attendance is recorded, reset to "No" by ResetStatuses
	CreatedAt  int64  `gorm:"not null" json:"created_at"` // Unix timestamp
	UpdatedAt  int64  `gorm:"not null" json:"updated_at"` // Unix timestamp

	Aliases []Alias `gorm:"foreignKey:EmployeeID;constraint:OnDelete:CASCADE" json:"aliases,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Employee) TableName() string {
	return "employees"
}
