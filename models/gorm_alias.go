package models

// Alias maps an additional recognized name (for example the gallery directory
// name) onto an employee. It corresponds to the 'aliases' table.
type Alias struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	EmployeeID uint   `gorm:"not null;index" json:"employee_id"`
	Name       string `gorm:"not null;uniqueIndex" json:"name"`
}

// TableName explicitly sets the table name for GORM.
func (Alias) TableName() string {
	return "aliases"
}
