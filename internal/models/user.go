package models

// User is the invoice owner. It doubles as the sender identity on outgoing reminders.
type User struct {
	BaseModel

	Name  string `gorm:"type:varchar(255)" json:"name"`
	Email string `gorm:"type:varchar(255);index" json:"email"`
}
