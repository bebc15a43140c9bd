package models

// Client is a billed party. Clients are scoped to their owner and unique per email.
type Client struct {
	BaseModel

	UserID string `gorm:"type:varchar(64);not null;uniqueIndex:idx_clients_user_email" json:"user_id"`
	Name   string `gorm:"type:varchar(255);not null" json:"name"`
	Email  string `gorm:"type:varchar(255);not null;uniqueIndex:idx_clients_user_email" json:"email"`
}
