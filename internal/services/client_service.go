package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/invoicereminder/internal/models"
)

// ClientService manages the clients invoices are addressed to.
type ClientService struct {
	db *gorm.DB
}

// NewClientService constructs a ClientService.
func NewClientService(db *gorm.DB) (*ClientService, error) {
	if db == nil {
		return nil, errors.New("client service: db is required")
	}
	return &ClientService{db: db}, nil
}

// FindOrCreate returns the owner's client with the given email, creating it when absent.
// The name defaults to the email address.
func (s *ClientService) FindOrCreate(ctx context.Context, userID, name, email string) (*models.Client, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	email = normaliseEmail(email)
	if userID == "" {
		return nil, errors.New("client service: user id is required")
	}
	if email == "" {
		return nil, errors.New("client service: email is required")
	}

	client, err := s.findByEmail(ctx, userID, email)
	if err == nil {
		return client, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("client service: find client: %w", err)
	}

	created := models.Client{
		UserID: userID,
		Name:   defaultIfEmpty(strings.TrimSpace(name), email),
		Email:  email,
	}
	if err := s.db.WithContext(ctx).Create(&created).Error; err != nil {
		if isUniqueConstraintError(err) {
			if existing, findErr := s.findByEmail(ctx, userID, email); findErr == nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("client service: create client: %w", err)
	}
	return &created, nil
}

// List returns the owner's clients ordered by name.
func (s *ClientService) List(ctx context.Context, userID string) ([]models.Client, error) {
	ctx = ensureContext(ctx)

	var clients []models.Client
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("name ASC").
		Find(&clients).Error; err != nil {
		return nil, fmt.Errorf("client service: list clients: %w", err)
	}
	return clients, nil
}

func (s *ClientService) findByEmail(ctx context.Context, userID, email string) (*models.Client, error) {
	var client models.Client
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND email = ?", userID, email).
		First(&client).Error; err != nil {
		return nil, err
	}
	return &client, nil
}
