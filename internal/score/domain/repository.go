package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// Upsert writes the score keyed by customer_id, replacing the existing
	// row's fields in place when one exists.
	Upsert(ctx context.Context, db *gorm.DB, score *CustomerScore) error
	FindByCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*CustomerScore, error)
	ListByCategory(ctx context.Context, db *gorm.DB, category ExpansionCategory) ([]*CustomerScore, error)
}
