package repository

import (
	"context"
	"errors"

	"github.com/moneyradar/moneyradar/internal/score/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, score *domain.CustomerScore) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "customer_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"subscription_id",
			"expansion_score",
			"category",
			"tenure_days",
			"usage_trend",
			"engagement_score",
			"calculated_at",
		}),
	}).Create(score).Error
}

func (r *repo) FindByCustomerID(ctx context.Context, db *gorm.DB, customerID string) (*domain.CustomerScore, error) {
	var score domain.CustomerScore
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		First(&score).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &score, nil
}

func (r *repo) ListByCategory(ctx context.Context, db *gorm.DB, category domain.ExpansionCategory) ([]*domain.CustomerScore, error) {
	var scores []*domain.CustomerScore
	stmt := db.WithContext(ctx).Model(&domain.CustomerScore{})
	if category != "" {
		stmt = stmt.Where("category = ?", category)
	}
	err := stmt.Order("expansion_score desc").Find(&scores).Error
	if err != nil {
		return nil, err
	}
	return scores, nil
}
