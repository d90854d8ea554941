// Package seed loads a small demo dataset so a fresh development install can
// exercise every scan without wiring a billing provider first.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/moneyradar/moneyradar/internal/catalog/domain"
	revenuedomain "github.com/moneyradar/moneyradar/internal/revenue/domain"
	subscriptiondomain "github.com/moneyradar/moneyradar/internal/subscription/domain"
	usagedomain "github.com/moneyradar/moneyradar/internal/usage/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const demoProductName = "MoneyRadar Demo"

// EnsureDemoData seeds a product, three plan tiers and a handful of
// subscriptions whose usage patterns trip each detector. It is a no-op when
// the demo product already exists.
func EnsureDemoData(db *gorm.DB, now time.Time) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing catalogdomain.Product
		err := tx.Where("name = ?", demoProductName).First(&existing).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		product := catalogdomain.Product{
			ID:          node.Generate(),
			Name:        demoProductName,
			Description: "Demo catalog for local development",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(&product).Error; err != nil {
			return err
		}

		tiers := []struct {
			name  string
			price float64
			calls float64
			seats float64
		}{
			{"Starter", 29, 1000, 3},
			{"Pro", 99, 10000, 10},
			{"Scale", 299, 100000, 50},
		}
		plans := make([]catalogdomain.Plan, 0, len(tiers))
		for _, tier := range tiers {
			plans = append(plans, catalogdomain.Plan{
				ID:            node.Generate(),
				ProductID:     product.ID,
				Name:          tier.name,
				Version:       1,
				PriceMonthly:  tier.price,
				Currency:      "USD",
				Limits:        datatypes.JSONMap{"api_calls": tier.calls, "seats": tier.seats},
				EffectiveFrom: now.AddDate(-1, 0, 0),
				IsActive:      true,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
		}
		if err := tx.Create(&plans).Error; err != nil {
			return err
		}

		starter, pro := plans[0], plans[1]

		// demo_heavy maxes out Starter: the mismatch scan flags it.
		// demo_fading halves its usage: the risk scan flags it.
		// demo_light barely touches Pro: flagged as overpriced.
		demos := []struct {
			customer string
			plan     catalogdomain.Plan
			created  time.Time
			usage    []float64
		}{
			{"demo_heavy", starter, now.AddDate(-1, -2, 0), []float64{850, 900, 930, 950}},
			{"demo_fading", pro, now.AddDate(0, -8, 0), []float64{4000, 4000, 1500, 1500}},
			{"demo_light", pro, now.AddDate(0, -2, 0), []float64{300, 350, 320, 340}},
		}

		for _, demo := range demos {
			sub := subscriptiondomain.Subscription{
				ID:                 node.Generate(),
				CustomerID:         demo.customer,
				PlanID:             demo.plan.ID,
				Status:             subscriptiondomain.SubscriptionStatusActive,
				CurrentPeriodStart: now.AddDate(0, 0, -15),
				CurrentPeriodEnd:   now.AddDate(0, 0, 15),
				MRR:                demo.plan.PriceMonthly,
				CreatedAt:          demo.created,
				UpdatedAt:          now,
			}
			if err := tx.Create(&sub).Error; err != nil {
				return err
			}

			created := revenuedomain.RevenueEvent{
				ID:             node.Generate(),
				SubscriptionID: &sub.ID,
				EventType:      revenuedomain.EventSubscriptionCreated,
				Currency:       "USD",
				MRRDelta:       sub.MRR,
				OccurredAt:     demo.created,
				ProcessedAt:    demo.created,
			}
			if err := tx.Create(&created).Error; err != nil {
				return err
			}

			limit, _ := demo.plan.LimitFor("api_calls")
			for i, quantity := range demo.usage {
				record := usagedomain.UsageRecord{
					ID:             node.Generate(),
					SubscriptionID: sub.ID,
					MetricName:     "api_calls",
					Quantity:       quantity,
					Limit:          &limit,
					PeriodStart:    sub.CurrentPeriodStart,
					PeriodEnd:      sub.CurrentPeriodEnd,
					RecordedAt:     now.AddDate(0, 0, -20+i*5),
				}
				if err := tx.Create(&record).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}
