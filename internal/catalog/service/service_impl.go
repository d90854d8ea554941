package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/moneyradar/moneyradar/internal/catalog/domain"
	"github.com/moneyradar/moneyradar/pkg/db/option"
	"github.com/moneyradar/moneyradar/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	products repository.Repository[domain.Product]
	plans    repository.Repository[domain.Plan]
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("catalog.service"),
		genID: p.GenID,

		products: repository.ProvideStore[domain.Product](p.DB),
		plans:    repository.ProvideStore[domain.Plan](p.DB),
	}
}

func (s *Service) CreateProduct(ctx context.Context, req domain.CreateProductRequest) (*domain.Product, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := time.Now().UTC()
	product := domain.Product{
		ID:          s.genID.Generate(),
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.products.Create(ctx, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (s *Service) CreatePlan(ctx context.Context, req domain.CreatePlanRequest) (*domain.Plan, error) {
	productID, err := snowflake.ParseString(strings.TrimSpace(req.ProductID))
	if err != nil {
		return nil, domain.ErrInvalidProduct
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	if req.PriceMonthly < 0 {
		return nil, domain.ErrInvalidPrice
	}

	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}

	now := time.Now().UTC()
	plan := domain.Plan{
		ID:            s.genID.Generate(),
		ProductID:     productID,
		Name:          name,
		Version:       1,
		PriceMonthly:  req.PriceMonthly,
		PriceAnnual:   req.PriceAnnual,
		Currency:      currency,
		Limits:        datatypes.JSONMap(req.Limits),
		EffectiveFrom: now,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.plans.Create(ctx, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *Service) GetPlan(ctx context.Context, id snowflake.ID) (*domain.Plan, error) {
	plan, err := s.plans.FindOne(ctx, &domain.Plan{ID: id})
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, domain.ErrPlanNotFound
	}
	return plan, nil
}

func (s *Service) ListActivePlans(ctx context.Context) ([]*domain.Plan, error) {
	return s.plans.Find(ctx, &domain.Plan{IsActive: true})
}

func (s *Service) NextTier(ctx context.Context, current *domain.Plan) (*domain.Plan, error) {
	if current == nil {
		return nil, domain.ErrPlanNotFound
	}
	return s.plans.FindOne(ctx, &domain.Plan{ProductID: current.ProductID, IsActive: true},
		option.ApplyOperator(option.Condition{
			Field:    "price_monthly",
			Operator: option.GT,
			Value:    current.PriceMonthly,
		}),
		option.WithSortBy(option.WithQuerySortBy("price_monthly", "asc", map[string]bool{"price_monthly": true})),
	)
}
