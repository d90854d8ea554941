package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateProductRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CreatePlanRequest struct {
	ProductID    string         `json:"product_id"`
	Name         string         `json:"name"`
	PriceMonthly float64        `json:"price_monthly"`
	PriceAnnual  *float64       `json:"price_annual"`
	Currency     string         `json:"currency"`
	Limits       map[string]any `json:"limits"`
}

type Service interface {
	CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error)
	CreatePlan(ctx context.Context, req CreatePlanRequest) (*Plan, error)
	GetPlan(ctx context.Context, id snowflake.ID) (*Plan, error)
	ListActivePlans(ctx context.Context) ([]*Plan, error)
	// NextTier returns the cheapest active plan for the same product priced
	// strictly above the given plan, or nil when no higher tier exists.
	NextTier(ctx context.Context, current *Plan) (*Plan, error)
}

var (
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidProduct = errors.New("invalid_product")
	ErrInvalidPrice   = errors.New("invalid_price")
	ErrPlanNotFound   = errors.New("plan_not_found")
)
