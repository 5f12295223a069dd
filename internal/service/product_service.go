package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/product-catalog/internal/domain"
	"github.com/spec-kit/product-catalog/internal/events"
	"github.com/spec-kit/product-catalog/internal/repository"
	apperrors "github.com/spec-kit/product-catalog/pkg/util"
)

// ProductCreateInput carries fields for a new product.
type ProductCreateInput struct {
	Name        string
	Description string
	Price       float64
	Quantity    int
}

// ProductService owns product lifecycle rules on top of the repository.
type ProductService struct {
	products   repository.ProductRepository
	dispatcher events.Dispatcher
}

// NewProductService builds the service.
func NewProductService(products repository.ProductRepository, dispatcher events.Dispatcher) *ProductService {
	return &ProductService{products: products, dispatcher: dispatcher}
}

// Create validates input and persists a new product.
func (s *ProductService) Create(ctx context.Context, actor *domain.User, input ProductCreateInput) (*domain.Product, error) {
	if details := validateProductFields(input.Name, input.Price, input.Quantity); len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid product", details)
	}

	product := &domain.Product{
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		Quantity:    input.Quantity,
	}
	if actor != nil {
		createdBy := actor.ID
		product.CreatedBy = &createdBy
	}
	if err := s.products.Create(ctx, product); err != nil {
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventProductCreated,
		ProductID: product.ID,
		Actor:     actorOf(actor),
		Timestamp: time.Now(),
		Payload: events.ProductCreatedPayload{
			Name:     product.Name,
			Price:    product.Price,
			Quantity: product.Quantity,
		},
	})
	return product, nil
}

// Get fetches a single product.
func (s *ProductService) Get(ctx context.Context, id string) (*domain.Product, error) {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("product", map[string]any{"id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return product, nil
}

// List returns a snapshot page of products plus the total count.
func (s *ProductService) List(ctx context.Context, filter repository.ProductFilter) ([]domain.Product, int64, error) {
	products, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	total, err := s.products.Count(ctx)
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	return products, total, nil
}

// Update applies a partial patch; fields absent from the patch are unchanged.
func (s *ProductService) Update(ctx context.Context, actor *domain.User, id string, patch domain.ProductPatch) (*domain.Product, error) {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("product", map[string]any{"id": id})
		}
		return nil, apperrors.MapError(err)
	}

	changed := applyPatch(product, patch)
	if len(changed) == 0 {
		return product, nil
	}

	if details := validateProductFields(product.Name, product.Price, product.Quantity); len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid product", details)
	}

	if err := s.products.Update(ctx, product); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("product", map[string]any{"id": id})
		}
		return nil, apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventProductUpdated,
		ProductID: product.ID,
		Actor:     actorOf(actor),
		Timestamp: time.Now(),
		Payload:   events.ProductUpdatedPayload{ChangedFields: changed},
	})
	return product, nil
}

// Delete removes a product by id.
func (s *ProductService) Delete(ctx context.Context, actor *domain.User, id string) error {
	product, err := s.products.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("product", map[string]any{"id": id})
		}
		return apperrors.MapError(err)
	}

	if err := s.products.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("product", map[string]any{"id": id})
		}
		return apperrors.MapError(err)
	}

	s.publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventProductDeleted,
		ProductID: id,
		Actor:     actorOf(actor),
		Timestamp: time.Now(),
		Payload:   events.ProductDeletedPayload{Name: product.Name},
	})
	return nil
}

func applyPatch(product *domain.Product, patch domain.ProductPatch) []string {
	changed := make([]string, 0, 4)
	if patch.Name != nil && *patch.Name != product.Name {
		product.Name = *patch.Name
		changed = append(changed, "name")
	}
	if patch.Description != nil && *patch.Description != product.Description {
		product.Description = *patch.Description
		changed = append(changed, "description")
	}
	if patch.Price != nil && *patch.Price != product.Price {
		product.Price = *patch.Price
		changed = append(changed, "price")
	}
	if patch.Quantity != nil && *patch.Quantity != product.Quantity {
		product.Quantity = *patch.Quantity
		changed = append(changed, "quantity")
	}
	return changed
}

func validateProductFields(name string, price float64, quantity int) map[string]any {
	details := map[string]any{}
	if name == "" {
		details["name"] = "must not be empty"
	}
	if price < 0 {
		details["price"] = "must not be negative"
	}
	if quantity < 0 {
		details["quantity"] = "must not be negative"
	}
	return details
}

func actorOf(user *domain.User) events.Actor {
	if user == nil {
		return events.Actor{}
	}
	return events.Actor{Username: user.Username, Role: user.Role}
}

func (s *ProductService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}
