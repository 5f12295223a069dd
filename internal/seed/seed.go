package seed

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/product-catalog/internal/auth"
	"github.com/spec-kit/product-catalog/internal/config"
	"github.com/spec-kit/product-catalog/internal/domain"
	"github.com/spec-kit/product-catalog/internal/repository"
)

var defaultProducts = []domain.Product{
	{Name: "Laptop", Description: "14-inch developer laptop", Price: 1299.00, Quantity: 12},
	{Name: "Mechanical Keyboard", Description: "Tenkeyless, brown switches", Price: 89.50, Quantity: 40},
	{Name: "USB-C Dock", Description: "Dual display, 100W passthrough", Price: 149.99, Quantity: 25},
	{Name: "Monitor", Description: "27-inch 1440p IPS", Price: 329.00, Quantity: 18},
}

// Run creates the bootstrap admin account and default catalog entries when
// the corresponding tables are empty. It is a no-op unless enabled.
func Run(ctx context.Context, cfg config.SeedConfig, users repository.UserRepository, products repository.ProductRepository, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}

	adminID, err := seedAdmin(ctx, cfg, users, logger)
	if err != nil {
		return err
	}
	return seedProducts(ctx, products, adminID, logger)
}

func seedAdmin(ctx context.Context, cfg config.SeedConfig, users repository.UserRepository, logger *zap.Logger) (*string, error) {
	count, err := users.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, nil
	}
	if cfg.AdminPassword == "" {
		logger.Warn("seed enabled but SEED_ADMIN_PASSWORD empty; skipping admin bootstrap")
		return nil, nil
	}

	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return nil, err
	}
	admin := &domain.User{
		Username:     cfg.AdminUsername,
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		Role:         domain.RoleAdmin,
		Active:       true,
	}
	if err := users.Create(ctx, admin); err != nil {
		return nil, err
	}
	logger.Info("seeded admin account", zap.String("username", admin.Username))
	return &admin.ID, nil
}

func seedProducts(ctx context.Context, products repository.ProductRepository, createdBy *string, logger *zap.Logger) error {
	count, err := products.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	for i := range defaultProducts {
		product := defaultProducts[i]
		product.CreatedBy = createdBy
		if err := products.Create(ctx, &product); err != nil {
			return err
		}
	}
	logger.Info("seeded default products", zap.Int("count", len(defaultProducts)))
	return nil
}
