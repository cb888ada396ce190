package service

import (
	"context"
	"io"
	"strings"

	"kwetu-store/internal/apperr"
	"kwetu-store/internal/auth"
	"kwetu-store/internal/models"
	"kwetu-store/internal/store"
	"kwetu-store/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogService handles product browsing, admin product maintenance and comments.
type CatalogService struct {
	repo   CatalogRepository
	images ImageStorage
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(repo CatalogRepository, images ImageStorage) *CatalogService {
	return &CatalogService{
		repo:   repo,
		images: images,
		logger: util.Component("catalog"),
	}
}

// ProductInput holds the editable fields of a product.
type ProductInput struct {
	Name          string
	Description   string
	Price         decimal.Decimal
	WeightKg      decimal.Decimal
	StockQuantity int
	Category      string
	YoutubeLink   string
}

// ImageUpload is an optional image attached to a product form.
type ImageUpload struct {
	Filename string
	Reader   io.Reader
}

// ListProducts lists the catalog. Category "all" or "" disables the category filter.
func (s *CatalogService) ListProducts(ctx context.Context, category, search string) ([]models.Product, error) {
	if category == "all" {
		category = ""
	}
	if category != "" && !models.ValidCategory(category) {
		return nil, apperr.Validation("Unknown category: " + category)
	}

	products, err := s.repo.ListProducts(ctx, store.ProductFilter{Category: category, Search: search})
	if err != nil {
		return nil, storeError(err, "products")
	}
	return products, nil
}

// GetProduct returns one product.
func (s *CatalogService) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	p, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "product")
	}
	return p, nil
}

// CreateProduct adds a product, storing its image first when one is given.
func (s *CatalogService) CreateProduct(ctx context.Context, capability auth.AdminCapability, in ProductInput, img *ImageUpload) (*models.Product, error) {
	if err := requireAdmin(capability); err != nil {
		return nil, err
	}
	if err := validateProduct(in); err != nil {
		return nil, err
	}

	p := &models.Product{}
	applyProductInput(p, in)

	if img != nil {
		url, err := s.storeImage(img)
		if err != nil {
			return nil, err
		}
		p.ImageURL = &url
	}

	if err := s.repo.CreateProduct(ctx, p); err != nil {
		s.discardImage(p.ImageURL)
		return nil, storeError(err, "product")
	}

	s.logger.Info("Product created", zap.String("product_id", p.ID), zap.String("admin_id", capability.UserID()))
	return p, nil
}

// UpdateProduct overwrites a product's fields. Without a new image the current one is kept.
func (s *CatalogService) UpdateProduct(ctx context.Context, capability auth.AdminCapability, id string, in ProductInput, img *ImageUpload) (*models.Product, error) {
	if err := requireAdmin(capability); err != nil {
		return nil, err
	}
	if err := validateProduct(in); err != nil {
		return nil, err
	}

	p, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return nil, storeError(err, "product")
	}
	previousImage := p.ImageURL
	applyProductInput(p, in)

	if img != nil {
		url, err := s.storeImage(img)
		if err != nil {
			return nil, err
		}
		p.ImageURL = &url
	}

	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		if img != nil {
			s.discardImage(p.ImageURL)
		}
		return nil, storeError(err, "product")
	}
	if img != nil {
		s.discardImage(previousImage)
	}

	s.logger.Info("Product updated", zap.String("product_id", p.ID), zap.String("admin_id", capability.UserID()))
	return p, nil
}

// DeleteProduct removes a product and its stored image.
func (s *CatalogService) DeleteProduct(ctx context.Context, capability auth.AdminCapability, id string) error {
	if err := requireAdmin(capability); err != nil {
		return err
	}

	p, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return storeError(err, "product")
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return storeError(err, "product")
	}
	s.discardImage(p.ImageURL)

	s.logger.Info("Product deleted", zap.String("product_id", id), zap.String("admin_id", capability.UserID()))
	return nil
}

// ListComments returns a product's comments.
func (s *CatalogService) ListComments(ctx context.Context, productID string) ([]models.ProductComment, error) {
	comments, err := s.repo.ListComments(ctx, productID)
	if err != nil {
		return nil, storeError(err, "product")
	}
	return comments, nil
}

// AddComment posts a comment as the session user.
func (s *CatalogService) AddComment(ctx context.Context, sess auth.Session, productID, text string) (*models.ProductComment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("Comment cannot be empty")
	}

	c := &models.ProductComment{ProductID: productID, UserID: sess.UserID, Comment: text}
	if err := s.repo.CreateComment(ctx, c); err != nil {
		return nil, storeError(err, "product")
	}
	return c, nil
}

func (s *CatalogService) storeImage(img *ImageUpload) (string, error) {
	key, err := s.images.Upload(img.Reader, img.Filename)
	if err != nil {
		return "", apperr.Wrap(apperr.KindValidation, apperr.CodeInvalidInput, "Could not process image", err)
	}
	return s.images.PublicURL(key), nil
}

func (s *CatalogService) discardImage(url *string) {
	if url == nil {
		return
	}
	key, ok := s.images.KeyFromURL(*url)
	if !ok {
		return
	}
	if err := s.images.Delete(key); err != nil {
		s.logger.Warn("Failed to delete product image", zap.String("key", key), zap.Error(err))
	}
}

func validateProduct(in ProductInput) error {
	switch {
	case strings.TrimSpace(in.Name) == "":
		return apperr.Validation("Product name is required")
	case in.Price.IsNegative():
		return apperr.Validation("Price cannot be negative")
	case in.WeightKg.IsNegative():
		return apperr.Validation("Weight cannot be negative")
	case in.StockQuantity < 0:
		return apperr.Validation("Stock quantity cannot be negative")
	case in.Category != "" && !models.ValidCategory(in.Category):
		return apperr.Validation("Unknown category: " + in.Category)
	}
	return nil
}

func applyProductInput(p *models.Product, in ProductInput) {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = optional(in.Description)
	p.Price = in.Price.Round(2)
	p.WeightKg = in.WeightKg
	p.StockQuantity = in.StockQuantity
	p.Category = optional(in.Category)
	p.YoutubeLink = optional(in.YoutubeLink)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
