package api

import (
	"errors"
	"fmt"
	"net/http"

	"kwetu-store/internal/apperr"
	"kwetu-store/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func (h *Handler) dashboard(c *gin.Context) {
	stats, err := h.svc.Dashboard.Stats(c.Request.Context(), adminCapability(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) streamNotices(c *gin.Context) {
	w := &sseWriter{c: c}
	err := h.svc.Dashboard.StreamNotices(c.Request.Context(), adminCapability(c), func(n service.AdminNotice) error {
		return w.send(n.Kind, n)
	})
	w.finish(h, err)
}

func (h *Handler) adminListProducts(c *gin.Context) {
	products, err := h.svc.Catalog.ListProducts(c.Request.Context(), c.Query("category"), c.Query("search"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// productForm is the multipart body of product create and update.
type productForm struct {
	Name          string `form:"name" binding:"required"`
	Description   string `form:"description"`
	Price         string `form:"price" binding:"required"`
	WeightKg      string `form:"weight_kg" binding:"required"`
	StockQuantity int    `form:"stock_quantity"`
	Category      string `form:"category"`
	YoutubeLink   string `form:"youtube_link"`
}

func (f productForm) input() (service.ProductInput, error) {
	price, err := decimal.NewFromString(f.Price)
	if err != nil {
		return service.ProductInput{}, apperr.Validation("price must be a number")
	}
	weight, err := decimal.NewFromString(f.WeightKg)
	if err != nil {
		return service.ProductInput{}, apperr.Validation("weight_kg must be a number")
	}
	return service.ProductInput{
		Name:          f.Name,
		Description:   f.Description,
		Price:         price,
		WeightKg:      weight,
		StockQuantity: f.StockQuantity,
		Category:      f.Category,
		YoutubeLink:   f.YoutubeLink,
	}, nil
}

// bindProduct parses the form and the optional image. The returned cleanup closes the image.
func (h *Handler) bindProduct(c *gin.Context) (service.ProductInput, *service.ImageUpload, func(), error) {
	noop := func() {}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxUploadSize)

	var form productForm
	if err := c.ShouldBind(&form); err != nil {
		return service.ProductInput{}, nil, noop, apperr.Validation("Invalid product form: " + err.Error())
	}
	in, err := form.input()
	if err != nil {
		return service.ProductInput{}, nil, noop, err
	}

	header, err := c.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil, noop, nil
	}
	if err != nil {
		return service.ProductInput{}, nil, noop, apperr.Validation(fmt.Sprintf("Invalid image upload: %v", err))
	}
	file, err := header.Open()
	if err != nil {
		return service.ProductInput{}, nil, noop, apperr.Validation(fmt.Sprintf("Invalid image upload: %v", err))
	}
	return in, &service.ImageUpload{Filename: header.Filename, Reader: file}, func() { file.Close() }, nil
}

func (h *Handler) createProduct(c *gin.Context) {
	in, img, cleanup, err := h.bindProduct(c)
	defer cleanup()
	if err != nil {
		respondError(c, err)
		return
	}
	product, err := h.svc.Catalog.CreateProduct(c.Request.Context(), adminCapability(c), in, img)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	in, img, cleanup, err := h.bindProduct(c)
	defer cleanup()
	if err != nil {
		respondError(c, err)
		return
	}
	product, err := h.svc.Catalog.UpdateProduct(c.Request.Context(), adminCapability(c), c.Param("id"), in, img)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	if err := h.svc.Catalog.DeleteProduct(c.Request.Context(), adminCapability(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listAllOrders(c *gin.Context) {
	orders, err := h.svc.Orders.ListAllOrders(c.Request.Context(), adminCapability(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

type orderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req orderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	order, err := h.svc.Orders.UpdateStatus(c.Request.Context(), adminCapability(c), c.Param("id"), req.Status)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) approveOrder(c *gin.Context) {
	order, err := h.svc.Orders.ApproveOrder(c.Request.Context(), adminCapability(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) listConversations(c *gin.Context) {
	convs, err := h.svc.Chat.ListConversations(c.Request.Context(), adminCapability(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func (h *Handler) closeConversation(c *gin.Context) {
	conv, err := h.svc.Chat.CloseConversation(c.Request.Context(), adminCapability(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *Handler) deleteAllChats(c *gin.Context) {
	n, err := h.svc.Chat.DeleteAllChats(c.Request.Context(), adminCapability(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted_conversations": n})
}

func (h *Handler) listAdmins(c *gin.Context) {
	admins, err := h.svc.Admins.ListAdmins(c.Request.Context(), adminCapability(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, admins)
}

type grantAdminRequest struct {
	Email string `json:"email" binding:"required"`
}

func (h *Handler) grantAdmin(c *gin.Context) {
	var req grantAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	profile, err := h.svc.Admins.GrantAdmin(c.Request.Context(), adminCapability(c), req.Email)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) revokeAdmin(c *gin.Context) {
	if err := h.svc.Admins.RevokeAdmin(c.Request.Context(), adminCapability(c), c.Param("user_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
