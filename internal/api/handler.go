package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"kwetu-store/internal/auth"
	"kwetu-store/internal/models"
	"kwetu-store/internal/service"
	"kwetu-store/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// AuthAPI is the account surface the handlers need.
type AuthAPI interface {
	SignUp(ctx context.Context, req service.SignUpRequest) (*service.TokenResponse, error)
	SignIn(ctx context.Context, email, password string) (*service.TokenResponse, error)
	Authenticate(token string) (auth.Session, error)
	Session(ctx context.Context, sess auth.Session) (*service.SessionInfo, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password string) error
}

type CatalogAPI interface {
	ListProducts(ctx context.Context, category, search string) ([]models.Product, error)
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	CreateProduct(ctx context.Context, capability auth.AdminCapability, in service.ProductInput, img *service.ImageUpload) (*models.Product, error)
	UpdateProduct(ctx context.Context, capability auth.AdminCapability, id string, in service.ProductInput, img *service.ImageUpload) (*models.Product, error)
	DeleteProduct(ctx context.Context, capability auth.AdminCapability, id string) error
	ListComments(ctx context.Context, productID string) ([]models.ProductComment, error)
	AddComment(ctx context.Context, sess auth.Session, productID, text string) (*models.ProductComment, error)
}

type CartAPI interface {
	GetCart(ctx context.Context, sess auth.Session) (*service.CartView, error)
	AddItem(ctx context.Context, sess auth.Session, productID string, quantity int) (*models.CartItem, error)
	UpdateQuantity(ctx context.Context, sess auth.Session, itemID string, quantity int) error
	RemoveItem(ctx context.Context, sess auth.Session, itemID string) error
}

type CheckoutAPI interface {
	CreateCheckout(ctx context.Context, sess auth.Session, origin string, req service.CheckoutRequest) (*service.CheckoutResponse, error)
}

type VerifierAPI interface {
	Verify(ctx context.Context, sessionID string, caller *auth.Session) (*service.VerifyResult, error)
}

type OrderAPI interface {
	ListMyOrders(ctx context.Context, sess auth.Session) ([]service.OrderWithItems, error)
	GetOrder(ctx context.Context, sess auth.Session, orderID string) (*service.OrderWithItems, error)
	ListAllOrders(ctx context.Context, capability auth.AdminCapability) ([]service.AdminOrderView, error)
	UpdateStatus(ctx context.Context, capability auth.AdminCapability, orderID, status string) (*models.Order, error)
	ApproveOrder(ctx context.Context, capability auth.AdminCapability, orderID string) (*models.Order, error)
}

type ChatAPI interface {
	StartConversation(ctx context.Context, sess auth.Session, name, email string) (*models.ChatConversation, error)
	ListMyConversations(ctx context.Context, sess auth.Session) ([]models.ChatConversation, error)
	ListConversations(ctx context.Context, capability auth.AdminCapability) ([]models.ChatConversation, error)
	ListMessages(ctx context.Context, sess auth.Session, conversationID string) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, sess auth.Session, conversationID, text string) (*models.ChatMessage, error)
	StreamMessages(ctx context.Context, sess auth.Session, conversationID string, emit func(models.ChatMessage) error) error
	CloseConversation(ctx context.Context, capability auth.AdminCapability, conversationID string) (*models.ChatConversation, error)
	DeleteAllChats(ctx context.Context, capability auth.AdminCapability) (int64, error)
}

type DashboardAPI interface {
	Stats(ctx context.Context, capability auth.AdminCapability) (*service.DashboardStats, error)
	StreamNotices(ctx context.Context, capability auth.AdminCapability, emit func(service.AdminNotice) error) error
}

type AdminAPI interface {
	ListAdmins(ctx context.Context, capability auth.AdminCapability) ([]models.UserRole, error)
	GrantAdmin(ctx context.Context, capability auth.AdminCapability, email string) (*models.Profile, error)
	RevokeAdmin(ctx context.Context, capability auth.AdminCapability, userID string) error
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups everything the HTTP layer dispatches to.
type Services struct {
	Auth      AuthAPI
	Catalog   CatalogAPI
	Cart      CartAPI
	Checkout  CheckoutAPI
	Verifier  VerifierAPI
	Orders    OrderAPI
	Chat      ChatAPI
	Dashboard DashboardAPI
	Admins    AdminAPI
	Roles     auth.AdminChecker
}

// Options configures static routes and readiness checks.
type Options struct {
	UploadsDir    string
	UploadsPath   string
	MaxUploadSize int64
	Readiness     map[string]Pinger
}

// Handler contains HTTP handlers
type Handler struct {
	svc    Services
	opts   Options
	logger *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, opts Options) *Handler {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 10 << 20
	}
	return &Handler{svc: svc, opts: opts, logger: util.Component("http")}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if h.opts.UploadsDir != "" && h.opts.UploadsPath != "" {
		router.Static(h.opts.UploadsPath, h.opts.UploadsDir)
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/signup", h.signUp)
		v1.POST("/auth/signin", h.signIn)
		v1.POST("/auth/password-reset", h.requestPasswordReset)
		v1.POST("/auth/password-reset/confirm", h.resetPassword)

		v1.GET("/products", h.listProducts)
		v1.GET("/products/:id", h.getProduct)
		v1.GET("/products/:id/comments", h.listComments)

		v1.POST("/verify-payment", h.optionalAuth(), h.verifyPayment)
	}

	user := v1.Group("", h.requireAuth())
	{
		user.GET("/auth/session", h.session)
		user.POST("/products/:id/comments", h.addComment)

		user.GET("/cart", h.getCart)
		user.POST("/cart/items", h.addCartItem)
		user.PATCH("/cart/items/:id", h.updateCartItem)
		user.DELETE("/cart/items/:id", h.removeCartItem)

		user.POST("/create-checkout", h.createCheckout)

		user.GET("/orders", h.listMyOrders)
		user.GET("/orders/:id", h.getOrder)

		user.POST("/chat/conversations", h.startConversation)
		user.GET("/chat/conversations", h.listMyConversations)
		user.GET("/chat/conversations/:id/messages", h.listMessages)
		user.POST("/chat/conversations/:id/messages", h.sendMessage)
		user.GET("/chat/conversations/:id/stream", h.streamMessages)
	}

	admin := user.Group("/admin", h.requireAdmin())
	{
		admin.GET("/dashboard", h.dashboard)
		admin.GET("/stream", h.streamNotices)

		admin.GET("/products", h.adminListProducts)
		admin.POST("/products", h.createProduct)
		admin.PUT("/products/:id", h.updateProduct)
		admin.DELETE("/products/:id", h.deleteProduct)

		admin.GET("/orders", h.listAllOrders)
		admin.PATCH("/orders/:id/status", h.updateOrderStatus)
		admin.POST("/orders/:id/approve", h.approveOrder)

		admin.GET("/chat/conversations", h.listConversations)
		admin.POST("/chat/conversations/:id/close", h.closeConversation)
		admin.DELETE("/chat", h.deleteAllChats)

		admin.GET("/admins", h.listAdmins)
		admin.POST("/admins", h.grantAdmin)
		admin.DELETE("/admins/:user_id", h.revokeAdmin)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every backing service
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, p := range h.opts.Readiness {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			checks[name] = "unavailable"
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"checks": checks,
		"time":   time.Now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			path,
			status,
		).Inc()
	}
}
