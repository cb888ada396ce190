package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"kwetu-store/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	sharedOnce  sync.Once
	sharedStore *Store
	sharedErr   error
)

// testStore starts one Postgres container for the package and applies migrations.
func testStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test, requires docker")
	}

	sharedOnce.Do(func() {
		ctx := context.Background()
		req := testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "testuser",
				"POSTGRES_PASSWORD": "testpass",
				"POSTGRES_DB":       "kwetu_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		}

		pg, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: req,
			Started:          true,
		})
		if err != nil {
			sharedErr = err
			return
		}

		host, err := pg.Host(ctx)
		if err != nil {
			sharedErr = err
			return
		}
		port, err := pg.MappedPort(ctx, "5432")
		if err != nil {
			sharedErr = err
			return
		}

		dsn := fmt.Sprintf("postgres://testuser:testpass@%s:%s/kwetu_test?sslmode=disable", host, port.Port())
		db, err := sqlx.Connect("postgres", dsn)
		if err != nil {
			sharedErr = err
			return
		}

		sharedStore = NewFromDB(db)
		sharedErr = sharedStore.Migrate(ctx)
	})

	if sharedErr != nil {
		t.Skipf("postgres container unavailable: %v", sharedErr)
	}
	return sharedStore
}

func seedUser(t *testing.T, s *Store) *models.User {
	t.Helper()
	name := "Test User"
	user, err := s.CreateUser(context.Background(), uuid.New().String()+"@example.com", "hash", &name)
	require.NoError(t, err)
	return user
}

func seedProduct(t *testing.T, s *Store, price string, stock int) *models.Product {
	t.Helper()
	p := &models.Product{
		Name:          "Product " + uuid.New().String()[:6],
		Price:         decimal.RequireFromString(price),
		WeightKg:      decimal.RequireFromString("0.5"),
		StockQuantity: stock,
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

func testAddress() models.DeliveryAddress {
	return models.DeliveryAddress{
		StreetAddress: "1 Main St",
		City:          "Nairobi",
		State:         "NA",
		ZipCode:       "00100",
	}
}

func TestAddToCartIncrementsExistingLine(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	user := seedUser(t, s)
	product := seedProduct(t, s, "10.00", 5)

	_, err := s.AddToCart(ctx, user.ID, product.ID, 2)
	require.NoError(t, err)
	item, err := s.AddToCart(ctx, user.ID, product.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, item.Quantity)

	lines, err := s.GetCartLines(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Equal(t, product.Name, lines[0].Product.Name)
	assert.True(t, decimal.RequireFromString("30").Equal(lines[0].Subtotal()))
}

func TestAddToCartStockChecks(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	user := seedUser(t, s)

	empty := seedProduct(t, s, "1.00", 0)
	_, err := s.AddToCart(ctx, user.ID, empty.ID, 1)
	assert.ErrorIs(t, err, ErrOutOfStock)

	limited := seedProduct(t, s, "1.00", 2)
	_, err = s.AddToCart(ctx, user.ID, limited.ID, 2)
	require.NoError(t, err)
	_, err = s.AddToCart(ctx, user.ID, limited.ID, 1)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	_, err = s.AddToCart(ctx, user.ID, uuid.New().String(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinalizeOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	user := seedUser(t, s)
	a := seedProduct(t, s, "10.00", 5)
	b := seedProduct(t, s, "5.50", 3)

	_, err := s.AddToCart(ctx, user.ID, a.ID, 2)
	require.NoError(t, err)
	_, err = s.AddToCart(ctx, user.ID, b.ID, 1)
	require.NoError(t, err)

	params := FinalizeOrderParams{
		UserID:        user.ID,
		SessionID:     "cs_test_" + uuid.New().String(),
		PaymentStatus: models.PaymentStatusPartial,
		TotalAmount:   decimal.RequireFromString("25.50"),
		PaidAmount:    decimal.RequireFromString("12.75"),
		Address:       testAddress(),
	}

	result, err := s.FinalizeOrder(ctx, params)
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Empty(t, result.Oversold)
	assert.Len(t, result.Items, 2)
	assert.Equal(t, models.OrderStatusPending, result.Order.Status)

	lines, err := s.GetCartLines(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, lines)

	got, err := s.GetProductByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.StockQuantity)

	stored, err := s.GetOrderByID(ctx, result.Order.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("12.75").Equal(stored.PaidAmount))

	t.Run("same session returns existing order", func(t *testing.T) {
		again, err := s.FinalizeOrder(ctx, params)
		require.NoError(t, err)
		assert.False(t, again.Created)
		assert.Equal(t, result.Order.ID, again.Order.ID)
		assert.Len(t, again.Items, 2)
	})
}

func TestFinalizeOrderEmptyCart(t *testing.T) {
	s := testStore(t)
	user := seedUser(t, s)

	_, err := s.FinalizeOrder(context.Background(), FinalizeOrderParams{
		UserID:        user.ID,
		SessionID:     "cs_test_" + uuid.New().String(),
		PaymentStatus: models.PaymentStatusFull,
		Address:       testAddress(),
	})
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestFinalizeOrderClampsOversoldStock(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	user := seedUser(t, s)
	p := seedProduct(t, s, "2.00", 4)

	_, err := s.AddToCart(ctx, user.ID, p.ID, 4)
	require.NoError(t, err)

	// Stock drops after the item was carted.
	p.StockQuantity = 1
	require.NoError(t, s.UpdateProduct(ctx, p))

	result, err := s.FinalizeOrder(ctx, FinalizeOrderParams{
		UserID:        user.ID,
		SessionID:     "cs_test_" + uuid.New().String(),
		PaymentStatus: models.PaymentStatusFull,
		TotalAmount:   decimal.RequireFromString("8"),
		PaidAmount:    decimal.RequireFromString("8"),
		Address:       testAddress(),
	})
	require.NoError(t, err)
	require.Len(t, result.Oversold, 1)
	assert.Equal(t, 4, result.Oversold[0].Requested)
	assert.Equal(t, 1, result.Oversold[0].Available)

	got, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.StockQuantity)
}

func TestUpdateOrderStatusRespectsGuard(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	user := seedUser(t, s)
	p := seedProduct(t, s, "3.00", 10)
	_, err := s.AddToCart(ctx, user.ID, p.ID, 1)
	require.NoError(t, err)

	result, err := s.FinalizeOrder(ctx, FinalizeOrderParams{
		UserID:        user.ID,
		SessionID:     "cs_test_" + uuid.New().String(),
		PaymentStatus: models.PaymentStatusFull,
		TotalAmount:   decimal.RequireFromString("3"),
		PaidAmount:    decimal.RequireFromString("3"),
		Address:       testAddress(),
	})
	require.NoError(t, err)

	approved := true
	order, old, err := s.UpdateOrderStatus(ctx, result.Order.ID, models.OrderStatusProcessing, &approved, nil)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, old)
	assert.True(t, order.Approved)

	blocked := fmt.Errorf("blocked")
	_, _, err = s.UpdateOrderStatus(ctx, result.Order.ID, models.OrderStatusShipped, nil, func(string) error {
		return blocked
	})
	assert.ErrorIs(t, err, blocked)
}

func TestUsersAndRoles(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	user := seedUser(t, s)

	_, err := s.CreateUser(ctx, user.Email, "hash", nil)
	assert.ErrorIs(t, err, ErrDuplicate)

	isAdmin, err := s.IsAdmin(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, isAdmin)

	created, err := s.GrantRole(ctx, user.ID, models.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.GrantRole(ctx, user.ID, models.RoleAdmin)
	require.NoError(t, err)
	assert.False(t, created)

	isAdmin, err = s.IsAdmin(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, isAdmin)

	require.NoError(t, s.RevokeRole(ctx, user.ID, models.RoleAdmin))
	assert.ErrorIs(t, s.RevokeRole(ctx, user.ID, models.RoleAdmin), ErrNotFound)
}

func TestChatMessagesRequireActiveConversation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	user := seedUser(t, s)

	conv, err := s.CreateConversation(ctx, user.ID, "Test User", user.Email)
	require.NoError(t, err)

	first, err := s.InsertMessage(ctx, conv.ID, user.ID, models.SenderCustomer, "hello")
	require.NoError(t, err)
	second, err := s.InsertMessage(ctx, conv.ID, user.ID, models.SenderCustomer, "anyone there?")
	require.NoError(t, err)
	assert.Greater(t, second.Seq, first.Seq)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first.ID, msgs[0].ID)

	_, err = s.SetConversationStatus(ctx, conv.ID, models.ConversationClosed)
	require.NoError(t, err)

	_, err = s.InsertMessage(ctx, conv.ID, user.ID, models.SenderCustomer, "still there?")
	assert.ErrorIs(t, err, ErrConversationClosed)
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.GetOrderByID(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetProductByID(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetConversation(ctx, "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentFirstAddsRespectStock(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	user := seedUser(t, s)
	product := seedProduct(t, s, "4.00", 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.AddToCart(ctx, user.ID, product.ID, 3)
		}(i)
	}
	wg.Wait()

	var failed int
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrInsufficientStock)
			failed++
		}
	}
	assert.Equal(t, 1, failed)

	lines, err := s.GetCartLines(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
}
