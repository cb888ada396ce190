package service

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"kwetu-store/internal/auth"
	"kwetu-store/internal/models"
	"kwetu-store/internal/payment"
	"kwetu-store/internal/store"
)

type fakeRoles struct {
	admins map[string]bool
	err    error
}

func (f *fakeRoles) IsAdmin(_ context.Context, userID string) (bool, error) {
	return f.admins[userID], f.err
}

type fakeCarts struct {
	lines map[string][]models.CartLine
	added []string
	err   error
}

func (f *fakeCarts) GetCartLines(_ context.Context, userID string) ([]models.CartLine, error) {
	return f.lines[userID], f.err
}

func (f *fakeCarts) GetCartLine(_ context.Context, userID, itemID string) (*models.CartLine, error) {
	for _, l := range f.lines[userID] {
		if l.ID == itemID {
			line := l
			return &line, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeCarts) AddToCart(_ context.Context, userID, productID string, quantity int) (*models.CartItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.added = append(f.added, productID)
	return &models.CartItem{UserID: userID, ProductID: productID, Quantity: quantity}, nil
}

func (f *fakeCarts) UpdateCartQuantity(_ context.Context, userID, itemID string, quantity int) error {
	for i, l := range f.lines[userID] {
		if l.ID == itemID {
			f.lines[userID][i].Quantity = quantity
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeCarts) RemoveCartItem(_ context.Context, userID, itemID string) error {
	return store.ErrNotFound
}

type fakeGateway struct {
	sessions map[string]*payment.Session
	requests []payment.SessionRequest
	err      error
}

func (f *fakeGateway) CreateSession(_ context.Context, req payment.SessionRequest) (*payment.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.requests = append(f.requests, req)
	return &payment.Session{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1", Metadata: req.Metadata}, nil
}

func (f *fakeGateway) GetSession(_ context.Context, id string) (*payment.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sessions[id]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return s, nil
}

type fakeOrders struct {
	mu         sync.Mutex
	orders     map[string]*models.Order
	items      map[string][]models.OrderItem
	bySession  map[string]string
	finalizeFn func(p store.FinalizeOrderParams) (*store.FinalizedOrder, error)
	finalized  int
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{
		orders:    make(map[string]*models.Order),
		items:     make(map[string][]models.OrderItem),
		bySession: make(map[string]string),
	}
}

func (f *fakeOrders) add(o *models.Order, items ...models.OrderItem) {
	f.orders[o.ID] = o
	f.items[o.ID] = items
	if o.PaymentSessionID != nil {
		f.bySession[*o.PaymentSessionID] = o.ID
	}
}

func (f *fakeOrders) FinalizeOrder(_ context.Context, p store.FinalizeOrderParams) (*store.FinalizedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalized++
	if f.finalizeFn != nil {
		return f.finalizeFn(p)
	}
	if id, ok := f.bySession[p.SessionID]; ok {
		return &store.FinalizedOrder{Order: f.orders[id], Items: f.items[id]}, nil
	}
	sid := p.SessionID
	order := &models.Order{
		ID:               "a1b2c3d4-e5f6-7890-abcd-ef0123456789",
		UserID:           p.UserID,
		Status:           models.OrderStatusPending,
		PaymentStatus:    p.PaymentStatus,
		TotalAmount:      p.TotalAmount,
		PaidAmount:       p.PaidAmount,
		PaymentSessionID: &sid,
	}
	f.add(order)
	return &store.FinalizedOrder{Order: order, Created: true}, nil
}

func (f *fakeOrders) GetOrderBySessionID(_ context.Context, sessionID string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.bySession[sessionID]; ok {
		return f.orders[id], nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeOrders) GetOrderByID(_ context.Context, id string) (*models.Order, error) {
	if o, ok := f.orders[id]; ok {
		return o, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeOrders) GetOrdersByUserID(_ context.Context, userID string) ([]models.Order, error) {
	out := []models.Order{}
	for _, o := range f.sorted() {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) ListOrders(_ context.Context) ([]models.Order, error) {
	return f.sorted(), nil
}

func (f *fakeOrders) sorted() []models.Order {
	out := make([]models.Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeOrders) CountOrders(_ context.Context) (int, error) {
	return len(f.orders), nil
}

func (f *fakeOrders) GetOrderItemsByOrderID(_ context.Context, orderID string) ([]models.OrderItem, error) {
	return f.items[orderID], nil
}

func (f *fakeOrders) GetOrderItemsByOrderIDs(_ context.Context, orderIDs []string) (map[string][]models.OrderItem, error) {
	out := make(map[string][]models.OrderItem)
	for _, id := range orderIDs {
		if items, ok := f.items[id]; ok {
			out[id] = items
		}
	}
	return out, nil
}

func (f *fakeOrders) UpdateOrderStatus(_ context.Context, orderID, status string, approved *bool, allow func(string) error) (*models.Order, string, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return nil, "", store.ErrNotFound
	}
	old := o.Status
	if allow != nil {
		if err := allow(old); err != nil {
			return nil, "", err
		}
	}
	o.Status = status
	if approved != nil {
		o.Approved = *approved
	}
	cp := *o
	return &cp, old, nil
}

type fakeUsers struct {
	fakeRoles
	users    map[string]*models.User
	profiles map[string]*models.Profile
	granted  []string
	revoked  []string
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{
		fakeRoles: fakeRoles{admins: make(map[string]bool)},
		users:     make(map[string]*models.User),
		profiles:  make(map[string]*models.Profile),
	}
}

func (f *fakeUsers) CreateUser(_ context.Context, email, hash string, fullName *string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return nil, store.ErrDuplicate
		}
	}
	u := &models.User{ID: "user-" + email, Email: email, PasswordHash: hash}
	f.users[u.ID] = u
	f.profiles[u.ID] = &models.Profile{ID: u.ID, Email: email, FullName: fullName}
	return u, nil
}

func (f *fakeUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeUsers) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	u, ok := f.users[userID]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (f *fakeUsers) GetProfile(_ context.Context, userID string) (*models.Profile, error) {
	if p, ok := f.profiles[userID]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeUsers) GetProfileByEmail(_ context.Context, email string) (*models.Profile, error) {
	for _, p := range f.profiles {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeUsers) GetProfilesByIDs(_ context.Context, ids []string) (map[string]models.Profile, error) {
	out := make(map[string]models.Profile)
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out[id] = *p
		}
	}
	return out, nil
}

func (f *fakeUsers) ListAdmins(_ context.Context) ([]models.UserRole, error) {
	out := []models.UserRole{}
	for id, ok := range f.admins {
		if ok {
			out = append(out, models.UserRole{UserID: id, Role: models.RoleAdmin})
		}
	}
	return out, nil
}

func (f *fakeUsers) GrantRole(_ context.Context, userID, role string) (bool, error) {
	if f.admins[userID] {
		return false, nil
	}
	f.admins[userID] = true
	f.granted = append(f.granted, userID)
	return true, nil
}

func (f *fakeUsers) RevokeRole(_ context.Context, userID, role string) error {
	if !f.admins[userID] {
		return store.ErrNotFound
	}
	delete(f.admins, userID)
	f.revoked = append(f.revoked, userID)
	return nil
}

type fakeClaims struct {
	mu       sync.Mutex
	held     map[string]string
	released []string
	err      error
}

func (f *fakeClaims) ClaimSession(_ context.Context, sessionID, owner string, _ time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	if f.held == nil {
		f.held = make(map[string]string)
	}
	if holder, ok := f.held[sessionID]; ok && holder != owner {
		return false, nil
	}
	f.held[sessionID] = owner
	return true, nil
}

func (f *fakeClaims) ReleaseSession(_ context.Context, sessionID, owner string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[sessionID] == owner {
		delete(f.held, sessionID)
	}
	f.released = append(f.released, sessionID)
	return nil
}

type fakeEvents struct {
	orderPlaced   []*models.OrderPlacedEvent
	statusChanged []*models.OrderStatusChangedEvent
	resets        []*models.PasswordResetRequestedEvent
	granted       []*models.AdminRoleGrantedEvent
}

func (f *fakeEvents) PublishOrderPlaced(_ context.Context, e *models.OrderPlacedEvent) error {
	f.orderPlaced = append(f.orderPlaced, e)
	return nil
}

func (f *fakeEvents) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	f.statusChanged = append(f.statusChanged, e)
	return nil
}

func (f *fakeEvents) PublishPasswordResetRequested(_ context.Context, e *models.PasswordResetRequestedEvent) error {
	f.resets = append(f.resets, e)
	return nil
}

func (f *fakeEvents) PublishAdminRoleGranted(_ context.Context, e *models.AdminRoleGrantedEvent) error {
	f.granted = append(f.granted, e)
	return nil
}

type fakeTokens struct {
	tokens map[string]string
}

func (f *fakeTokens) StoreResetToken(_ context.Context, token, userID string, _ time.Duration) error {
	if f.tokens == nil {
		f.tokens = make(map[string]string)
	}
	f.tokens[token] = userID
	return nil
}

func (f *fakeTokens) ConsumeResetToken(_ context.Context, token string) (string, error) {
	userID, ok := f.tokens[token]
	if !ok {
		return "", auth.ErrResetTokenNotFound
	}
	delete(f.tokens, token)
	return userID, nil
}

type fakeChats struct {
	mu            sync.Mutex
	conversations map[string]*models.ChatConversation
	messages      map[string][]models.ChatMessage
	onList        func()
	seq           int64
}

func newFakeChats() *fakeChats {
	return &fakeChats{
		conversations: make(map[string]*models.ChatConversation),
		messages:      make(map[string][]models.ChatMessage),
	}
}

func (f *fakeChats) CreateConversation(_ context.Context, customerID, name, email string) (*models.ChatConversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &models.ChatConversation{
		ID:            "conv-" + customerID,
		CustomerID:    customerID,
		CustomerName:  name,
		CustomerEmail: email,
		Status:        models.ConversationActive,
	}
	f.conversations[c.ID] = c
	return c, nil
}

func (f *fakeChats) GetConversation(_ context.Context, id string) (*models.ChatConversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.conversations[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeChats) GetActiveConversation(_ context.Context, customerID string) (*models.ChatConversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.CustomerID == customerID && c.Status == models.ConversationActive {
			cp := *c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeChats) ListConversations(_ context.Context) ([]models.ChatConversation, error) {
	out := []models.ChatConversation{}
	for _, c := range f.conversations {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeChats) ListConversationsByCustomer(_ context.Context, customerID string) ([]models.ChatConversation, error) {
	out := []models.ChatConversation{}
	for _, c := range f.conversations {
		if c.CustomerID == customerID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeChats) SetConversationStatus(_ context.Context, id, status string) (*models.ChatConversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.conversations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c.Status = status
	cp := *c
	return &cp, nil
}

func (f *fakeChats) InsertMessage(_ context.Context, conversationID, senderID, senderType, text string) (*models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	m := models.ChatMessage{
		ID:             "msg-" + string(rune('a'+f.seq-1)),
		Seq:            f.seq,
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderType:     senderType,
		Message:        text,
	}
	f.messages[conversationID] = append(f.messages[conversationID], m)
	return &m, nil
}

func (f *fakeChats) ListMessages(_ context.Context, conversationID string) ([]models.ChatMessage, error) {
	if f.onList != nil {
		f.onList()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ChatMessage(nil), f.messages[conversationID]...), nil
}

func (f *fakeChats) DeleteAllChats(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int64(len(f.conversations))
	f.conversations = make(map[string]*models.ChatConversation)
	f.messages = make(map[string][]models.ChatMessage)
	return n, nil
}

func sessionFor(userID string) auth.Session {
	return auth.Session{UserID: userID}
}

type fakeIdempotency struct {
	values map[string]string
}

func (f *fakeIdempotency) SetIdempotencyKey(_ context.Context, key string, value interface{}, _ time.Duration) error {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[key] = value.(string)
	return nil
}

func (f *fakeIdempotency) GetIdempotencyKey(_ context.Context, key string) (string, error) {
	return f.values[key], nil
}
