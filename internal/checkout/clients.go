package checkout

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// NewInMemoryProductCatalog constructs an in-memory product catalog.
func NewInMemoryProductCatalog() *InMemoryProductCatalog {
	return &InMemoryProductCatalog{products: make(map[string]ProductQuote)}
}

// InMemoryProductCatalog serves product quotes from memory.
type InMemoryProductCatalog struct {
	mu       sync.Mutex
	products map[string]ProductQuote
}

// Add registers a product quote.
func (c *InMemoryProductCatalog) Add(productID string, quote ProductQuote) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[productID] = quote
}

func (c *InMemoryProductCatalog) FindProduct(ctx context.Context, productID string) (ProductQuote, error) {
	if err := ctx.Err(); err != nil {
		return ProductQuote{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	quote, ok := c.products[productID]
	if !ok {
		return ProductQuote{}, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return quote, nil
}

// NewInMemoryUserDirectory constructs an in-memory user directory.
func NewInMemoryUserDirectory() *InMemoryUserDirectory {
	return &InMemoryUserDirectory{users: make(map[string]UserProfile)}
}

// InMemoryUserDirectory serves user profiles from memory.
type InMemoryUserDirectory struct {
	mu    sync.Mutex
	users map[string]UserProfile
}

// Add registers a user profile.
func (d *InMemoryUserDirectory) Add(userID string, profile UserProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[userID] = profile
}

func (d *InMemoryUserDirectory) FindUser(ctx context.Context, userID string) (UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return UserProfile{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	profile, ok := d.users[userID]
	if !ok {
		return UserProfile{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return profile, nil
}

// NewInMemoryOrderStore constructs an in-memory durable order store.
func NewInMemoryOrderStore() *InMemoryOrderStore {
	return &InMemoryOrderStore{
		orders:        make(map[string]Order),
		byCorrelation: make(map[string]string),
		newID:         uuid.NewString,
		now:           time.Now,
	}
}

// InMemoryOrderStore keeps durable orders in memory. It backs deployments
// without a DATABASE_URL and the package tests.
type InMemoryOrderStore struct {
	mu            sync.Mutex
	orders        map[string]Order
	byCorrelation map[string]string
	newID         func() string
	now           func() time.Time
}

func (s *InMemoryOrderStore) CreateOrderWithItems(ctx context.Context, pending PendingOrder) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.byCorrelation[pending.CorrelationID]; ok {
		return s.orders[existingID], nil
	}

	order := Order{
		ID:                  s.newID(),
		CorrelationID:       pending.CorrelationID,
		CustomerID:          pending.CustomerID,
		Shipping:            pending.Shipping,
		Lines:               pending.Lines,
		TotalBeforeDiscount: pending.TotalBeforeDiscount,
		TotalAfterDiscount:  pending.TotalAfterDiscount,
		PaymentStatus:       PaymentStatusPaid,
		Status:              OrderStatusPending,
		CreatedAt:           s.now(),
	}
	s.orders[order.ID] = order
	s.byCorrelation[order.CorrelationID] = order.ID
	return order, nil
}

func (s *InMemoryOrderStore) DeleteOrder(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	delete(s.orders, orderID)
	delete(s.byCorrelation, order.CorrelationID)
	return nil
}

func (s *InMemoryOrderStore) ListOrders(ctx context.Context, page, limit int) ([]Order, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.sortedLocked()
	total := len(all)
	if limit <= 0 {
		limit = total
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * limit
	if start >= total {
		return []Order{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (s *InMemoryOrderStore) ListOrdersForUser(ctx context.Context, userID string) ([]Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Order
	for _, order := range s.sortedLocked() {
		if order.CustomerID == userID {
			out = append(out, order)
		}
	}
	return out, nil
}

func (s *InMemoryOrderStore) FindOrder(ctx context.Context, orderID string) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *InMemoryOrderStore) FindOrderForUser(ctx context.Context, userID, orderID string) (Order, error) {
	order, err := s.FindOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.CustomerID != userID {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

func (s *InMemoryOrderStore) FindOrderByCorrelation(ctx context.Context, correlationID string) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	orderID, ok := s.byCorrelation[correlationID]
	if !ok {
		return Order{}, fmt.Errorf("%w: correlation %s", ErrOrderNotFound, correlationID)
	}
	return s.orders[orderID], nil
}

func (s *InMemoryOrderStore) UpdateOrderStatus(ctx context.Context, orderID string, status OrderStatus) (Order, error) {
	if err := ctx.Err(); err != nil {
		return Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	order.Status = status
	s.orders[orderID] = order
	return order, nil
}

func (s *InMemoryOrderStore) sortedLocked() []Order {
	out := make([]Order, 0, len(s.orders))
	for _, order := range s.orders {
		out = append(out, order)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
