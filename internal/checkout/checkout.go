package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"shopgate/internal/gateway"
	"shopgate/internal/observability"
)

var errRequired = errors.New("required")

// PaymentGateway is the three-step contract with the external payment
// provider. Each call is one round trip; each result feeds the next.
type PaymentGateway interface {
	Authenticate(ctx context.Context) (string, error)
	OpenTransaction(ctx context.Context, token string, amountMinor int64) (string, error)
	IssueCredential(ctx context.Context, token, transactionID string, amountMinor int64, billing gateway.BillingProfile) (string, error)
}

// CheckoutRequest is the validated input for one checkout saga.
type CheckoutRequest struct {
	CustomerID string
	Lines      []CartLine
	Shipping   ShippingDetails
}

// CheckoutResult is the synchronous response to the caller. Order durability
// is deferred until the gateway's settlement callback.
type CheckoutResult struct {
	PaymentKey    string     `json:"payment_key"`
	FrameID       string     `json:"frame_id"`
	CorrelationID string     `json:"correlation_id"`
	Cart          PricedCart `json:"cart"`
}

// CheckoutService drives the checkout saga end to end: validate, price, open
// the gateway transaction, stage the pending order, hand the payment
// credential back to the caller.
type CheckoutService struct {
	catalog ProductCatalog
	users   UserDirectory
	gateway PaymentGateway
	pending PendingStore
	frameID string
	logf    func(format string, args ...any)
	metrics *observability.Metrics
	now     func() time.Time
}

// NewCheckoutService constructs a CheckoutService. logf and metrics may be nil.
func NewCheckoutService(catalog ProductCatalog, users UserDirectory, gw PaymentGateway, pending PendingStore, frameID string, logf func(format string, args ...any), metrics *observability.Metrics) *CheckoutService {
	if logf == nil {
		logf = log.Printf
	}
	return &CheckoutService{
		catalog: catalog,
		users:   users,
		gateway: gw,
		pending: pending,
		frameID: frameID,
		logf:    logf,
		metrics: metrics,
		now:     time.Now,
	}
}

// Checkout runs one checkout saga. Any validation or gateway failure before
// the credential is issued aborts with no pending entry created; the caller
// can retry the whole checkout.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (CheckoutResult, error) {
	saga := NewSaga()

	if err := validateRequest(req); err != nil {
		return s.abort(saga, err)
	}

	user, err := s.users.FindUser(ctx, req.CustomerID)
	if err != nil {
		return s.abort(saga, err)
	}

	quotes := make(map[string]ProductQuote, len(req.Lines))
	for _, line := range req.Lines {
		if _, ok := quotes[line.ProductID]; ok {
			continue
		}
		quote, err := s.catalog.FindProduct(ctx, line.ProductID)
		if err != nil {
			return s.abort(saga, err)
		}
		quotes[line.ProductID] = quote
	}

	cart, err := PriceCart(req.Lines, quotes)
	if err != nil {
		return s.abort(saga, err)
	}
	_ = saga.Advance(StatePriced)

	amountMinor := MinorUnits(cart.TotalAfterDiscount)

	token, err := s.gatewayStep(ctx, saga, StateAuthenticated, "gateway_authenticate", func(ctx context.Context) (string, error) {
		return s.gateway.Authenticate(ctx)
	})
	if err != nil {
		return s.abort(saga, err)
	}

	transactionID, err := s.gatewayStep(ctx, saga, StateTransactionOpened, "gateway_open_transaction", func(ctx context.Context) (string, error) {
		return s.gateway.OpenTransaction(ctx, token, amountMinor)
	})
	if err != nil {
		return s.abort(saga, err)
	}

	billing := gateway.BillingProfile{
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
		Phone:     req.Shipping.Phone,
		Address:   req.Shipping.Address,
		City:      req.Shipping.City,
		Zip:       req.Shipping.Zip,
		Country:   req.Shipping.Country,
	}

	paymentKey, err := s.gatewayStep(ctx, saga, StateCredentialIssued, "gateway_issue_credential", func(ctx context.Context) (string, error) {
		return s.gateway.IssueCredential(ctx, token, transactionID, amountMinor, billing)
	})
	if err != nil {
		return s.abort(saga, err)
	}

	pendingOrder := PendingOrder{
		CorrelationID:       transactionID,
		CustomerID:          req.CustomerID,
		Shipping:            req.Shipping,
		Lines:               cart.Lines,
		TotalBeforeDiscount: cart.TotalBeforeDiscount,
		TotalAfterDiscount:  cart.TotalAfterDiscount,
		CreatedAt:           s.now(),
	}
	if err := s.pending.Put(ctx, pendingOrder); err != nil {
		// Credential already issued; the gateway-side transaction becomes
		// garbage we do not clean up.
		s.logf("staging failed after credential issuance: correlation=%s: %v", transactionID, err)
		s.metrics.AddCheckoutRejected("staging")
		return CheckoutResult{}, fmt.Errorf("stage pending order: %w", err)
	}

	s.metrics.AddCheckoutAccepted()
	return CheckoutResult{
		PaymentKey:    paymentKey,
		FrameID:       s.frameID,
		CorrelationID: transactionID,
		Cart:          cart,
	}, nil
}

func (s *CheckoutService) gatewayStep(ctx context.Context, saga *Saga, next SagaState, name string, fn func(context.Context) (string, error)) (string, error) {
	span := s.metrics.Start(name)
	result, err := fn(ctx)
	span.End(err)
	if err != nil {
		return "", err
	}
	_ = saga.Advance(next)
	return result, nil
}

func (s *CheckoutService) abort(saga *Saga, err error) (CheckoutResult, error) {
	_ = saga.Advance(StateAborted)
	s.metrics.AddCheckoutRejected(rejectionKind(err))
	return CheckoutResult{}, err
}

func rejectionKind(err error) string {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.Is(err, ErrProductNotFound), errors.Is(err, ErrUserNotFound):
		return "not_found"
	case gateway.IsGatewayError(err):
		return "gateway"
	default:
		return "internal"
	}
}

func validateRequest(req CheckoutRequest) error {
	if !ValidID(req.CustomerID) {
		return newValidationError("user", ErrInvalidIdentifier)
	}
	if len(req.Lines) == 0 {
		return newValidationError("order_items", ErrEmptyCart)
	}
	for _, line := range req.Lines {
		if !ValidID(line.ProductID) {
			return newValidationError("product", ErrInvalidIdentifier)
		}
		if line.Quantity <= 0 {
			return newValidationError("quantity", errors.New("must be a positive integer"))
		}
	}
	if req.Shipping.Address == "" {
		return newValidationError("shipping_address", errRequired)
	}
	if req.Shipping.City == "" {
		return newValidationError("city", errRequired)
	}
	if req.Shipping.Country == "" {
		return newValidationError("country", errRequired)
	}
	if req.Shipping.Phone == "" {
		return newValidationError("phone", errRequired)
	}
	return nil
}

// ValidID reports whether id is a well-formed UUID.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
