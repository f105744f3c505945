package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tiffinbox/api/internal/platform/auth"
	"github.com/tiffinbox/api/internal/services"
)

var errNotStubbed = errors.New("not stubbed")

type stubOrderService struct {
	createFn  func(context.Context, services.CreateOrderCommand) (services.Order, error)
	listAllFn func(context.Context) ([]services.Order, error)
	listFn    func(context.Context, string) ([]services.Order, error)
	getFn     func(context.Context, string, services.Actor) (services.OrderDetail, error)
	updateFn  func(context.Context, services.UserUpdateOrderCommand) (services.Order, error)
	advanceFn func(context.Context, services.AdvanceOrderCommand) (services.Order, error)
}

func (s *stubOrderService) Create(ctx context.Context, cmd services.CreateOrderCommand) (services.Order, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) ListAll(ctx context.Context) ([]services.Order, error) {
	if s.listAllFn != nil {
		return s.listAllFn(ctx)
	}
	return nil, nil
}

func (s *stubOrderService) ListByUser(ctx context.Context, userID string) ([]services.Order, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID)
	}
	return nil, nil
}

func (s *stubOrderService) Get(ctx context.Context, orderID string, actor services.Actor) (services.OrderDetail, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID, actor)
	}
	return services.OrderDetail{}, errNotStubbed
}

func (s *stubOrderService) UpdateByUser(ctx context.Context, cmd services.UserUpdateOrderCommand) (services.Order, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

func (s *stubOrderService) Advance(ctx context.Context, cmd services.AdvanceOrderCommand) (services.Order, error) {
	if s.advanceFn != nil {
		return s.advanceFn(ctx, cmd)
	}
	return services.Order{}, errNotStubbed
}

type stubPaymentService struct {
	initiateFn func(context.Context, services.InitiatePaymentCommand) (services.PaymentIntent, error)
	verifyFn   func(context.Context, services.VerifyPaymentCommand) (services.VerifyPaymentResult, error)
	listFn     func(context.Context) ([]services.PaymentWithUser, error)
	expireFn   func(context.Context, time.Duration) (int, error)
}

func (s *stubPaymentService) Initiate(ctx context.Context, cmd services.InitiatePaymentCommand) (services.PaymentIntent, error) {
	if s.initiateFn != nil {
		return s.initiateFn(ctx, cmd)
	}
	return services.PaymentIntent{}, errNotStubbed
}

func (s *stubPaymentService) Verify(ctx context.Context, cmd services.VerifyPaymentCommand) (services.VerifyPaymentResult, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, cmd)
	}
	return services.VerifyPaymentResult{}, errNotStubbed
}

func (s *stubPaymentService) List(ctx context.Context) ([]services.PaymentWithUser, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

func (s *stubPaymentService) ExpireStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if s.expireFn != nil {
		return s.expireFn(ctx, olderThan)
	}
	return 0, nil
}

type stubCouponService struct {
	listFn   func(context.Context) ([]services.Coupon, error)
	getFn    func(context.Context, string) (services.Coupon, error)
	createFn func(context.Context, services.UpsertCouponCommand) (services.Coupon, error)
	updateFn func(context.Context, string, services.UpsertCouponCommand) (services.Coupon, error)
	deleteFn func(context.Context, string) error
	applyFn  func(context.Context, services.ApplyCouponCommand) (services.CouponPreview, error)
}

func (s *stubCouponService) List(ctx context.Context) ([]services.Coupon, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return nil, nil
}

func (s *stubCouponService) Get(ctx context.Context, id string) (services.Coupon, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return services.Coupon{}, errNotStubbed
}

func (s *stubCouponService) Create(ctx context.Context, cmd services.UpsertCouponCommand) (services.Coupon, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.Coupon{}, errNotStubbed
}

func (s *stubCouponService) Update(ctx context.Context, id string, cmd services.UpsertCouponCommand) (services.Coupon, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, id, cmd)
	}
	return services.Coupon{}, errNotStubbed
}

func (s *stubCouponService) Delete(ctx context.Context, id string) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, id)
	}
	return errNotStubbed
}

func (s *stubCouponService) Apply(ctx context.Context, cmd services.ApplyCouponCommand) (services.CouponPreview, error) {
	if s.applyFn != nil {
		return s.applyFn(ctx, cmd)
	}
	return services.CouponPreview{}, errNotStubbed
}

type stubMenuService struct {
	listFn   func(context.Context, services.MenuFilter) ([]services.MenuItem, error)
	getFn    func(context.Context, string) (services.MenuItem, error)
	searchFn func(context.Context, string) ([]services.MenuItem, error)
}

func (s *stubMenuService) List(ctx context.Context, filter services.MenuFilter) ([]services.MenuItem, error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return nil, nil
}

func (s *stubMenuService) Get(ctx context.Context, id string) (services.MenuItem, error) {
	if s.getFn != nil {
		return s.getFn(ctx, id)
	}
	return services.MenuItem{}, errNotStubbed
}

func (s *stubMenuService) Search(ctx context.Context, name string) ([]services.MenuItem, error) {
	if s.searchFn != nil {
		return s.searchFn(ctx, name)
	}
	return nil, nil
}

type stubSystemService struct {
	report services.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(context.Context) (services.SystemHealthReport, error) {
	return s.report, s.err
}

var (
	_ services.OrderService   = (*stubOrderService)(nil)
	_ services.PaymentService = (*stubPaymentService)(nil)
	_ services.CouponService  = (*stubCouponService)(nil)
	_ services.MenuService    = (*stubMenuService)(nil)
	_ services.SystemService  = (*stubSystemService)(nil)
)

// serve mounts routes at prefix and dispatches a request, optionally as identity.
func serve(t *testing.T, prefix string, routes func(chi.Router), method, target string, body any, identity *auth.Identity) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}

	router := chi.NewRouter()
	if prefix == "" {
		routes(router)
	} else {
		router.Route(prefix, routes)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}

func serveWithToken(t *testing.T, prefix string, routes func(chi.Router), method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Route(prefix, routes)
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}
