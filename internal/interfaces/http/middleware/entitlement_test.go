package middleware

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appentitlement "github.com/orris-inc/entitlements/internal/application/entitlement"
	"github.com/orris-inc/entitlements/internal/application/module"
	appsubscription "github.com/orris-inc/entitlements/internal/application/subscription"
	catalogvo "github.com/orris-inc/entitlements/internal/domain/catalog/valueobjects"
	"github.com/orris-inc/entitlements/internal/domain/subscription"
	"github.com/orris-inc/entitlements/internal/infrastructure/repository/repotest"
	"github.com/orris-inc/entitlements/internal/interfaces/http/handlers/testutil"
	"github.com/orris-inc/entitlements/internal/shared/config"
	"github.com/orris-inc/entitlements/internal/shared/constants"
)

type guardFixture struct {
	lifecycle  *appsubscription.LifecycleManager
	middleware *EntitlementMiddleware
}

func newGuardFixture(t *testing.T) *guardFixture {
	t.Helper()
	store := repotest.New(t)
	cfg := config.DefaultSubscriptionConfig()

	resolver := appentitlement.NewLimitResolver(store.Plans, store.Features, store.Limits, store.Logger)
	ledger := appentitlement.NewUsageLedger(store.Usage, resolver, store.Logger)
	engine := appentitlement.NewEngine(store.Plans, store.Features, store.Limits, resolver, ledger, store.Tx, nil, cfg, store.Logger)
	modules := module.NewActivationManager(store.Plans, store.Modules, store.Features, store.Activations, store.Tx, nil, store.Logger)
	lifecycle := appsubscription.NewLifecycleManager(store.Subscriptions, store.Changes, store.Plans, store.Usage, modules, engine, store.Tx, nil, cfg, store.Logger)

	plan := store.Plan(t, "team", "19.00", 0)
	sso := store.Feature(t, "sso", catalogvo.FeatureTypeBoolean, 0, catalogvo.ResetNever)
	exports := store.Feature(t, "exports", catalogvo.FeatureTypeConsumable, 2, catalogvo.ResetDaily)
	store.Include(t, plan, sso, nil)
	store.Include(t, plan, exports, nil)
	store.Enable(t, plan, store.Module(t, "billing", nil))

	return &guardFixture{
		lifecycle:  lifecycle,
		middleware: NewEntitlementMiddleware(appsubscription.NewSubscribers(lifecycle, engine, modules), nil, store.Logger),
	}
}

func (f *guardFixture) subscribe(t *testing.T, id string) *subscription.Subscription {
	t.Helper()
	sub, err := f.lifecycle.Create(context.Background(), subscription.SubscriberRef{Type: "user", ID: id}, "team", appsubscription.CreateOptions{})
	require.NoError(t, err)
	return sub
}

// serve mounts guard on /subscribers/:type/:id/probe and calls it for the
// subscriber.
func serve(guard gin.HandlerFunc, path string) (int, string) {
	engine := gin.New()
	engine.GET("/subscribers/:type/:id/probe", guard, func(c *gin.Context) {
		value, _ := c.Get(constants.ContextKeySubscriber)
		ref, _ := value.(subscription.SubscriberRef)
		c.String(http.StatusOK, ref.String())
	})
	w := testutil.Perform(engine, http.MethodGet, path, nil)

	var resp testutil.APIResponse
	if w.Code != http.StatusOK && testutil.ParseResponse(w, &resp) == nil && resp.Error != nil {
		return w.Code, resp.Error.Message
	}
	return w.Code, w.Body.String()
}

func TestEntitlementMiddleware_Guards(t *testing.T) {
	f := newGuardFixture(t)
	f.subscribe(t, "1")

	tests := []struct {
		name        string
		guard       gin.HandlerFunc
		subscriber  string
		wantCode    int
		wantMessage string
	}{
		{"feature granted", f.middleware.RequireFeature("sso"), "1", http.StatusOK, "user:1"},
		{"feature outside plan", f.middleware.RequireFeature("audit-log"), "1", http.StatusForbidden, "You do not have access to this feature."},
		{"feature without subscription", f.middleware.RequireFeature("sso"), "2", http.StatusForbidden, "You do not have access to this feature."},
		{"module granted", f.middleware.RequireModule("billing"), "1", http.StatusOK, "user:1"},
		{"module missing", f.middleware.RequireModule("crm"), "1", http.StatusForbidden, "You do not have access to this module."},
		{"active", f.middleware.RequireActiveSubscription(), "1", http.StatusOK, "user:1"},
		{"not active", f.middleware.RequireActiveSubscription(), "2", http.StatusForbidden, "Active subscription required."},
		{"other slot is empty", f.middleware.RequireActiveSubscription("addons"), "1", http.StatusForbidden, "Active subscription required."},
		{"not cancelled", f.middleware.RequireNotCancelled(), "1", http.StatusOK, "user:1"},
		{"not expired", f.middleware.RequireNotExpired(), "1", http.StatusOK, "user:1"},
		{"no subscription is not expired", f.middleware.RequireNotExpired(), "2", http.StatusOK, "user:2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := serve(tt.guard, "/subscribers/user/"+tt.subscriber+"/probe")
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantMessage, body)
		})
	}
}

func TestEntitlementMiddleware_CancelledAndExpired(t *testing.T) {
	f := newGuardFixture(t)
	ctx := context.Background()

	cancelled := f.subscribe(t, "1")
	_, err := f.lifecycle.Cancel(ctx, cancelled.ID(), true)
	require.NoError(t, err)

	expired := f.subscribe(t, "2")
	_, err = f.lifecycle.Expire(ctx, expired.ID())
	require.NoError(t, err)

	code, msg := serve(f.middleware.RequireNotCancelled(), "/subscribers/user/1/probe")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Subscription has been cancelled.", msg)

	code, msg = serve(f.middleware.RequireNotExpired(), "/subscribers/user/2/probe")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Subscription has expired.", msg)

	code, _ = serve(f.middleware.RequireFeature("sso"), "/subscribers/user/2/probe")
	assert.Equal(t, http.StatusForbidden, code)
}

func TestEntitlementMiddleware_Unauthenticated(t *testing.T) {
	f := newGuardFixture(t)
	engine := gin.New()
	engine.GET("/probe", f.middleware.RequireFeature("sso"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := testutil.Perform(engine, http.MethodGet, "/probe", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestEntitlementMiddleware_SubscriberFromAuthContext(t *testing.T) {
	f := newGuardFixture(t)
	f.subscribe(t, "9")

	engine := gin.New()
	engine.GET("/me/probe",
		func(c *gin.Context) {
			c.Set(constants.ContextKeySubscriber, subscription.SubscriberRef{Type: "user", ID: "9"})
		},
		f.middleware.RequireFeature("sso"),
		func(c *gin.Context) { c.Status(http.StatusNoContent) },
	)

	w := testutil.Perform(engine, http.MethodGet, "/me/probe", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestEntitlementMiddleware_ConsumeFeature(t *testing.T) {
	f := newGuardFixture(t)
	f.subscribe(t, "1")
	guard := f.middleware.ConsumeFeature("exports", 1)

	for i := 0; i < 2; i++ {
		code, _ := serve(guard, "/subscribers/user/1/probe")
		require.Equal(t, http.StatusOK, code, "request %d", i+1)
	}

	code, msg := serve(guard, "/subscribers/user/1/probe")
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "usage limit reached for feature: exports", msg)

	code, _ = serve(guard, "/subscribers/user/2/probe")
	assert.Equal(t, http.StatusTooManyRequests, code, "no subscription means nothing to consume")
}

func TestSlotName(t *testing.T) {
	c, _ := testutil.NewTestContext(http.MethodGet, "/probe", nil)
	assert.Equal(t, constants.DefaultSubscriptionName, slotName(c, nil))

	testutil.SetQueryParams(c, map[string]string{"subscription": "addons"})
	assert.Equal(t, "addons", slotName(c, nil))

	testutil.SetURLParam(c, "name", "seats")
	assert.Equal(t, "seats", slotName(c, nil))
	assert.Equal(t, "explicit", slotName(c, []string{"explicit"}))
}
