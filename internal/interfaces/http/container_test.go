package http

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appsubscription "github.com/orris-inc/entitlements/internal/application/subscription"
	catalogvo "github.com/orris-inc/entitlements/internal/domain/catalog/valueobjects"
	"github.com/orris-inc/entitlements/internal/domain/subscription"
	"github.com/orris-inc/entitlements/internal/infrastructure/config"
	"github.com/orris-inc/entitlements/internal/infrastructure/pubsub"
	"github.com/orris-inc/entitlements/internal/infrastructure/repository/repotest"
	"github.com/orris-inc/entitlements/internal/interfaces/http/handlers"
	"github.com/orris-inc/entitlements/internal/interfaces/http/handlers/testutil"
	sharedConfig "github.com/orris-inc/entitlements/internal/shared/config"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:       sharedConfig.ServerConfig{Host: "127.0.0.1", Port: 0, Mode: "test"},
		Database:     sharedConfig.DatabaseConfig{Driver: "sqlite", Path: ":memory:"},
		Redis:        sharedConfig.RedisConfig{Channel: pubsub.DefaultChannel},
		Subscription: sharedConfig.DefaultSubscriptionConfig(),
	}
}

func newTestContainer(t *testing.T, redisClient *redis.Client) (*Container, *repotest.Store) {
	t.Helper()
	store := repotest.New(t)

	c, err := NewContainer(testConfig(), store.DB, redisClient, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(false))
	t.Cleanup(func() { c.Shutdown(context.Background()) })
	return c, store
}

// seedCatalog creates "pro" (10 api-calls, reports module) and "enterprise"
// (100 api-calls).
func seedCatalog(t *testing.T, store *repotest.Store) {
	t.Helper()
	pro := store.Plan(t, "pro", "29.00", 0)
	enterprise := store.Plan(t, "enterprise", "99.00", 0)
	calls := store.Feature(t, "api-calls", catalogvo.FeatureTypeConsumable, 10, catalogvo.ResetMonthly)
	store.Include(t, pro, calls, nil)
	store.Include(t, enterprise, calls, repotest.Int64(100))
	store.Enable(t, pro, store.Module(t, "reports", nil))
}

func decode[T any](t *testing.T, body []byte) (testutil.APIResponse, T) {
	t.Helper()
	var resp testutil.APIResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	var data T
	if len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, &data))
	}
	return resp, data
}

func TestRouter_Health(t *testing.T) {
	c, _ := newTestContainer(t, nil)

	w := testutil.Perform(c.Router(), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	resp, data := decode[map[string]any](t, w.Body.Bytes())
	assert.True(t, resp.Success)
	assert.Equal(t, "ok", data["status"])
}

func TestRouter_Plans(t *testing.T) {
	c, store := newTestContainer(t, nil)
	seedCatalog(t, store)

	w := testutil.Perform(c.Router(), http.MethodGet, "/api/v1/plans", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, plans := decode[[]handlers.PlanResponse](t, w.Body.Bytes())
	assert.Len(t, plans, 2)

	w = testutil.Perform(c.Router(), http.MethodGet, "/api/v1/plans/pro", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, plan := decode[handlers.PlanResponse](t, w.Body.Bytes())
	assert.Equal(t, "pro", plan.Slug)
	assert.Contains(t, plan.Features, "api-calls")
	assert.Nil(t, plan.Features["api-calls"], "plan defers to the feature default")
	assert.Equal(t, []string{"reports"}, plan.Modules)

	w = testutil.Perform(c.Router(), http.MethodGet, "/api/v1/plans/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_SubscriptionFlow(t *testing.T) {
	c, store := newTestContainer(t, nil)
	seedCatalog(t, store)
	router := c.Router()
	base := "/api/v1/subscribers/user/42"

	w := testutil.Perform(router, http.MethodGet, base+"/subscriptions/default", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = testutil.Perform(router, http.MethodPost, base+"/subscriptions", handlers.CreateSubscriptionRequest{Plan: "pro"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	_, created := decode[handlers.SubscriptionResponse](t, w.Body.Bytes())
	assert.Equal(t, "active", created.Status)
	assert.Equal(t, subscription.SubscriberRef{Type: "user", ID: "42"}, created.Subscriber)
	assert.True(t, created.Usable)

	w = testutil.Perform(router, http.MethodPost, base+"/features/api-calls/consume", handlers.ConsumeRequest{Amount: 3})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, consumed := decode[handlers.ConsumeResponse](t, w.Body.Bytes())
	assert.True(t, consumed.Consumed)
	assert.EqualValues(t, 7, consumed.Remaining)

	w = testutil.Perform(router, http.MethodPost, base+"/features/api-calls/consume", handlers.ConsumeRequest{Amount: 8})
	require.Equal(t, http.StatusOK, w.Code)
	_, refused := decode[handlers.ConsumeResponse](t, w.Body.Bytes())
	assert.False(t, refused.Consumed)
	assert.EqualValues(t, 7, refused.Remaining)

	w = testutil.Perform(router, http.MethodGet, base+"/features", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, summary := decode[[]map[string]any](t, w.Body.Bytes())
	require.Len(t, summary, 1)
	assert.EqualValues(t, 3, summary[0]["used"])

	w = testutil.Perform(router, http.MethodGet, base+"/modules/reports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, module := decode[handlers.ModuleAccessResponse](t, w.Body.Bytes())
	assert.True(t, module.HasAccess)

	w = testutil.Perform(router, http.MethodPost, base+"/subscriptions/default/change-plan", handlers.ChangePlanRequest{Plan: "enterprise", Immediate: true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, change := decode[subscription.ChangeSnapshot](t, w.Body.Bytes())
	assert.True(t, change.IsImmediate)
	assert.NotNil(t, change.AppliedAt)

	w = testutil.Perform(router, http.MethodGet, base+"/features/api-calls", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, feature := decode[handlers.FeatureAccessResponse](t, w.Body.Bytes())
	assert.True(t, feature.HasAccess)
	assert.EqualValues(t, 100, feature.Value)

	w = testutil.Perform(router, http.MethodGet, base+"/subscriptions/default/changes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, changes := decode[[]subscription.ChangeSnapshot](t, w.Body.Bytes())
	assert.Len(t, changes, 1)

	w = testutil.Perform(router, http.MethodPost, base+"/subscriptions/default/cancel", handlers.CancelSubscriptionRequest{Immediate: true})
	require.Equal(t, http.StatusOK, w.Code)
	_, cancelled := decode[handlers.SubscriptionResponse](t, w.Body.Bytes())
	assert.Equal(t, "cancelled", cancelled.Status)

	w = testutil.Perform(router, http.MethodGet, base+"/features/api-calls", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, feature = decode[handlers.FeatureAccessResponse](t, w.Body.Bytes())
	assert.False(t, feature.HasAccess)
}

func TestRouter_ExpiredSubscriptionCannotChangePlan(t *testing.T) {
	c, store := newTestContainer(t, nil)
	seedCatalog(t, store)
	ctx := context.Background()

	sub, err := c.Lifecycle().Create(ctx, subscription.SubscriberRef{Type: "user", ID: "7"}, "pro", appsubscription.CreateOptions{})
	require.NoError(t, err)
	_, err = c.Lifecycle().Expire(ctx, sub.ID())
	require.NoError(t, err)

	w := testutil.Perform(c.Router(), http.MethodPost, "/api/v1/subscribers/user/7/subscriptions/default/change-plan",
		handlers.ChangePlanRequest{Plan: "enterprise", Immediate: true})

	assert.Equal(t, http.StatusForbidden, w.Code)
	resp, _ := decode[any](t, w.Body.Bytes())
	require.NotNil(t, resp.Error)
	assert.Equal(t, "Subscription has expired.", resp.Error.Message)
}

func TestRouter_InvalidBody(t *testing.T) {
	c, store := newTestContainer(t, nil)
	seedCatalog(t, store)

	w := testutil.Perform(c.Router(), http.MethodPost, "/api/v1/subscribers/user/1/subscriptions", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = testutil.Perform(c.Router(), http.MethodPost, "/api/v1/subscribers/user/1/subscriptions", handlers.CreateSubscriptionRequest{Plan: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestContainer_PublishesEventsToRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	// The container closes this client on shutdown.
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	listener := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = listener.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ps := listener.Subscribe(ctx, pubsub.DefaultChannel)
	_, err = ps.Receive(ctx)
	require.NoError(t, err)
	messages := ps.Channel()

	c, store := newTestContainer(t, client)
	seedCatalog(t, store)

	_, err = c.Lifecycle().Create(ctx, subscription.SubscriberRef{Type: "team", ID: "acme"}, "pro", appsubscription.CreateOptions{})
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-messages:
			var envelope pubsub.Envelope
			require.NoError(t, json.Unmarshal([]byte(msg.Payload), &envelope))
			if envelope.EventType == subscription.EventTypeCreated {
				return
			}
		case <-deadline:
			t.Fatal("subscription.created was not published")
		}
	}
}
