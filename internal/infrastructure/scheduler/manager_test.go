package scheduler

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orris-inc/entitlements/internal/domain/subscription"
	"github.com/orris-inc/entitlements/internal/infrastructure/repository/repotest"
	"github.com/orris-inc/entitlements/internal/shared/logger"
)

func TestSchedulerManager_RunsLifecycleJobsInOrder(t *testing.T) {
	m, err := NewSchedulerManager(logger.NewNop())
	require.NoError(t, err)

	var step atomic.Int32
	order := make(chan string, 3)
	job := func(name string) BatchJob {
		return BatchJobFunc(func(context.Context) (int, error) {
			if step.Add(1) > 3 {
				return 0, nil
			}
			order <- name
			return 1, nil
		})
	}
	require.NoError(t, m.RegisterLifecycleJobs(job("changes"), job("trials"), job("expire")))
	require.NoError(t, m.RegisterUsageResetJob("0 0 * * *", job("reset")))
	require.NoError(t, m.RegisterTrialReminderJob(nil))
	assert.Len(t, m.Jobs(), 3)

	m.Start()
	assert.True(t, m.IsStarted())
	defer m.Stop()

	var got []string
	for range 3 {
		select {
		case name := <-order:
			got = append(got, name)
		case <-time.After(5 * time.Second):
			t.Fatalf("lifecycle jobs did not run, got %v", got)
		}
	}
	assert.Equal(t, []string{"changes", "trials", "expire"}, got)

	require.NoError(t, m.Stop())
	assert.False(t, m.IsStarted())
}

func TestSchedulerManager_RejectsBadCron(t *testing.T) {
	m, err := NewSchedulerManager(logger.NewNop())
	require.NoError(t, err)
	err = m.RegisterUsageResetJob("not a cron", BatchJobFunc(func(context.Context) (int, error) { return 0, nil }))
	assert.Error(t, err)
}

func TestSchedulerManager_RunSurvivesPanics(t *testing.T) {
	m, err := NewSchedulerManager(logger.NewNop())
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.run(context.Background(), "boom", BatchJobFunc(func(context.Context) (int, error) {
			panic("boom")
		}))
	})
}

type fakeResetter struct {
	failFor uint
	calls   []uint
}

func (r *fakeResetter) ResetUsageByPeriod(_ context.Context, sub *subscription.Subscription) (int, error) {
	r.calls = append(r.calls, sub.ID())
	if sub.ID() == r.failFor {
		return 0, stderrors.New("window store unavailable")
	}
	return 2, nil
}

func TestUsageResetJob_VisitsUsableSubscriptions(t *testing.T) {
	store := repotest.New(t)
	ctx := context.Background()
	plan := store.Plan(t, "pro", "10.00", 0)
	now := time.Now().UTC()

	first := store.Subscribe(t, "1", plan, 0, now)
	second := store.Subscribe(t, "2", plan, 0, now)
	cancelled := store.Subscribe(t, "3", plan, 0, now)
	cancelled.Cancel(true, now)
	require.NoError(t, store.Subscriptions.Update(ctx, cancelled))

	resetter := &fakeResetter{failFor: second.ID()}
	job := NewUsageResetJob(store.Subscriptions, resetter, store.Logger)

	opened, err := job.Execute(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "window store unavailable")
	assert.Equal(t, 2, opened)
	assert.Equal(t, []uint{first.ID(), second.ID()}, resetter.calls)
}

type fakeTrials []*subscription.Subscription

func (f fakeTrials) TrialsEndingSoon(context.Context) ([]*subscription.Subscription, error) {
	return f, nil
}

func TestTrialReminderJob_CountsEndingTrials(t *testing.T) {
	store := repotest.New(t)
	plan := store.Plan(t, "pro", "10.00", 7)
	sub := store.Subscribe(t, "1", plan, 7, time.Now().UTC())

	count, err := NewTrialReminderJob(fakeTrials{sub}, store.Logger).Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
