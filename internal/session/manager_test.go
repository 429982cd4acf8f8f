package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/user/seller-collector/internal/backoff"
	"github.com/user/seller-collector/internal/domain"
	"github.com/user/seller-collector/internal/monitoring"
)

// promauto registers against the global registry, so the test binary creates
// its metrics once.
var testMetrics = monitoring.NewMetrics()

type fakeAuthClient struct {
	mu            sync.Mutex
	loginCalls    int
	validateCalls int

	loginErr    error
	loginDelay  time.Duration
	blob        []byte
	expiresAt   *time.Time
	validateOK  bool
	validateErr error
}

func (f *fakeAuthClient) Login(ctx context.Context) (*LoginResult, error) {
	f.mu.Lock()
	f.loginCalls++
	f.mu.Unlock()
	if f.loginDelay > 0 {
		time.Sleep(f.loginDelay)
	}
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	blob := f.blob
	if blob == nil {
		blob = []byte("fresh-blob")
	}
	return &LoginResult{CredentialBlob: blob, ExpiresAt: f.expiresAt}, nil
}

func (f *fakeAuthClient) Validate(ctx context.Context, credentialBlob []byte) (bool, error) {
	f.mu.Lock()
	f.validateCalls++
	f.mu.Unlock()
	return f.validateOK, f.validateErr
}

func (f *fakeAuthClient) calls() (logins, validates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.validateCalls
}

func fastPolicy() backoff.Policy {
	return backoff.Policy{Base: time.Millisecond, MaxAttempts: 3}
}

func newTestManager(t *testing.T, kv KV, client AuthClient) *Manager {
	t.Helper()
	store := newTestStore(t, kv)
	m := NewManager(store, fastPolicy(), testMetrics, zap.NewNop())
	m.Register("svc", client)
	return m
}

func TestEnsureValidLogsInWhenNoSession(t *testing.T) {
	client := &fakeAuthClient{}
	m := newTestManager(t, newMemKV(), client)

	handle, err := m.EnsureValid(context.Background(), "svc")
	require.NoError(t, err)
	assert.Equal(t, "svc", handle.ServiceID)
	assert.Equal(t, []byte("fresh-blob"), handle.CredentialBlob)

	logins, validates := client.calls()
	assert.Equal(t, 1, logins)
	assert.Equal(t, 0, validates, "nothing to probe without a record")
}

func TestEnsureValidIdempotentReuse(t *testing.T) {
	client := &fakeAuthClient{}
	m := newTestManager(t, newMemKV(), client)
	ctx := context.Background()

	_, err := m.EnsureValid(ctx, "svc")
	require.NoError(t, err)
	_, err = m.EnsureValid(ctx, "svc")
	require.NoError(t, err)

	logins, validates := client.calls()
	assert.Equal(t, 1, logins, "second call must be a no-op against the valid state")
	assert.Equal(t, 0, validates)
}

func TestEnsureValidProbesLoadedRecord(t *testing.T) {
	kv := newMemKV()
	client := &fakeAuthClient{validateOK: true}
	m := newTestManager(t, kv, client)
	ctx := context.Background()

	// A record persisted by a previous run.
	require.NoError(t, m.store.Save(ctx, &domain.SessionRecord{
		ServiceID:      "svc",
		CredentialBlob: []byte("old-blob"),
		Status:         domain.SessionValid,
	}))

	handle, err := m.EnsureValid(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, []byte("old-blob"), handle.CredentialBlob)

	logins, validates := client.calls()
	assert.Equal(t, 0, logins)
	assert.Equal(t, 1, validates, "loaded record must be probed before first use")

	// Probe result is cached for the rest of the run.
	_, err = m.EnsureValid(ctx, "svc")
	require.NoError(t, err)
	logins, validates = client.calls()
	assert.Equal(t, 0, logins)
	assert.Equal(t, 1, validates)
}

func TestExpiryLadderSkipsProbeForExpiredMetadata(t *testing.T) {
	kv := newMemKV()
	client := &fakeAuthClient{validateOK: true}
	m := newTestManager(t, kv, client)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	require.NoError(t, m.store.Save(ctx, &domain.SessionRecord{
		ServiceID:      "svc",
		CredentialBlob: []byte("stale-blob"),
		ExpiresAt:      &past,
		Status:         domain.SessionValid,
	}))

	handle, err := m.EnsureValid(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh-blob"), handle.CredentialBlob)

	logins, validates := client.calls()
	assert.Equal(t, 1, logins)
	assert.Equal(t, 0, validates, "proactive expiry must not probe")
}

func TestFailedProbeFallsThroughToLogin(t *testing.T) {
	kv := newMemKV()
	client := &fakeAuthClient{validateOK: false}
	m := newTestManager(t, kv, client)
	ctx := context.Background()

	require.NoError(t, m.store.Save(ctx, &domain.SessionRecord{
		ServiceID:      "svc",
		CredentialBlob: []byte("rejected-blob"),
		Status:         domain.SessionValid,
	}))

	handle, err := m.EnsureValid(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, []byte("fresh-blob"), handle.CredentialBlob)

	logins, validates := client.calls()
	assert.Equal(t, 1, validates)
	assert.Equal(t, 1, logins)
}

func TestProbeErrorIsNonFatal(t *testing.T) {
	kv := newMemKV()
	client := &fakeAuthClient{validateErr: errors.New("probe transport down")}
	m := newTestManager(t, kv, client)
	ctx := context.Background()

	require.NoError(t, m.store.Save(ctx, &domain.SessionRecord{
		ServiceID:      "svc",
		CredentialBlob: []byte("unknown-blob"),
		Status:         domain.SessionValid,
	}))

	_, err := m.EnsureValid(ctx, "svc")
	require.NoError(t, err, "probe failure must fall through to login, not surface")
	logins, _ := client.calls()
	assert.Equal(t, 1, logins)
}

func TestLoginRetryCapYieldsAuthError(t *testing.T) {
	client := &fakeAuthClient{loginErr: errors.New("bad credentials")}
	m := newTestManager(t, newMemKV(), client)

	_, err := m.EnsureValid(context.Background(), "svc")
	var authErr *domain.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "svc", authErr.ServiceID)
	assert.Equal(t, 3, authErr.Attempts)

	logins, _ := client.calls()
	assert.Equal(t, 3, logins)
}

func TestProxyAuthErrorNeverRetried(t *testing.T) {
	client := &fakeAuthClient{loginErr: &domain.ProxyAuthError{Err: errors.New("407")}}
	m := newTestManager(t, newMemKV(), client)

	_, err := m.EnsureValid(context.Background(), "svc")
	var proxyErr *domain.ProxyAuthError
	require.ErrorAs(t, err, &proxyErr)

	logins, _ := client.calls()
	assert.Equal(t, 1, logins, "proxy auth failure is a configuration error")
}

func TestNoDoubleLoginUnderContention(t *testing.T) {
	client := &fakeAuthClient{loginDelay: 50 * time.Millisecond}
	m := newTestManager(t, newMemKV(), client)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle, err := m.EnsureValid(ctx, "svc")
			assert.NoError(t, err)
			assert.Equal(t, []byte("fresh-blob"), handle.CredentialBlob)
		}()
	}
	wg.Wait()

	logins, _ := client.calls()
	assert.Equal(t, 1, logins, "second waiter must observe the first login")
}

func TestPersistFailureKeepsSessionInMemory(t *testing.T) {
	kv := newMemKV()
	kv.setErr = errors.New("disk full")
	client := &fakeAuthClient{}
	m := newTestManager(t, kv, client)
	ctx := context.Background()

	handle, err := m.EnsureValid(ctx, "svc")
	require.NoError(t, err, "storage write failure is non-fatal")
	assert.NotNil(t, handle)

	// The in-memory session still short-circuits subsequent calls.
	_, err = m.EnsureValid(ctx, "svc")
	require.NoError(t, err)
	logins, _ := client.calls()
	assert.Equal(t, 1, logins)
}

func TestInvalidateForcesRelogin(t *testing.T) {
	client := &fakeAuthClient{validateOK: true}
	m := newTestManager(t, newMemKV(), client)
	ctx := context.Background()

	_, err := m.EnsureValid(ctx, "svc")
	require.NoError(t, err)

	m.Invalidate(ctx, "svc")

	_, err = m.EnsureValid(ctx, "svc")
	require.NoError(t, err)

	logins, validates := client.calls()
	assert.Equal(t, 2, logins, "invalidated session re-logs-in")
	assert.Equal(t, 0, validates, "reactive expiry must not re-probe a dead session")
}

func TestLoginPersistsBeforeReturn(t *testing.T) {
	kv := newMemKV()
	expires := time.Now().Add(24 * time.Hour)
	client := &fakeAuthClient{expiresAt: &expires}
	m := newTestManager(t, kv, client)
	ctx := context.Background()

	_, err := m.EnsureValid(ctx, "svc")
	require.NoError(t, err)

	record, err := m.store.Load(ctx, "svc")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionValid, record.Status)
	assert.Equal(t, []byte("fresh-blob"), record.CredentialBlob)
	require.NotNil(t, record.ExpiresAt)
}
