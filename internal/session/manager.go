package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/user/seller-collector/internal/backoff"
	"github.com/user/seller-collector/internal/domain"
	"github.com/user/seller-collector/internal/monitoring"
)

// LoginResult is what an AuthClient produces on a successful login.
// ExpiresAt is set when the provider exposes its own expiry metadata.
type LoginResult struct {
	CredentialBlob []byte
	ExpiresAt      *time.Time
}

// AuthClient performs the actual authentication against one external
// service. Implementations live with the scraping collaborators.
type AuthClient interface {
	// Login authenticates from scratch. A *domain.ProxyAuthError return is
	// treated as non-retryable.
	Login(ctx context.Context) (*LoginResult, error)
	// Validate probes whether the credential blob is still accepted.
	Validate(ctx context.Context, credentialBlob []byte) (bool, error)
}

// Handle is a usable session passed to collection tasks. Consumers never
// touch the store behind it.
type Handle struct {
	ServiceID      string
	CredentialBlob []byte
}

type serviceState struct {
	mu     sync.Mutex
	client AuthClient
	record *domain.SessionRecord
}

// Manager owns session validity decisions per service. It is safe for
// concurrent use; login for a given service is serialized so concurrent
// expired observers produce exactly one login.
type Manager struct {
	store       *Store
	loginPolicy backoff.Policy
	metrics     *monitoring.Metrics
	logger      *zap.Logger

	mu       sync.Mutex
	services map[string]*serviceState
}

func NewManager(store *Store, loginPolicy backoff.Policy, metrics *monitoring.Metrics, logger *zap.Logger) *Manager {
	return &Manager{
		store:       store,
		loginPolicy: loginPolicy,
		metrics:     metrics,
		logger:      logger,
		services:    make(map[string]*serviceState),
	}
}

// Register binds an AuthClient to a service id. Must be called before any
// EnsureValid for that service.
func (m *Manager) Register(serviceID string, client AuthClient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[serviceID] = &serviceState{client: client}
}

func (m *Manager) state(serviceID string) (*serviceState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.services[serviceID]
	if !ok {
		return nil, fmt.Errorf("no auth client registered for service %q", serviceID)
	}
	return st, nil
}

// EnsureValid returns a usable session for the service, doing the minimum
// necessary work. Decision ladder: a known-valid in-memory session is
// reused with no network call; expiry metadata in the past forces a login
// without probing; otherwise the session is probed and only a failed probe
// falls through to login.
func (m *Manager) EnsureValid(ctx context.Context, serviceID string) (*Handle, error) {
	st, err := m.state(serviceID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	now := time.Now()

	if st.record == nil {
		record, err := m.store.Load(ctx, serviceID)
		switch {
		case err == nil:
			// A record loaded from the store is never trusted blindly; it
			// must pass the expiry ladder below before first use.
			record.Status = domain.SessionUnknown
			st.record = record
		case errors.Is(err, domain.ErrNoSession):
			// Fall through to login.
		default:
			// Treat storage read failures like an absent session.
			m.logger.Warn("session load failed, treating as absent",
				zap.String("service", serviceID), zap.Error(err))
		}
	}

	if st.record != nil {
		switch {
		case st.record.Status == domain.SessionValid && !st.record.Expired(now):
			// Validated earlier in this run; no network call.
			return &Handle{ServiceID: serviceID, CredentialBlob: st.record.CredentialBlob}, nil
		case st.record.Expired(now):
			// Proactive detection: no probe, straight to login.
			m.logger.Info("session expired by metadata",
				zap.String("service", serviceID), zap.Time("expires_at", *st.record.ExpiresAt))
			st.record.Status = domain.SessionExpired
		case st.record.Status != domain.SessionExpired:
			ok, probeErr := st.client.Validate(ctx, st.record.CredentialBlob)
			if probeErr != nil {
				// Probe failures are non-fatal; fall through to login.
				m.logger.Warn("session probe failed",
					zap.String("service", serviceID), zap.Error(probeErr))
			} else if ok {
				st.record.Status = domain.SessionValid
				st.record.LastValidatedAt = now
				m.persist(ctx, st.record)
				return &Handle{ServiceID: serviceID, CredentialBlob: st.record.CredentialBlob}, nil
			}
			st.record.Status = domain.SessionExpired
		}
	}

	record, err := m.login(ctx, serviceID, st.client)
	if err != nil {
		return nil, err
	}
	st.record = record
	return &Handle{ServiceID: serviceID, CredentialBlob: record.CredentialBlob}, nil
}

// Invalidate forces the service's session to EXPIRED, typically after a
// caller received an unauthenticated response from a real operation. The
// next EnsureValid re-logs-in instead of reusing a probe.
func (m *Manager) Invalidate(ctx context.Context, serviceID string) {
	st, err := m.state(serviceID)
	if err != nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.record == nil {
		return
	}
	st.record.Status = domain.SessionExpired
	m.persist(ctx, st.record)
	m.logger.Info("session invalidated", zap.String("service", serviceID))
}

func (m *Manager) login(ctx context.Context, serviceID string, client AuthClient) (*domain.SessionRecord, error) {
	var result *LoginResult
	attempt := 0

	err := m.loginPolicy.Retry(ctx, func(ctx context.Context) error {
		attempt++
		m.logger.Info("login attempt",
			zap.String("service", serviceID),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", m.loginPolicy.MaxAttempts))
		res, err := client.Login(ctx)
		if err != nil {
			m.metrics.IncLogins(serviceID, "failure")
			var proxyErr *domain.ProxyAuthError
			if errors.As(err, &proxyErr) {
				// Configuration error, retrying cannot help.
				return backoff.Permanent(err)
			}
			return err
		}
		m.metrics.IncLogins(serviceID, "success")
		result = res
		return nil
	})
	if err != nil {
		var proxyErr *domain.ProxyAuthError
		if errors.As(err, &proxyErr) {
			return nil, err
		}
		return nil, &domain.AuthError{ServiceID: serviceID, Attempts: attempt, Err: err}
	}

	record := &domain.SessionRecord{
		ServiceID:       serviceID,
		CredentialBlob:  result.CredentialBlob,
		ExpiresAt:       result.ExpiresAt,
		LastValidatedAt: time.Now(),
		Status:          domain.SessionValid,
	}
	// Persist before returning so a restart can reuse the session. Write
	// failures keep the session in memory for the rest of the run.
	m.persist(ctx, record)
	m.logger.Info("login successful", zap.String("service", serviceID))
	return record, nil
}

func (m *Manager) persist(ctx context.Context, record *domain.SessionRecord) {
	if err := m.store.Save(ctx, record); err != nil {
		m.logger.Warn("session persist failed, keeping in memory",
			zap.String("service", record.ServiceID), zap.Error(err))
	}
}
