package eventhandler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-academy/internal/domain/certificate"
	"github.com/alem-hub/alem-academy/internal/domain/shared"
	"github.com/alem-hub/alem-academy/internal/infrastructure/messaging"
)

type memoryCertCache struct {
	byCode map[string]*certificate.Certificate
	err    error
}

func (c *memoryCertCache) GetByCode(_ context.Context, code string) (*certificate.Certificate, error) {
	if cert, ok := c.byCode[code]; ok {
		return cert, nil
	}
	return nil, shared.ErrCertificateNotFound
}

func (c *memoryCertCache) Set(_ context.Context, cert *certificate.Certificate) error {
	if c.err != nil {
		return c.err
	}
	c.byCode[cert.Code] = cert
	return nil
}

func TestOnCertificateIssued_WarmsCache(t *testing.T) {
	cache := &memoryCertCache{byCode: map[string]*certificate.Certificate{}}
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{})
	defer bus.Close()
	require.NoError(t, NewOnCertificateIssuedHandler(cache, nil).Register(bus))

	issuedAt := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	require.NoError(t, bus.Publish(shared.NewEnrollmentCompletedEvent("enr-1", "learner-1", "course-1")))
	require.NoError(t, bus.Publish(shared.NewCertificateIssuedEvent("enr-1", "cert-1", "CERT-AAAA-BBBB-CCCC-D", "learner-1", "course-1", issuedAt, false)))

	require.Len(t, cache.byCode, 1)
	cert := cache.byCode["CERT-AAAA-BBBB-CCCC-D"]
	require.NotNil(t, cert)
	assert.Equal(t, "cert-1", cert.ID)
	assert.Equal(t, "enr-1", cert.EnrollmentID)
	assert.Equal(t, "learner-1", cert.LearnerID)
	assert.Equal(t, issuedAt, cert.IssuedAt)
}

func TestOnCertificateIssued_IgnoresOtherEvents(t *testing.T) {
	cache := &memoryCertCache{byCode: map[string]*certificate.Certificate{}}
	h := NewOnCertificateIssuedHandler(cache, nil)

	assert.NoError(t, h.Handle(shared.NewEnrollmentReopenedEvent("enr-1", "learner-1", "course-1", 50)))
	assert.Empty(t, cache.byCode)
}

func TestOnCertificateIssued_ReportsCacheFailure(t *testing.T) {
	errDown := errors.New("redis down")
	h := NewOnCertificateIssuedHandler(&memoryCertCache{byCode: map[string]*certificate.Certificate{}, err: errDown}, nil)

	err := h.Handle(shared.NewCertificateIssuedEvent("enr-1", "cert-1", "CERT-AAAA-BBBB-CCCC-D", "learner-1", "course-1", time.Now(), true))
	assert.ErrorIs(t, err, errDown)
}

func TestAuditLog_AcceptsEveryEvent(t *testing.T) {
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{EnableMetrics: true})
	defer bus.Close()
	h := NewAuditLogHandler(nil)
	require.NoError(t, h.Register(bus))

	events := []shared.Event{
		shared.NewEnrollmentCreatedEvent("enr-1", "learner-1", "course-1"),
		shared.NewItemCompletionChangedEvent("enr-1", "learner-1", "course-1", "item-1", true, 100),
		shared.NewEnrollmentCompletedEvent("enr-1", "learner-1", "course-1"),
		shared.NewCertificateIssuedEvent("enr-1", "cert-1", "CERT-AAAA-BBBB-CCCC-D", "learner-1", "course-1", time.Now(), false),
	}
	for _, e := range events {
		assert.NoError(t, h.Handle(e))
		require.NoError(t, bus.Publish(e))
	}
	assert.Equal(t, int64(1), bus.Metrics().Published(shared.EventItemCompletionChanged))
}
