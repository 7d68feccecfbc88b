package transport

import "github.com/eleven-am/retention/internal/domain"

const leaseSyncComponent = "transport.LeaseSync"

func newTransportConfigError(message string, cause error, opts ...domain.ErrorOption) *domain.DomainError {
	merged := []domain.ErrorOption{domain.WithComponent(leaseSyncComponent)}
	if len(opts) > 0 {
		merged = append(merged, opts...)
	}
	return domain.NewConfigurationError(message, cause, merged...)
}

func newTransportReplicationError(message string, cause error, opts ...domain.ErrorOption) *domain.DomainError {
	merged := []domain.ErrorOption{domain.WithComponent(leaseSyncComponent)}
	if len(opts) > 0 {
		merged = append(merged, opts...)
	}
	return domain.NewReplicationError(message, cause, merged...)
}
