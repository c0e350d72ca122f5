package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for expected, user-visible failures. Handlers map these to
// status codes; none of them indicate a server fault.
var (
	ErrQuotaExceeded       = errors.New("quota_exceeded")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not_found")
	ErrNotImplemented      = errors.New("not_implemented")
	ErrPaymentNotFound     = errors.New("payment_not_found")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrNoFile              = errors.New("no_file")
	ErrObjectExists        = errors.New("object_exists")
	ErrUnsupportedFileType = errors.New("unsupported_file_type")
	ErrGateway             = errors.New("gateway_error")
	ErrGatewayTimeout      = errors.New("gateway_timeout")
	ErrManualIntervention  = errors.New("manual_intervention_required")
)

// ProvisioningError reports an engine-level DDL failure while creating a
// tenant. No control-plane record exists when it is returned.
type ProvisioningError struct {
	Step  string
	Cause error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning failed at %s: %v", e.Step, e.Cause)
}

func (e *ProvisioningError) Unwrap() error { return e.Cause }

// DeprovisioningError reports an engine-level DDL failure while destroying a
// tenant. The control-plane record is retained: a stale record is safer than
// lost bookkeeping for a tenant that still exists.
type DeprovisioningError struct {
	Step  string
	Cause error
}

func (e *DeprovisioningError) Error() string {
	return fmt.Sprintf("deprovisioning failed at %s: %v", e.Step, e.Cause)
}

func (e *DeprovisioningError) Unwrap() error { return e.Cause }
