package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"shardz/internal/credgen"
	"shardz/internal/model"
	"shardz/internal/repository"
)

// TenantService provisions and destroys database tenants. Creating a tenant
// generates credentials, runs engine DDL, and opens a postpaid subscription
// keyed to the tenant in a single logical operation.
type TenantService interface {
	CreateTenant(ctx context.Context, userID string, kind model.TenantKind) (*model.DatabaseInstance, error)
	DeleteTenant(ctx context.Context, userID, tenantID string) error
	GetTenant(ctx context.Context, userID, tenantID string) (*model.DatabaseInstance, error)
	ListTenants(ctx context.Context, userID string) ([]model.DatabaseInstance, error)
	// PurgeTenant destroys the tenant backing the given database name without
	// an ownership check. Used by the billing sweep to reclaim delinquent
	// tenants.
	PurgeTenant(ctx context.Context, databaseName string) error
}

// provisioner is the per-engine capability interface. Each supported
// TenantKind maps to one implementation.
type provisioner interface {
	// Provision creates engine-level objects and returns the instance record
	// to persist. It must clean up after itself on failure.
	Provision(ctx context.Context, owner *model.User) (*model.DatabaseInstance, error)
	// Deprovision destroys the engine-level objects for an instance.
	Deprovision(ctx context.Context, inst *model.DatabaseInstance) error
}

type tenantService struct {
	tenants repository.TenantRepository
	users   repository.UserRepository
	subs    repository.SubscriptionRepository
	admin   repository.EngineAdmin

	tenantHost string
	tenantPort int

	tenantLogger zerolog.Logger
}

// NewTenantService creates a new TenantService
func NewTenantService(
	tenants repository.TenantRepository,
	users repository.UserRepository,
	subs repository.SubscriptionRepository,
	admin repository.EngineAdmin,
	tenantHost string,
	tenantPort int,
	logger zerolog.Logger,
) TenantService {
	return &tenantService{
		tenants:      tenants,
		users:        users,
		subs:         subs,
		admin:        admin,
		tenantHost:   tenantHost,
		tenantPort:   tenantPort,
		tenantLogger: logger.With().Str("service", "TenantService").Logger(),
	}
}

func (s *tenantService) provisionerFor(kind model.TenantKind) (provisioner, error) {
	switch kind {
	case model.KindPostgres:
		return &postgresProvisioner{
			admin:  s.admin,
			host:   s.tenantHost,
			port:   s.tenantPort,
			logger: s.tenantLogger,
		}, nil
	case model.KindMySQL, model.KindMongoDB, model.KindSQLite, model.KindFirebase:
		return nil, fmt.Errorf("%w: engine %q", ErrNotImplemented, kind)
	default:
		return nil, fmt.Errorf("%w: unknown engine %q", ErrNotImplemented, kind)
	}
}

// CreateTenant provisions a new tenant for the user. The per-user database
// limit is checked before any engine DDL runs.
func (s *tenantService) CreateTenant(ctx context.Context, userID string, kind model.TenantKind) (*model.DatabaseInstance, error) {
	owner, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if owner == nil {
		return nil, ErrNotFound
	}

	count, err := s.tenants.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if count >= owner.DatabaseLimit {
		return nil, fmt.Errorf("%w: database limit %d reached", ErrQuotaExceeded, owner.DatabaseLimit)
	}

	p, err := s.provisionerFor(kind)
	if err != nil {
		return nil, err
	}

	inst, err := p.Provision(ctx, owner)
	if err != nil {
		return nil, err
	}
	inst.ID = uuid.NewString()
	inst.UserID = userID
	inst.Kind = kind
	inst.CreatedAt = time.Now().UTC()

	plan, err := s.subs.GetPlanByName(ctx, "database")
	if err != nil {
		s.rollbackEngine(ctx, p, inst)
		return nil, err
	}
	if plan == nil {
		s.rollbackEngine(ctx, p, inst)
		return nil, fmt.Errorf("billing plan %q is not seeded", "database")
	}

	sub := &model.Subscription{
		ID:          uuid.NewString(),
		UserID:      userID,
		PlanID:      plan.ID,
		SubFor:      inst.DatabaseName,
		StartDate:   inst.CreatedAt,
		BillingType: model.BillingPostpaid,
		Status:      model.SubscriptionActive,
	}
	if err := s.tenants.CreateWithSubscription(ctx, inst, sub); err != nil {
		s.rollbackEngine(ctx, p, inst)
		return nil, fmt.Errorf("record tenant: %w", err)
	}

	s.tenantLogger.Info().
		Str("user_id", userID).
		Str("database", inst.DatabaseName).
		Str("kind", string(kind)).
		Msg("tenant provisioned")
	return inst, nil
}

// rollbackEngine undoes engine DDL after a post-provision step fails. Best
// effort: a failure here leaves orphaned engine objects and is logged for
// manual cleanup.
func (s *tenantService) rollbackEngine(ctx context.Context, p provisioner, inst *model.DatabaseInstance) {
	if err := p.Deprovision(ctx, inst); err != nil {
		s.tenantLogger.Error().Err(err).
			Str("database", inst.DatabaseName).
			Str("role", inst.Username).
			Msg("rollback failed, engine objects orphaned")
	}
}

// DeleteTenant destroys a tenant the user owns. Engine objects are dropped
// first; the control-plane record is removed only once the DDL succeeds, so
// a DDL failure never orphans a live tenant.
func (s *tenantService) DeleteTenant(ctx context.Context, userID, tenantID string) error {
	inst, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if inst == nil {
		return ErrNotFound
	}
	if inst.UserID != userID {
		return ErrForbidden
	}

	p, err := s.provisionerFor(inst.Kind)
	if err != nil {
		return err
	}
	if err := p.Deprovision(ctx, inst); err != nil {
		return err
	}

	if err := s.tenants.DeleteWithSubscription(ctx, inst.ID, inst.DatabaseName); err != nil {
		// Engine objects are already gone; the stale record needs manual
		// removal.
		s.tenantLogger.Error().Err(err).
			Str("database", inst.DatabaseName).
			Msg("tenant record removal failed after engine teardown")
		return err
	}

	s.tenantLogger.Info().
		Str("user_id", userID).
		Str("database", inst.DatabaseName).
		Msg("tenant destroyed")
	return nil
}

// PurgeTenant destroys a tenant identified by its database name. Unknown
// names are treated as already purged.
func (s *tenantService) PurgeTenant(ctx context.Context, databaseName string) error {
	inst, err := s.tenants.GetByDatabaseName(ctx, databaseName)
	if err != nil {
		return err
	}
	if inst == nil {
		return nil
	}

	p, err := s.provisionerFor(inst.Kind)
	if err != nil {
		return err
	}
	if err := p.Deprovision(ctx, inst); err != nil {
		return err
	}
	if err := s.tenants.DeleteWithSubscription(ctx, inst.ID, inst.DatabaseName); err != nil {
		return err
	}

	s.tenantLogger.Info().
		Str("user_id", inst.UserID).
		Str("database", inst.DatabaseName).
		Msg("delinquent tenant purged")
	return nil
}

// GetTenant retrieves a tenant by ID, enforcing ownership.
func (s *tenantService) GetTenant(ctx context.Context, userID, tenantID string) (*model.DatabaseInstance, error) {
	inst, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, ErrNotFound
	}
	if inst.UserID != userID {
		return nil, ErrForbidden
	}
	return inst, nil
}

// ListTenants returns all tenants owned by the user.
func (s *tenantService) ListTenants(ctx context.Context, userID string) ([]model.DatabaseInstance, error) {
	return s.tenants.ListByUser(ctx, userID)
}

// postgresProvisioner creates and drops PostgreSQL roles and databases
// through the admin connection.
type postgresProvisioner struct {
	admin  repository.EngineAdmin
	host   string
	port   int
	logger zerolog.Logger
}

func (p *postgresProvisioner) Provision(ctx context.Context, owner *model.User) (*model.DatabaseInstance, error) {
	username := credgen.Username(owner.Username)
	dbName := credgen.DatabaseName()
	password := credgen.Password()

	if err := p.admin.CreateRole(ctx, username, password); err != nil {
		return nil, &ProvisioningError{Step: "create role", Cause: err}
	}
	if err := p.admin.CreateDatabase(ctx, dbName, username); err != nil {
		if dropErr := p.admin.DropRole(ctx, username); dropErr != nil {
			p.logger.Error().Err(dropErr).
				Str("role", username).
				Msg("role cleanup failed after database creation error")
		}
		return nil, &ProvisioningError{Step: "create database", Cause: err}
	}

	return &model.DatabaseInstance{
		Username:     username,
		DatabaseName: dbName,
		Password:     password,
		URI:          fmt.Sprintf("postgresql://%s:%s@%s:%d/%s", username, password, p.host, p.port, dbName),
	}, nil
}

func (p *postgresProvisioner) Deprovision(ctx context.Context, inst *model.DatabaseInstance) error {
	if err := p.admin.DropDatabase(ctx, inst.DatabaseName); err != nil {
		return &DeprovisioningError{Step: "drop database", Cause: err}
	}
	if err := p.admin.DropRole(ctx, inst.Username); err != nil {
		return &DeprovisioningError{Step: "drop role", Cause: err}
	}
	return nil
}
