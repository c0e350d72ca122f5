package service

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"shardz/internal/model"
	"shardz/internal/repository"
)

// MigrationStatus is the outcome of a tenant migration attempt.
type MigrationStatus string

const (
	MigrationCompleted  MigrationStatus = "completed"
	MigrationRolledBack MigrationStatus = "rolled_back"
	// MigrationManual means the restore failed and rolling the destination
	// back to its snapshot also failed. The destination is in an unknown
	// state and an operator has to intervene.
	MigrationManual MigrationStatus = "manual_intervention_required"
)

// MigrationService copies one database tenant's contents into another using
// the engine's native dump/restore tools.
type MigrationService interface {
	// MigrateTenant snapshots the destination, dumps the source, and restores
	// the dump over the destination. A failed restore is rolled back to the
	// snapshot. Both tenants must belong to the user.
	MigrateTenant(ctx context.Context, userID, sourceID, destID string) (MigrationStatus, error)
}

type migrationService struct {
	tenants repository.TenantRepository

	host        string
	port        int
	dumpPath    string
	restorePath string

	migrationLogger zerolog.Logger
}

// NewMigrationService creates a new MigrationService
func NewMigrationService(
	tenants repository.TenantRepository,
	host string,
	port int,
	dumpPath, restorePath string,
	logger zerolog.Logger,
) MigrationService {
	return &migrationService{
		tenants:         tenants,
		host:            host,
		port:            port,
		dumpPath:        dumpPath,
		restorePath:     restorePath,
		migrationLogger: logger.With().Str("service", "MigrationService").Logger(),
	}
}

// newMigrationCmd builds one dump/restore invocation. Swappable for tests.
// The password travels in the environment, never on the command line.
var newMigrationCmd = func(ctx context.Context, path, password string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+password)
	return cmd
}

func (s *migrationService) MigrateTenant(ctx context.Context, userID, sourceID, destID string) (MigrationStatus, error) {
	if sourceID == destID {
		return "", fmt.Errorf("%w: source and destination are the same tenant", ErrInvalidAmount)
	}

	source, err := s.ownedTenant(ctx, userID, sourceID)
	if err != nil {
		return "", err
	}
	dest, err := s.ownedTenant(ctx, userID, destID)
	if err != nil {
		return "", err
	}

	workdir, err := os.MkdirTemp("", "migrate-")
	if err != nil {
		return "", fmt.Errorf("creating work directory: %w", err)
	}
	defer os.RemoveAll(workdir)

	// Snapshot the destination first so a botched restore can be undone.
	snapshot := filepath.Join(workdir, "snapshot.dump")
	if err := s.dump(ctx, dest, snapshot); err != nil {
		return "", fmt.Errorf("snapshotting destination %s: %w", dest.DatabaseName, err)
	}

	dumpFile := filepath.Join(workdir, "source.dump")
	if err := s.dump(ctx, source, dumpFile); err != nil {
		return "", fmt.Errorf("dumping source %s: %w", source.DatabaseName, err)
	}

	if err := s.restore(ctx, dest, dumpFile); err != nil {
		s.migrationLogger.Error().Err(err).
			Str("source", source.DatabaseName).
			Str("destination", dest.DatabaseName).
			Msg("restore failed, rolling destination back to snapshot")
		if rbErr := s.restore(ctx, dest, snapshot); rbErr != nil {
			s.migrationLogger.Error().Err(rbErr).
				Str("destination", dest.DatabaseName).
				Msg("snapshot rollback failed, destination state unknown")
			return MigrationManual, fmt.Errorf("%w: restore failed (%v) and rollback failed (%v)",
				ErrManualIntervention, err, rbErr)
		}
		return MigrationRolledBack, fmt.Errorf("restoring into %s: %w", dest.DatabaseName, err)
	}

	s.migrationLogger.Info().
		Str("user_id", userID).
		Str("source", source.DatabaseName).
		Str("destination", dest.DatabaseName).
		Msg("tenant migrated")
	return MigrationCompleted, nil
}

func (s *migrationService) ownedTenant(ctx context.Context, userID, tenantID string) (*model.DatabaseInstance, error) {
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
	if inst.Kind != model.KindPostgres {
		return nil, fmt.Errorf("%w: migration for engine %q", ErrNotImplemented, inst.Kind)
	}
	return inst, nil
}

func (s *migrationService) dump(ctx context.Context, inst *model.DatabaseInstance, outFile string) error {
	cmd := newMigrationCmd(ctx, s.dumpPath, inst.Password,
		"-Fc",
		"-h", s.host,
		"-p", strconv.Itoa(s.port),
		"-U", inst.Username,
		"-d", inst.DatabaseName,
		"-f", outFile,
	)
	return runTool(cmd)
}

func (s *migrationService) restore(ctx context.Context, inst *model.DatabaseInstance, dumpFile string) error {
	cmd := newMigrationCmd(ctx, s.restorePath, inst.Password,
		"--clean", "--if-exists", "--no-owner",
		"-h", s.host,
		"-p", strconv.Itoa(s.port),
		"-U", inst.Username,
		"-d", inst.DatabaseName,
		dumpFile,
	)
	return runTool(cmd)
}

func runTool(cmd *exec.Cmd) error {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return fmt.Errorf("%s: %w: %s", cmd.Path, err, msg)
		}
		return fmt.Errorf("%s: %w", cmd.Path, err)
	}
	return nil
}
