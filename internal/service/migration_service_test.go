package service

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/rs/zerolog"

	"shardz/internal/model"
)

type toolCall struct {
	path     string
	password string
	args     []string
}

// cmdRecorder captures every dump/restore invocation and substitutes a
// trivially succeeding or failing process.
type cmdRecorder struct {
	calls  []toolCall
	failOn map[int]bool
}

func (r *cmdRecorder) hook(ctx context.Context, path, password string, args ...string) *exec.Cmd {
	idx := len(r.calls)
	r.calls = append(r.calls, toolCall{path: path, password: password, args: args})
	if r.failOn[idx] {
		return exec.CommandContext(ctx, "false")
	}
	return exec.CommandContext(ctx, "true")
}

func argValue(t *testing.T, args []string, flag string) string {
	t.Helper()
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	t.Fatalf("flag %s not found in %v", flag, args)
	return ""
}

func newMigrationFixture(t *testing.T, failOn map[int]bool) (MigrationService, *fakeTenantRepo, *cmdRecorder) {
	t.Helper()
	rec := &cmdRecorder{failOn: failOn}
	orig := newMigrationCmd
	newMigrationCmd = rec.hook
	t.Cleanup(func() { newMigrationCmd = orig })

	tenants := newFakeTenantRepo()
	tenants.byID["src"] = &model.DatabaseInstance{
		ID: "src", UserID: "u1", Kind: model.KindPostgres,
		Username: "alice_src", DatabaseName: "db_source", Password: "pw-src",
	}
	tenants.byID["dst"] = &model.DatabaseInstance{
		ID: "dst", UserID: "u1", Kind: model.KindPostgres,
		Username: "alice_dst", DatabaseName: "db_dest", Password: "pw-dst",
	}

	svc := NewMigrationService(tenants, "localhost", 5432, "pg_dump", "pg_restore", zerolog.Nop())
	return svc, tenants, rec
}

func TestMigrateTenantDumpsAndRestores(t *testing.T) {
	svc, _, rec := newMigrationFixture(t, nil)

	status, err := svc.MigrateTenant(context.Background(), "u1", "src", "dst")
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if status != MigrationCompleted {
		t.Fatalf("expected completed, got %s", status)
	}
	if len(rec.calls) != 3 {
		t.Fatalf("expected 3 tool calls, got %d", len(rec.calls))
	}

	// Snapshot of the destination first, then the source dump, then the
	// restore into the destination.
	snap := rec.calls[0]
	if snap.path != "pg_dump" || argValue(t, snap.args, "-d") != "db_dest" {
		t.Fatalf("first call should snapshot the destination, got %+v", snap)
	}
	if snap.password != "pw-dst" {
		t.Fatalf("snapshot should use destination credentials, got %q", snap.password)
	}

	dump := rec.calls[1]
	if dump.path != "pg_dump" || argValue(t, dump.args, "-d") != "db_source" {
		t.Fatalf("second call should dump the source, got %+v", dump)
	}
	if dump.password != "pw-src" {
		t.Fatalf("dump should use source credentials, got %q", dump.password)
	}

	restore := rec.calls[2]
	if restore.path != "pg_restore" || argValue(t, restore.args, "-d") != "db_dest" {
		t.Fatalf("third call should restore into the destination, got %+v", restore)
	}
	if restore.args[len(restore.args)-1] != argValue(t, dump.args, "-f") {
		t.Fatal("restore should consume the source dump file")
	}
}

func TestMigrateTenantRollsBackFailedRestore(t *testing.T) {
	svc, _, rec := newMigrationFixture(t, map[int]bool{2: true})

	status, err := svc.MigrateTenant(context.Background(), "u1", "src", "dst")
	if err == nil {
		t.Fatal("expected an error from the failed restore")
	}
	if status != MigrationRolledBack {
		t.Fatalf("expected rolled_back, got %s", status)
	}
	if len(rec.calls) != 4 {
		t.Fatalf("expected 4 tool calls, got %d", len(rec.calls))
	}

	rollback := rec.calls[3]
	snapshotFile := argValue(t, rec.calls[0].args, "-f")
	if rollback.path != "pg_restore" || rollback.args[len(rollback.args)-1] != snapshotFile {
		t.Fatalf("rollback should restore the snapshot, got %+v", rollback)
	}
	if argValue(t, rollback.args, "-d") != "db_dest" {
		t.Fatalf("rollback should target the destination, got %+v", rollback)
	}
}

func TestMigrateTenantManualWhenRollbackFails(t *testing.T) {
	svc, _, _ := newMigrationFixture(t, map[int]bool{2: true, 3: true})

	status, err := svc.MigrateTenant(context.Background(), "u1", "src", "dst")
	if !errors.Is(err, ErrManualIntervention) {
		t.Fatalf("expected ErrManualIntervention, got %v", err)
	}
	if status != MigrationManual {
		t.Fatalf("expected manual intervention status, got %s", status)
	}
}

func TestMigrateTenantSnapshotFailureStopsEarly(t *testing.T) {
	svc, _, rec := newMigrationFixture(t, map[int]bool{0: true})

	if _, err := svc.MigrateTenant(context.Background(), "u1", "src", "dst"); err == nil {
		t.Fatal("expected an error from the failed snapshot")
	}
	if len(rec.calls) != 1 {
		t.Fatalf("expected no further tool calls after snapshot failure, got %d", len(rec.calls))
	}
}

func TestMigrateTenantOwnershipGate(t *testing.T) {
	svc, tenants, rec := newMigrationFixture(t, nil)
	tenants.byID["dst"].UserID = "intruder"

	if _, err := svc.MigrateTenant(context.Background(), "u1", "src", "dst"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if len(rec.calls) != 0 {
		t.Fatalf("no tools should run for a rejected request, got %d calls", len(rec.calls))
	}
}

func TestMigrateTenantRejectsSameTenant(t *testing.T) {
	svc, _, _ := newMigrationFixture(t, nil)

	if _, err := svc.MigrateTenant(context.Background(), "u1", "src", "src"); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestMigrateTenantUnsupportedEngine(t *testing.T) {
	svc, tenants, _ := newMigrationFixture(t, nil)
	tenants.byID["dst"].Kind = model.KindMySQL

	if _, err := svc.MigrateTenant(context.Background(), "u1", "src", "dst"); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
}

func TestMigrateTenantUnknownTenant(t *testing.T) {
	svc, _, _ := newMigrationFixture(t, nil)

	if _, err := svc.MigrateTenant(context.Background(), "u1", "src", "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
