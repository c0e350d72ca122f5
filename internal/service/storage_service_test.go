package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"shardz/internal/model"
	"shardz/internal/repository"
)

type fakeStorageRepo struct {
	instances map[string]*model.StorageInstance
	objects   map[string]*model.StoredObject

	createObjectErr error
}

func newFakeStorageRepo() *fakeStorageRepo {
	return &fakeStorageRepo{
		instances: make(map[string]*model.StorageInstance),
		objects:   make(map[string]*model.StoredObject),
	}
}

func (f *fakeStorageRepo) Create(_ context.Context, s *model.StorageInstance) error {
	f.instances[s.ID] = s
	return nil
}

func (f *fakeStorageRepo) GetByUserID(_ context.Context, userID string) (*model.StorageInstance, error) {
	for _, s := range f.instances {
		if s.UserID == userID {
			return s, nil
		}
	}
	return nil, nil
}

func (f *fakeStorageRepo) ReserveSpace(_ context.Context, storageID string, delta int64) error {
	s := f.instances[storageID]
	if s.UsedSpace+delta > s.Quota {
		return repository.ErrQuotaExceeded
	}
	s.UsedSpace += delta
	return nil
}

func (f *fakeStorageRepo) ReleaseSpace(_ context.Context, storageID string, n int64) error {
	s := f.instances[storageID]
	s.UsedSpace -= n
	if s.UsedSpace < 0 {
		s.UsedSpace = 0
	}
	return nil
}

func (f *fakeStorageRepo) CreateObject(_ context.Context, o *model.StoredObject) error {
	if f.createObjectErr != nil {
		return f.createObjectErr
	}
	f.objects[o.ID] = o
	return nil
}

func (f *fakeStorageRepo) GetObjectByName(_ context.Context, storageID, filename string) (*model.StoredObject, error) {
	for _, o := range f.objects {
		if o.StorageID == storageID && o.Filename == filename {
			return o, nil
		}
	}
	return nil, nil
}

func (f *fakeStorageRepo) GetObjectByID(_ context.Context, id string) (*model.StoredObject, error) {
	return f.objects[id], nil
}

func (f *fakeStorageRepo) ListObjects(_ context.Context, storageID string) ([]model.StoredObject, error) {
	var out []model.StoredObject
	for _, o := range f.objects {
		if o.StorageID == storageID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeStorageRepo) DeleteObject(_ context.Context, id string, size int64, storageID string) error {
	delete(f.objects, id)
	return f.ReleaseSpace(context.Background(), storageID, size)
}

func (f *fakeStorageRepo) CountObjectsByUser(_ context.Context, userID string) (int, error) {
	n := 0
	for _, o := range f.objects {
		if o.UserID == userID {
			n++
		}
	}
	return n, nil
}

func newStorageFixture(t *testing.T, quota int64) (*fakeStorageRepo, StorageService) {
	t.Helper()
	storage := newFakeStorageRepo()
	subs := newFakeSubRepo()
	subs.plans["storage"] = &model.Plan{ID: "plan-st", Name: "storage", Price: 300}
	svc := NewStorageService(storage, subs, t.TempDir(), quota, "http://localhost:8080", zerolog.Nop())
	return storage, svc
}

func TestCreateInstanceOnePerUser(t *testing.T) {
	_, svc := newStorageFixture(t, 1024)

	inst, err := svc.CreateInstance(context.Background(), "u1", "alice-files")
	if err != nil {
		t.Fatalf("CreateInstance returned error: %v", err)
	}
	if fi, err := os.Stat(inst.FolderPath); err != nil || !fi.IsDir() {
		t.Fatalf("instance folder missing: %v", err)
	}

	// A repeat call is a no-op returning the existing instance.
	again, err := svc.CreateInstance(context.Background(), "u1", "again")
	if err != nil {
		t.Fatalf("second CreateInstance returned error: %v", err)
	}
	if again.ID != inst.ID {
		t.Fatalf("second call created a new instance: %s vs %s", again.ID, inst.ID)
	}
}

func TestUploadRoundTrip(t *testing.T) {
	storage, svc := newStorageFixture(t, 1024)
	inst, err := svc.CreateInstance(context.Background(), "u1", "alice-files")
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}

	content := "hello, tenant"
	obj, err := svc.Upload(context.Background(), "u1", "notes.txt", "text/plain", strings.NewReader(content), int64(len(content)))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(inst.FolderPath, obj.Filename))
	if err != nil {
		t.Fatalf("reading uploaded file: %v", err)
	}
	if string(data) != content {
		t.Fatalf("file holds %q, want %q", data, content)
	}
	if storage.instances[inst.ID].UsedSpace != int64(len(content)) {
		t.Fatalf("used space %d, want %d", storage.instances[inst.ID].UsedSpace, len(content))
	}

	if err := svc.DeleteObject(context.Background(), "u1", obj.ID); err != nil {
		t.Fatalf("DeleteObject returned error: %v", err)
	}
	if storage.instances[inst.ID].UsedSpace != 0 {
		t.Fatalf("delete must release the object's space, used %d", storage.instances[inst.ID].UsedSpace)
	}
	if _, err := os.Stat(filepath.Join(inst.FolderPath, obj.Filename)); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("file must be removed from disk")
	}
}

func TestUploadQuotaExceededLeavesNothing(t *testing.T) {
	storage, svc := newStorageFixture(t, 10)
	inst, err := svc.CreateInstance(context.Background(), "u1", "alice-files")
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}

	content := "this is larger than ten bytes"
	_, err = svc.Upload(context.Background(), "u1", "big.txt", "text/plain", strings.NewReader(content), int64(len(content)))
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if storage.instances[inst.ID].UsedSpace != 0 {
		t.Fatalf("rejected upload must not consume quota, used %d", storage.instances[inst.ID].UsedSpace)
	}
	entries, err := os.ReadDir(inst.FolderPath)
	if err != nil {
		t.Fatalf("reading instance folder: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("rejected upload left %d files on disk", len(entries))
	}
}

func TestUploadReleasesReservationOnRecordFailure(t *testing.T) {
	storage, svc := newStorageFixture(t, 1024)
	inst, err := svc.CreateInstance(context.Background(), "u1", "alice-files")
	if err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	storage.createObjectErr = errors.New("constraint violation")

	content := "payload"
	if _, err := svc.Upload(context.Background(), "u1", "a.txt", "text/plain", strings.NewReader(content), int64(len(content))); err == nil {
		t.Fatal("expected error")
	}
	if storage.instances[inst.ID].UsedSpace != 0 {
		t.Fatalf("failed upload must release its reservation, used %d", storage.instances[inst.ID].UsedSpace)
	}
	entries, _ := os.ReadDir(inst.FolderPath)
	if len(entries) != 0 {
		t.Fatalf("failed upload left %d files on disk", len(entries))
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	_, svc := newStorageFixture(t, 1024)
	if _, err := svc.CreateInstance(context.Background(), "u1", "alice-files"); err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}

	_, err := svc.Upload(context.Background(), "u1", "run.exe", "application/octet-stream", strings.NewReader("MZ"), 2)
	if !errors.Is(err, ErrUnsupportedFileType) {
		t.Fatalf("expected ErrUnsupportedFileType, got %v", err)
	}
}

func TestUploadRejectsDuplicateFilename(t *testing.T) {
	_, svc := newStorageFixture(t, 1024)
	if _, err := svc.CreateInstance(context.Background(), "u1", "alice-files"); err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}

	if _, err := svc.Upload(context.Background(), "u1", "a.txt", "text/plain", strings.NewReader("x"), 1); err != nil {
		t.Fatalf("first upload: %v", err)
	}
	if _, err := svc.Upload(context.Background(), "u1", "a.txt", "text/plain", strings.NewReader("y"), 1); !errors.Is(err, ErrObjectExists) {
		t.Fatalf("expected ErrObjectExists, got %v", err)
	}
}

func TestDeleteObjectOwnershipGate(t *testing.T) {
	storage, svc := newStorageFixture(t, 1024)
	if _, err := svc.CreateInstance(context.Background(), "u1", "alice-files"); err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	obj, err := svc.Upload(context.Background(), "u1", "a.txt", "text/plain", strings.NewReader("x"), 1)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if err := svc.DeleteObject(context.Background(), "intruder", obj.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if storage.objects[obj.ID] == nil {
		t.Fatal("object must survive a forbidden delete")
	}
}
