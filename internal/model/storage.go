package model

import "time"

// StorageInstance is a quota-limited directory owned by exactly one user.
type StorageInstance struct {
	ID         string    `db:"id" json:"id"`
	UserID     string    `db:"user_id" json:"user_id"`
	Name       string    `db:"name" json:"name"`
	FolderPath string    `db:"folder_path" json:"folder_path"`
	Quota      int64     `db:"quota" json:"quota"`
	UsedSpace  int64     `db:"used_space" json:"used_space"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// StoredObject is the metadata row for one file in a storage instance.
type StoredObject struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	StorageID string    `db:"storage_id" json:"storage_id"`
	Filename  string    `db:"filename" json:"filename"`
	URL       string    `db:"url" json:"url"`
	Size      int64     `db:"size" json:"size"`
	MimeType  string    `db:"mime_type" json:"mime_type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
