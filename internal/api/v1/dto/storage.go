package dto

import "time"

// StorageCreateDTO is used for incoming storage provisioning requests
type StorageCreateDTO struct {
	Name string `json:"name" validate:"required,min=1,max=64"`
}

// StorageResponseDTO is returned in API responses
type StorageResponseDTO struct {
	StorageID string    `json:"storage_id"`
	Name      string    `json:"name"`
	Quota     int64     `json:"quota"`
	UsedSpace int64     `json:"used_space"`
	CreatedAt time.Time `json:"created_at"`
}

// ObjectResponseDTO is returned in API responses
type ObjectResponseDTO struct {
	ObjectID  string    `json:"object_id"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	Size      int64     `json:"size"`
	MimeType  string    `json:"mime_type"`
	CreatedAt time.Time `json:"created_at"`
}
