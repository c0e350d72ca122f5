package dto

// CountsResponseDTO summarizes a user's footprint for the dashboard
type CountsResponseDTO struct {
	Databases      int `json:"databases"`
	StorageObjects int `json:"storage_objects"`
	UnpaidInvoices int `json:"unpaid_invoices"`
}
