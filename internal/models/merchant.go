package models

import "time"

// Merchant is an entry of the merchant collection, created when a
// professional account uploads its business document.
type Merchant struct {
	ID           string    `json:"id" bson:"_id"`
	Email        string    `json:"email" bson:"email"`
	BusinessName string    `json:"businessName" bson:"business_name"`
	FileKey      string    `json:"fileKey" bson:"file_key"`
	FileURL      string    `json:"fileUrl" bson:"file_url"`
	CreatedAt    time.Time `json:"createdAt" bson:"created_at"`
}
