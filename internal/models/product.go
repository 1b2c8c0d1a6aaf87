package models

import "time"

type Product struct {
	ID            string    `bson:"_id" json:"id"`
	Name          string    `bson:"name" json:"name"`
	Price         float64   `bson:"price" json:"price"`
	Description   string    `bson:"description" json:"description"`
	Weight        string    `bson:"weight" json:"weight"`
	ImageURL      string    `bson:"image_url" json:"imageUrl"`
	Available     bool      `bson:"available" json:"available"`
	ProductNumber int64     `bson:"product_number" json:"productNumber"`
	CreatedAt     time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updatedAt"`
}
