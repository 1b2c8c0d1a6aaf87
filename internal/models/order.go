package models

import (
	"math"
	"time"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusCompleted  OrderStatus = "completed"
	StatusCancelled  OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusShipped, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// OrderItem fige le nom et le prix du produit au moment de la commande.
type OrderItem struct {
	ProductID string  `bson:"product_id" json:"product"`
	Name      string  `bson:"name" json:"name"`
	Price     float64 `bson:"price" json:"price"`
	Quantity  int     `bson:"quantity" json:"quantity"`
}

func (i OrderItem) Subtotal() float64 {
	return i.Price * float64(i.Quantity)
}

type Order struct {
	ID         string      `bson:"_id" json:"id"`
	UserID     string      `bson:"user_id" json:"user"`
	Items      []OrderItem `bson:"items" json:"products"`
	TotalPrice float64     `bson:"total_price" json:"totalPrice"`
	Status     OrderStatus `bson:"status" json:"status"`
	Completed  bool        `bson:"completed" json:"completed"`
	Ticket     int64       `bson:"ticket" json:"ticket"`
	CreatedAt  time.Time   `bson:"created_at" json:"createdAt"`
	UpdatedAt  time.Time   `bson:"updated_at" json:"updatedAt"`
}

// UserOrder est la vue administrateur d'une commande, avec le nom du client.
type UserOrder struct {
	Order
	Username string `json:"username"`
}

// ItemsTotal somme les sous-totaux, arrondie au centime.
func ItemsTotal(items []OrderItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Subtotal()
	}
	return RoundCents(total)
}

func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// LineItems retourne les couples produit/quantité de la commande.
func (o *Order) LineItems() []LineItem {
	out := make([]LineItem, 0, len(o.Items))
	for _, item := range o.Items {
		out = append(out, LineItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}
