package models

import "time"

// Cart est le panier serveur d'un utilisateur. Les lignes gardent le nom et
// le prix connus lors du dernier rafraîchissement depuis le catalogue.
type Cart struct {
	UserID    string     `bson:"user_id" json:"userId"`
	Items     []CartItem `bson:"items" json:"items"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updatedAt"`
}

type CartItem struct {
	ProductID string  `bson:"product_id" json:"productId"`
	Name      string  `bson:"name" json:"name"`
	Price     float64 `bson:"price" json:"price"`
	ImageURL  string  `bson:"image_url" json:"imageUrl"`
	Quantity  int     `bson:"quantity" json:"quantity"`
}

func NewCart(userID string) *Cart {
	return &Cart{UserID: userID, Items: []CartItem{}}
}

func (c *Cart) index(productID string) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// Add ajoute une unité du produit.
func (c *Cart) Add(p Product) {
	c.AddQuantity(p, 1)
}

// AddQuantity incrémente la ligne existante ou en ajoute une nouvelle.
// Une quantité inférieure à 1 est ignorée.
func (c *Cart) AddQuantity(p Product, qty int) {
	if qty < 1 {
		return
	}
	if i := c.index(p.ID); i >= 0 {
		c.Items[i].Quantity += qty
		c.Items[i].Name = p.Name
		c.Items[i].Price = p.Price
		c.Items[i].ImageURL = p.ImageURL
		return
	}
	c.Items = append(c.Items, CartItem{
		ProductID: p.ID,
		Name:      p.Name,
		Price:     p.Price,
		ImageURL:  p.ImageURL,
		Quantity:  qty,
	})
}

// SetQuantity ajuste la quantité de delta et retire la ligne si elle tombe à 0.
// Retourne false si le produit n'est pas dans le panier.
func (c *Cart) SetQuantity(productID string, delta int) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	c.Items[i].Quantity += delta
	if c.Items[i].Quantity <= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	}
	return true
}

func (c *Cart) Remove(productID string) bool {
	i := c.index(productID)
	if i < 0 {
		return false
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return true
}

func (c *Cart) Total() float64 {
	var total float64
	for _, item := range c.Items {
		total += item.Price * float64(item.Quantity)
	}
	return RoundCents(total)
}

// Count retourne le nombre d'articles, quantités comprises.
func (c *Cart) Count() int {
	n := 0
	for _, item := range c.Items {
		n += item.Quantity
	}
	return n
}

func (c *Cart) Clear() {
	c.Items = []CartItem{}
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// LineItems retourne les couples produit/quantité à commander.
func (c *Cart) LineItems() []LineItem {
	out := make([]LineItem, 0, len(c.Items))
	for _, item := range c.Items {
		out = append(out, LineItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out
}

// LineItem est une demande (produit, quantité) avant résolution des prix.
type LineItem struct {
	ProductID string `json:"product"`
	Quantity  int    `json:"quantity"`
}
