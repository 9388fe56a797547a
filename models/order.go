package models

import (
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "Pending"
	PaymentStatusPaid     PaymentStatus = "Paid"
	PaymentStatusFailed   PaymentStatus = "Failed"
	PaymentStatusRefunded PaymentStatus = "Refunded"
)

// OrderItem is one line of an order. Price is the unit price at the time
// the order was placed.
type OrderItem struct {
	ItemID    string  `bson:"itemId" json:"itemId" validate:"required"`
	VariantID string  `bson:"variantId" json:"variantId" validate:"required"`
	Size      string  `bson:"size" json:"size" validate:"required"`
	Quantity  int     `bson:"quantity" json:"quantity" validate:"gt=0"`
	Price     float64 `bson:"price" json:"price" validate:"gte=0"`
}

type Order struct {
	ID            string        `bson:"_id" json:"id"`
	UserID        string        `bson:"userId,omitempty" json:"userId,omitempty"`
	Items         []OrderItem   `bson:"items" json:"items"`
	PaymentStatus PaymentStatus `bson:"paymentStatus" json:"paymentStatus"`
	PaymentMethod string        `bson:"paymentMethod,omitempty" json:"paymentMethod,omitempty"`
	Fee           *float64      `bson:"fee,omitempty" json:"fee,omitempty"`
	ShippingFee   *float64      `bson:"shippingFee,omitempty" json:"shippingFee,omitempty"`
	Discount      *float64      `bson:"discount,omitempty" json:"discount,omitempty"`
	Email         string        `bson:"email,omitempty" json:"email,omitempty"`
	Phone         string        `bson:"phone,omitempty" json:"phone,omitempty"`
	CreatedAt     time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time     `bson:"updatedAt" json:"updatedAt"`
}
