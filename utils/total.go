package utils

import "github.com/Madhav-Gupta-28/0xmart-reconciler/models"

// OrderTotal sums price*quantity over the lines. No rounding is applied.
func OrderTotal(items []models.OrderItem) float64 {
	total := 0.0
	for _, it := range items {
		total += it.Price * float64(it.Quantity)
	}
	return total
}

// AuditTotal is the amount recorded when an order is cleaned up: the line
// total plus shipping and fee, minus discount. Absent amounts count as 0.
func AuditTotal(o models.Order) float64 {
	return OrderTotal(o.Items) + valueOr0(o.ShippingFee) + valueOr0(o.Fee) - valueOr0(o.Discount)
}

func valueOr0(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
