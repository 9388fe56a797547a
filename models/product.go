package models

// Size is a stock bucket of a variant. Stock never goes below zero.
type Size struct {
	Size  string `bson:"size" json:"size"`
	Stock int    `bson:"stock" json:"stock"`
}

type Variant struct {
	VariantID   string   `bson:"variantId" json:"variantId"`
	VariantName string   `bson:"variantName" json:"variantName"`
	Images      []string `bson:"images" json:"images"`
	Sizes       []Size   `bson:"sizes" json:"sizes"`
}

// Item is an inventory document.
type Item struct {
	ID           string    `bson:"_id" json:"id"`
	Manufacturer string    `bson:"manufacturer" json:"manufacturer"`
	Brand        string    `bson:"brand" json:"brand"`
	Name         string    `bson:"name" json:"name"`
	Type         string    `bson:"type" json:"type"`
	Variants     []Variant `bson:"variants" json:"variants"`
}

// FindVariant returns a pointer into the item's variant slice so callers can
// mutate it in place.
func (i *Item) FindVariant(variantID string) *Variant {
	for idx := range i.Variants {
		if i.Variants[idx].VariantID == variantID {
			return &i.Variants[idx]
		}
	}
	return nil
}

func (v *Variant) FindSize(label string) *Size {
	for idx := range v.Sizes {
		if v.Sizes[idx].Size == label {
			return &v.Sizes[idx]
		}
	}
	return nil
}
