package source

import (
	"fmt"
	"time"

	"sales-dashboard/internal/models"
)

// JSON field names used by the product API.
const (
	fieldCategory = "Categoria do Produto"
	fieldPrice    = "Preço"
	fieldDate     = "Data da Compra"
	fieldLocation = "Local da compra"
	fieldLat      = "lat"
	fieldLon      = "lon"
	fieldSeller   = "Vendedor"
)

// rawRecord mirrors one element of the response array. Pointers tell a
// missing or null field apart from a zero value.
type rawRecord struct {
	Product  *string  `json:"Produto"`
	Category *string  `json:"Categoria do Produto"`
	Price    *float64 `json:"Preço"`
	Date     *string  `json:"Data da Compra"`
	Location *string  `json:"Local da compra"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Seller   *string  `json:"Vendedor"`
}

// MissingFieldError reports a required field absent from record Index.
type MissingFieldError struct {
	Index int
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("record %d: missing field %q", e.Index, e.Field)
}

func (r rawRecord) transaction(index int) (models.Transaction, error) {
	required := []struct {
		name    string
		present bool
	}{
		{fieldCategory, r.Category != nil},
		{fieldPrice, r.Price != nil},
		{fieldDate, r.Date != nil},
		{fieldLocation, r.Location != nil},
		{fieldLat, r.Lat != nil},
		{fieldLon, r.Lon != nil},
		{fieldSeller, r.Seller != nil},
	}
	for _, f := range required {
		if !f.present {
			return models.Transaction{}, &MissingFieldError{Index: index, Field: f.name}
		}
	}

	purchased, err := time.Parse(dateLayout, *r.Date)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("record %d: field %q: %w", index, fieldDate, err)
	}

	tx := models.Transaction{
		Category:     *r.Category,
		Price:        *r.Price,
		PurchaseDate: purchased,
		Location:     *r.Location,
		Lat:          *r.Lat,
		Lon:          *r.Lon,
		Seller:       *r.Seller,
	}
	if r.Product != nil {
		tx.Product = *r.Product
	}
	return tx, nil
}
