package models

import (
	"fmt"
	"strings"
)

// Category classifies an expense.
type Category string

const (
	CategoryFood      Category = "FOOD"
	CategoryAlcohol   Category = "ALCOHOL"
	CategoryTransport Category = "TRANSPORT"
	CategoryShop      Category = "SHOP"
	CategoryFun       Category = "FUN"
	CategoryHome      Category = "HOME"
	CategoryOther     Category = "OTHER"

	// CategoryRepayment marks an expense that records a settlement payment.
	CategoryRepayment Category = "REPAYMENT"
)

// Categories lists the categories a user can pick for a regular expense.
var Categories = []Category{
	CategoryFood,
	CategoryAlcohol,
	CategoryTransport,
	CategoryShop,
	CategoryFun,
	CategoryHome,
	CategoryOther,
}

// ParseCategory validates a category name. An empty name maps to OTHER.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if c == "" {
		return CategoryOther, nil
	}
	if c == CategoryRepayment {
		return c, nil
	}
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}
