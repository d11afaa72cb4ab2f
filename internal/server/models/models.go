package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// MaxTitleLength bounds Drink.Title, matching the column width of the drinks table.
const MaxTitleLength = 80

type Ingredient struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Parts int    `json:"parts"`
}

// Recipe is stored as a JSON array in a single text column.
type Recipe []Ingredient

func (r Recipe) Value() (driver.Value, error) {
	if r == nil {
		r = Recipe{}
	}
	b, err := json.Marshal([]Ingredient(r))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *Recipe) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*r = Recipe{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("recipe: unsupported column type %T", src)
	}
	var out []Ingredient
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("recipe: %w", err)
	}
	if out == nil {
		out = []Ingredient{}
	}
	*r = out
	return nil
}

type Drink struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Recipe Recipe `json:"recipe"`
}

// DrinkSummary is the public projection of a Drink.
type DrinkSummary struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// DrinkDetail is the projection served to callers holding get:drinks-detail.
type DrinkDetail struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Recipe Recipe `json:"recipe"`
}

func (d Drink) Summary() DrinkSummary {
	return DrinkSummary{ID: d.ID, Title: d.Title}
}

func (d Drink) Detailed() DrinkDetail {
	recipe := d.Recipe
	if recipe == nil {
		recipe = Recipe{}
	}
	return DrinkDetail{ID: d.ID, Title: d.Title, Recipe: recipe}
}
