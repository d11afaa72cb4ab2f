package repository

import "github.com/abdelrahman543873/coffeshop/internal/server/models"

// SeedDrink is the sample drink inserted when a store is reset with seeding.
func SeedDrink() models.Drink {
	return models.Drink{
		Title:  "water",
		Recipe: models.Recipe{{Name: "water", Color: "blue", Parts: 1}},
	}
}
