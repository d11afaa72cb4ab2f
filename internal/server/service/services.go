package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/abdelrahman543873/coffeshop/internal/server/models"
)

var (
	// ErrEmptyCollection is returned by the list operations when no drinks exist.
	ErrEmptyCollection = errors.New("no drinks on the menu")
	ErrValidation      = errors.New("validation error")
	// ErrCreateFailed wraps any repository failure during create.
	ErrCreateFailed = errors.New("drink could not be created")
)

type Repository interface {
	ListDrinks(ctx context.Context) ([]models.Drink, error)
	GetDrink(ctx context.Context, id int64) (models.Drink, error)
	CreateDrink(ctx context.Context, d models.Drink) (models.Drink, error)
	UpdateDrink(ctx context.Context, id int64, title string, recipe models.Recipe) (models.Drink, error)
	DeleteDrink(ctx context.Context, id int64) (int64, error)
}

type Services struct {
	Drinks *DrinksService
}

func NewServices(repo Repository) *Services {
	return &Services{Drinks: &DrinksService{repo: repo}}
}

// DrinkInput is the caller-supplied part of a drink. A nil Recipe on update
// leaves the stored recipe untouched; a zero ID on create lets the store
// assign one.
type DrinkInput struct {
	ID     int64
	Title  string
	Recipe models.Recipe
}

// DrinksService implements the menu operations on top of a Repository.
type DrinksService struct {
	repo Repository
}

func (s *DrinksService) ListSummary(ctx context.Context) ([]models.DrinkSummary, error) {
	drinks, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.DrinkSummary, 0, len(drinks))
	for _, d := range drinks {
		out = append(out, d.Summary())
	}
	return out, nil
}

func (s *DrinksService) ListDetailed(ctx context.Context) ([]models.DrinkDetail, error) {
	drinks, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.DrinkDetail, 0, len(drinks))
	for _, d := range drinks {
		out = append(out, d.Detailed())
	}
	return out, nil
}

func (s *DrinksService) list(ctx context.Context) ([]models.Drink, error) {
	drinks, err := s.repo.ListDrinks(ctx)
	if err != nil {
		return nil, err
	}
	if len(drinks) == 0 {
		return nil, ErrEmptyCollection
	}
	return drinks, nil
}

func (s *DrinksService) Create(ctx context.Context, in DrinkInput) (models.Drink, error) {
	if in.ID < 0 {
		return models.Drink{}, fmt.Errorf("%w: id must be positive", ErrValidation)
	}
	title, err := validateTitle(in.Title)
	if err != nil {
		return models.Drink{}, err
	}
	if len(in.Recipe) == 0 {
		return models.Drink{}, fmt.Errorf("%w: recipe needs at least one ingredient", ErrValidation)
	}
	if err := validateRecipe(in.Recipe); err != nil {
		return models.Drink{}, err
	}
	d, err := s.repo.CreateDrink(ctx, models.Drink{ID: in.ID, Title: title, Recipe: in.Recipe})
	if err != nil {
		return models.Drink{}, fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}
	return d, nil
}

// Update overwrites the title and, when supplied, the recipe of drink id.
func (s *DrinksService) Update(ctx context.Context, id int64, in DrinkInput) (models.Drink, error) {
	current, err := s.repo.GetDrink(ctx, id)
	if err != nil {
		return models.Drink{}, err
	}
	title, err := validateTitle(in.Title)
	if err != nil {
		return models.Drink{}, err
	}
	recipe := current.Recipe
	if in.Recipe != nil {
		if len(in.Recipe) == 0 {
			return models.Drink{}, fmt.Errorf("%w: recipe needs at least one ingredient", ErrValidation)
		}
		if err := validateRecipe(in.Recipe); err != nil {
			return models.Drink{}, err
		}
		recipe = in.Recipe
	}
	return s.repo.UpdateDrink(ctx, current.ID, title, recipe)
}

func (s *DrinksService) Delete(ctx context.Context, id int64) (int64, error) {
	if _, err := s.repo.GetDrink(ctx, id); err != nil {
		return 0, err
	}
	return s.repo.DeleteDrink(ctx, id)
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", fmt.Errorf("%w: title is required", ErrValidation)
	}
	if utf8.RuneCountInString(title) > models.MaxTitleLength {
		return "", fmt.Errorf("%w: title longer than %d characters", ErrValidation, models.MaxTitleLength)
	}
	return title, nil
}

func validateRecipe(recipe models.Recipe) error {
	for i, ing := range recipe {
		if strings.TrimSpace(ing.Name) == "" {
			return fmt.Errorf("%w: ingredient %d has no name", ErrValidation, i)
		}
		if ing.Parts < 1 {
			return fmt.Errorf("%w: ingredient %d needs at least one part", ErrValidation, i)
		}
	}
	return nil
}
