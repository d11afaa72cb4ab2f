package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/abdelrahman543873/coffeshop/internal/logging"
	"github.com/abdelrahman543873/coffeshop/internal/server/auth"
	"github.com/abdelrahman543873/coffeshop/internal/server/models"
	"github.com/abdelrahman543873/coffeshop/internal/server/service"
)

type drinkRequest struct {
	Drink *drinkPayload `json:"drink"`
}

type drinkPayload struct {
	ID     int64         `json:"id"`
	Title  string        `json:"title"`
	Recipe models.Recipe `json:"recipe"`
}

type drinksResponse struct {
	Success bool `json:"success"`
	Drinks  any  `json:"drinks"`
}

type deleteResponse struct {
	Success bool  `json:"success"`
	Delete  int64 `json:"delete"`
}

func (r *Router) handleListDrinks(w http.ResponseWriter, req *http.Request) error {
	drinks, err := r.services.Drinks.ListSummary(req.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, drinksResponse{Success: true, Drinks: drinks})
	return nil
}

func (r *Router) handleListDrinksDetail(w http.ResponseWriter, req *http.Request) error {
	drinks, err := r.services.Drinks.ListDetailed(req.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, drinksResponse{Success: true, Drinks: drinks})
	return nil
}

func (r *Router) handleCreateDrink(w http.ResponseWriter, req *http.Request) error {
	body, err := r.decodeDrink(w, req)
	if err != nil {
		return err
	}
	d, err := r.services.Drinks.Create(req.Context(), service.DrinkInput{ID: body.ID, Title: body.Title, Recipe: body.Recipe})
	if err != nil {
		return err
	}
	r.logChange(req, "drink created", d.ID)
	writeJSON(w, http.StatusOK, drinksResponse{Success: true, Drinks: []models.DrinkDetail{d.Detailed()}})
	return nil
}

func (r *Router) handleUpdateDrink(w http.ResponseWriter, req *http.Request) error {
	id, err := drinkID(req)
	if err != nil {
		return err
	}
	body, err := r.decodeDrink(w, req)
	if err != nil {
		return err
	}
	d, err := r.services.Drinks.Update(req.Context(), id, service.DrinkInput{Title: body.Title, Recipe: body.Recipe})
	if err != nil {
		return err
	}
	r.logChange(req, "drink updated", d.ID)
	writeJSON(w, http.StatusOK, drinksResponse{Success: true, Drinks: []models.DrinkDetail{d.Detailed()}})
	return nil
}

func (r *Router) handleDeleteDrink(w http.ResponseWriter, req *http.Request) error {
	id, err := drinkID(req)
	if err != nil {
		return err
	}
	deleted, err := r.services.Drinks.Delete(req.Context(), id)
	if err != nil {
		return err
	}
	r.logChange(req, "drink deleted", deleted)
	writeJSON(w, http.StatusOK, deleteResponse{Success: true, Delete: deleted})
	return nil
}

// drinkID parses the {id} path segment; anything but a positive integer is
// treated as an unknown route.
func drinkID(req *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, statusError(http.StatusNotFound)
	}
	return id, nil
}

func (r *Router) decodeDrink(w http.ResponseWriter, req *http.Request) (drinkPayload, error) {
	if r.maxRequestBytes > 0 {
		req.Body = http.MaxBytesReader(w, req.Body, r.maxRequestBytes)
	}
	var body drinkRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return drinkPayload{}, fmt.Errorf("%w: limit %d bytes", errBodyTooLarge, tooLarge.Limit)
		}
		return drinkPayload{}, fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	if body.Drink == nil {
		return drinkPayload{}, fmt.Errorf("%w: drink object is required", errMalformedBody)
	}
	return *body.Drink, nil
}

func (r *Router) logChange(req *http.Request, msg string, id int64) {
	subject := ""
	if ac, ok := auth.FromContext(req.Context()); ok {
		subject = ac.Subject
	}
	logging.FromContext(req.Context(), r.logger).Info(msg, "drink_id", id, "subject", subject)
}
