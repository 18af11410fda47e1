package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Daskott/tandem/server/auth"
	"github.com/Daskott/tandem/server/auth/key"
	"github.com/Daskott/tandem/server/linking"
	"github.com/Daskott/tandem/server/models"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

// ---------------------------------------------------------------------------------//
// Users
// --------------------------------------------------------------------------------//

func createUser(rw http.ResponseWriter, r *http.Request) {
	data := models.User{}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeErrors(rw, http.StatusBadRequest, "invalid request body")
		return
	}

	if errs := validate.Struct(data); errs != nil {
		writeResponse(rw, ResponsePayload{Errors: validationErrors(errs)}, http.StatusBadRequest)
		return
	}

	_, err := models.FindUserBy("email", models.NormalizeEmail(data.Email))
	if err == nil {
		writeErrors(rw, http.StatusConflict, "a user with that email already exists")
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		writeInternalError(rw, err)
		return
	}

	if err := models.CreateUser(&data); err != nil {
		writeInternalError(rw, err)
		return
	}

	data.Password = ""
	writeResponse(rw, ResponsePayload{Success: true, Data: data}, http.StatusCreated)
}

func findUser(rw http.ResponseWriter, r *http.Request) {
	user, err := models.FindUserBy("id", mux.Vars(r)["uid"])
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeErrors(rw, http.StatusNotFound, "user not found")
		return
	}

	if err != nil {
		writeInternalError(rw, err)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true, Data: user}, http.StatusOK)
}

func updateUser(rw http.ResponseWriter, r *http.Request) {
	var errs []string
	data := make(map[string]interface{})

	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeErrors(rw, http.StatusBadRequest, "invalid request body")
		return
	}

	removeUnknownFields(data, map[string]bool{"first_name": true, "last_name": true, "phone_number": true, "password": true})
	if len(data) <= 0 {
		writeErrors(rw, http.StatusBadRequest, "valid fields required")
		return
	}

	if data["password"] != nil && validate.Var(fmt.Sprint(data["password"]), "password") != nil {
		errs = append(errs, "password must be at least 8 characters without spaces")
	}

	if data["phone_number"] != nil && validate.Var(fmt.Sprint(data["phone_number"]), "e164") != nil {
		errs = append(errs, "phone_number must be in e164 format")
	}

	if len(errs) > 0 {
		writeResponse(rw, ResponsePayload{Errors: errs}, http.StatusBadRequest)
		return
	}

	user, err := models.FindUserBy("id", mux.Vars(r)["uid"])
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeErrors(rw, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeInternalError(rw, err)
		return
	}

	if err := user.Update(data); err != nil {
		writeInternalError(rw, err)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true}, http.StatusOK)
}

func deleteUser(rw http.ResponseWriter, r *http.Request) {
	if err := models.DeleteUser(mux.Vars(r)["uid"]); err != nil {
		writeInternalError(rw, err)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true}, http.StatusOK)
}

func logIn(rw http.ResponseWriter, r *http.Request) {
	data := loginRequest{}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeErrors(rw, http.StatusBadRequest, "invalid request body")
		return
	}

	if errs := validate.Struct(data); errs != nil {
		writeResponse(rw, ResponsePayload{Errors: validationErrors(errs)}, http.StatusBadRequest)
		return
	}

	passwordHash, err := models.FindUserPassword(data.Email)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		writeInternalError(rw, err)
		return
	}

	if !auth.CheckPasswordHash(data.Password, passwordHash) {
		writeErrors(rw, http.StatusUnauthorized, "email/password is invalid")
		return
	}

	user, err := models.FindUserBy("email", models.NormalizeEmail(data.Email))
	if err != nil {
		writeInternalError(rw, err)
		return
	}

	isAdmin, err := user.IsAdmin()
	if err != nil {
		writeInternalError(rw, err)
		return
	}

	token, err := auth.EncodeJWT(auth.NewSessionClaims(user.ID, user.FirstName, user.LastName, isAdmin), authKeyPair)
	if err != nil {
		writeInternalError(rw, err)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true, Data: map[string]string{"token": token}}, http.StatusOK)
}

func jwks(rw http.ResponseWriter, r *http.Request) {
	sessionJWK, err := authKeyPair.JWK()
	if err != nil {
		writeInternalError(rw, err)
		return
	}

	rw.WriteHeader(http.StatusOK)
	json.NewEncoder(rw).Encode(key.ExportJWKAsJWKS(sessionJWK))
}

// ---------------------------------------------------------------------------------//
// Own contact card
// --------------------------------------------------------------------------------//

func findOwnCard(rw http.ResponseWriter, r *http.Request) {
	userID, err := uintVar(r, "uid")
	if err != nil {
		writeErrors(rw, http.StatusBadRequest, "invalid user id")
		return
	}

	card, err := models.FindActiveCardByOwner(r.Context(), userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeErrors(rw, http.StatusNotFound, models.ErrNoActiveCard.Error())
		return
	}
	if err != nil {
		writeInternalError(rw, err)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true, Data: card}, http.StatusOK)
}

func upsertOwnCard(rw http.ResponseWriter, r *http.Request) {
	userID, err := uintVar(r, "uid")
	if err != nil {
		writeErrors(rw, http.StatusBadRequest, "invalid user id")
		return
	}

	input := models.CardInput{}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeErrors(rw, http.StatusBadRequest, "invalid request body")
		return
	}

	if errs := validate.Struct(input); errs != nil {
		writeResponse(rw, ResponsePayload{Errors: validationErrors(errs)}, http.StatusBadRequest)
		return
	}

	card, err := models.UpsertOwnCard(r.Context(), userID, input)
	switch {
	case errors.Is(err, models.ErrUsernameTaken):
		writeErrors(rw, http.StatusConflict, err.Error())
		return
	case errors.Is(err, models.ErrUnknownVisibilityField):
		writeErrors(rw, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		writeInternalError(rw, err)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true, Data: card}, http.StatusOK)
}

func regenerateShareCode(rw http.ResponseWriter, r *http.Request) {
	userID, err := uintVar(r, "uid")
	if err != nil {
		writeErrors(rw, http.StatusBadRequest, "invalid user id")
		return
	}

	card, err := models.RegenerateShareCode(r.Context(), userID)
	if errors.Is(err, models.ErrNoActiveCard) {
		writeErrors(rw, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeInternalError(rw, err)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true, Data: card}, http.StatusOK)
}

func deactivateCard(rw http.ResponseWriter, r *http.Request) {
	userID, err := uintVar(r, "uid")
	if err != nil {
		writeErrors(rw, http.StatusBadRequest, "invalid user id")
		return
	}

	err = models.DeactivateCard(r.Context(), userID)
	if errors.Is(err, models.ErrNoActiveCard) {
		writeErrors(rw, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeInternalError(rw, err)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true}, http.StatusOK)
}

// ---------------------------------------------------------------------------------//
// Contacts
// --------------------------------------------------------------------------------//

func fetchContacts(rw http.ResponseWriter, r *http.Request) {
	userID, err := uintVar(r, "uid")
	if err != nil {
		writeErrors(rw, http.StatusBadRequest, "invalid user id")
		return
	}

	contacts, paging, err := models.FetchContacts(userID, pageQuery(r))
	if err != nil {
		writeInternalError(rw, err)
		return
	}

	writeResponse(rw, ResponsePayload{
		Success: true,
		Data:    map[string]interface{}{"contacts": contacts, "paging": paging},
	}, http.StatusOK)
}

func updateContact(rw http.ResponseWriter, r *http.Request) {
	userID, err := uintVar(r, "uid")
	if err != nil {
		writeErrors(rw, http.StatusBadRequest, "invalid user id")
		return
	}

	data := make(map[string]interface{})
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeErrors(rw, http.StatusBadRequest, "invalid request body")
		return
	}

	removeUnknownFields(data, map[string]bool{"tier": true, "notes": true})
	if len(data) <= 0 {
		writeErrors(rw, http.StatusBadRequest, "valid fields required")
		return
	}

	if tier, ok := data["tier"]; ok && !models.IsValidTier(fmt.Sprint(tier)) {
		writeErrors(rw, http.StatusBadRequest,
			fmt.Sprintf("tier must be one of %s, %s", models.TIER_A_PLAYER, models.TIER_ACQUAINTANCE))
		return
	}

	err = models.UpdateContact(userID, mux.Vars(r)["id"], data)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeErrors(rw, http.StatusNotFound, "contact not found")
		return
	}
	if err != nil {
		writeInternalError(rw, err)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true}, http.StatusOK)
}

func deleteContact(rw http.ResponseWriter, r *http.Request) {
	userID, err := uintVar(r, "uid")
	if err != nil {
		writeErrors(rw, http.StatusBadRequest, "invalid user id")
		return
	}

	err = models.DeleteContact(userID, mux.Vars(r)["id"])
	if errors.Is(err, gorm.ErrRecordNotFound) {
		writeErrors(rw, http.StatusNotFound, "contact not found")
		return
	}
	if err != nil {
		writeInternalError(rw, err)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true}, http.StatusOK)
}

// ---------------------------------------------------------------------------------//
// Mutual links
// --------------------------------------------------------------------------------//

func createLink(rw http.ResponseWriter, r *http.Request) {
	userID, err := uintVar(r, "uid")
	if err != nil {
		writeErrors(rw, http.StatusBadRequest, "invalid user id")
		return
	}

	data := linkRequest{}
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeErrors(rw, http.StatusBadRequest, "invalid request body")
		return
	}

	if errs := validate.Struct(data); errs != nil {
		writeResponse(rw, ResponsePayload{Errors: validationErrors(errs)}, http.StatusBadRequest)
		return
	}

	var outcome *linking.LinkOutcome
	switch {
	case countNonBlank(data.Code, data.Username, data.Scan) != 1:
		writeErrors(rw, http.StatusBadRequest, "exactly one of code, username or scan is required")
		return
	case data.Code != "":
		outcome, err = linker.LinkByCode(r.Context(), userID, strings.ToLower(strings.TrimSpace(data.Code)), data.Tier)
	case data.Username != "":
		outcome, err = linker.LinkByUsername(r.Context(), userID, strings.TrimSpace(data.Username), data.Tier)
	default:
		outcome, err = linker.LinkByScan(r.Context(), userID, data.Scan, data.Tier)
	}

	if err != nil {
		status, msg := linkErrorStatus(err)
		payload := ResponsePayload{Errors: []string{msg}}
		if outcome != nil {
			payload.Data = outcome
		}
		writeResponse(rw, payload, status)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true, Data: outcome}, http.StatusOK)
}

func countNonBlank(values ...string) int {
	count := 0
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			count++
		}
	}
	return count
}

// ---------------------------------------------------------------------------------//
// Public card lookups
// --------------------------------------------------------------------------------//

func findCardByCode(rw http.ResponseWriter, r *http.Request) {
	code := strings.ToLower(strings.TrimSpace(mux.Vars(r)["code"]))
	card, err := linker.Resolver().ResolveByCode(r.Context(), code)
	writePublicCard(rw, card, err)
}

func findCardByUsername(rw http.ResponseWriter, r *http.Request) {
	card, err := linker.Resolver().ResolveByUsername(r.Context(), mux.Vars(r)["username"])
	writePublicCard(rw, card, err)
}

func writePublicCard(rw http.ResponseWriter, card *models.ContactCard, err error) {
	if err != nil {
		status, msg := linkErrorStatus(err)
		writeErrors(rw, status, msg)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true, Data: card.PublicView()}, http.StatusOK)
}

// ---------------------------------------------------------------------------------//
// Admin
// --------------------------------------------------------------------------------//

func jobsStats(rw http.ResponseWriter, r *http.Request) {
	stats, err := models.CurrentJobsStats()
	if err != nil {
		writeInternalError(rw, err)
		return
	}

	writeResponse(rw, ResponsePayload{Success: true, Data: stats}, http.StatusOK)
}
