package elevated

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Daskott/tandem/server/models"
)

const (
	RECIPROCAL_CONTACTS_PATH = "/internal/v1/reciprocal-contacts"

	// a card plus ids is a few KB at most
	MAX_REQUEST_BODY_BYTES = 64 << 10
)

// ReciprocalRequest is the wire shape accepted by the boundary. currentUserId is
// the user whose contact list receives the new row.
type ReciprocalRequest struct {
	CurrentUserID        string              `json:"currentUserId"`
	OtherUserContactCard *models.CardDetails `json:"otherUserContactCard"`
}

type ReciprocalResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Handler exposes WriteReciprocal over http
func (e *Executor) Handler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")

		r.Body = http.MaxBytesReader(rw, r.Body, MAX_REQUEST_BODY_BYTES)

		data := ReciprocalRequest{}
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			writeReciprocalResponse(rw, ReciprocalResponse{Error: "invalid request body"}, http.StatusBadRequest)
			return
		}

		if strings.TrimSpace(data.CurrentUserID) == "" || data.OtherUserContactCard == nil {
			writeReciprocalResponse(rw,
				ReciprocalResponse{Error: "currentUserId and otherUserContactCard are required"},
				http.StatusBadRequest,
			)
			return
		}

		targetOwnerID, err := strconv.ParseUint(data.CurrentUserID, 10, 64)
		if err != nil || targetOwnerID == 0 {
			writeReciprocalResponse(rw, ReciprocalResponse{Error: "currentUserId is invalid"}, http.StatusBadRequest)
			return
		}

		source := *data.OtherUserContactCard
		if source.UserID == 0 || strings.TrimSpace(source.Email) == "" {
			writeReciprocalResponse(rw,
				ReciprocalResponse{Error: "otherUserContactCard requires user_id and email"},
				http.StatusBadRequest,
			)
			return
		}

		status, err := e.WriteReciprocal(r.Context(), r.Header.Get(GRANT_HEADER), uint(targetOwnerID), source)
		switch {
		case errors.Is(err, ErrUnauthorizedCaller):
			logg.Warnf("rejected reciprocal write for user %v: %v", targetOwnerID, err)
			writeReciprocalResponse(rw, ReciprocalResponse{Error: ErrUnauthorizedCaller.Error()}, http.StatusForbidden)
		case err != nil:
			writeReciprocalResponse(rw, ReciprocalResponse{Error: ErrWriteFailed.Error()}, http.StatusInternalServerError)
		case status == StatusAlreadyExists:
			writeReciprocalResponse(rw, ReciprocalResponse{Success: true, Message: "contact already exists"}, http.StatusOK)
		default:
			writeReciprocalResponse(rw, ReciprocalResponse{Success: true, Message: "contact created"}, http.StatusCreated)
		}
	})
}

func writeReciprocalResponse(rw http.ResponseWriter, payload ReciprocalResponse, statusCode int) {
	rw.WriteHeader(statusCode)
	json.NewEncoder(rw).Encode(payload)
}
