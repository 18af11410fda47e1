package elevated

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Daskott/tandem/server/models"
)

// Client calls a boundary running in another process.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) WriteReciprocal(ctx context.Context, grant string, targetOwnerID uint, source models.CardDetails) (Status, error) {
	body, err := json.Marshal(ReciprocalRequest{
		CurrentUserID:        fmt.Sprint(targetOwnerID),
		OtherUserContactCard: &source,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RECIPROCAL_CONTACTS_PATH, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(GRANT_HEADER, grant)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	defer resp.Body.Close()

	payload := ReciprocalResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: unreadable response (status %d): %v", ErrWriteFailed, resp.StatusCode, err)
	}

	switch resp.StatusCode {
	case http.StatusCreated:
		return StatusCreated, nil
	case http.StatusOK:
		return StatusAlreadyExists, nil
	case http.StatusForbidden:
		return "", fmt.Errorf("%w: %s", ErrUnauthorizedCaller, payload.Error)
	default:
		return "", fmt.Errorf("%w: status %d: %s", ErrWriteFailed, resp.StatusCode, payload.Error)
	}
}
