package server

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Daskott/tandem/server/auth"
	"github.com/Daskott/tandem/server/auth/key"
	"github.com/Daskott/tandem/server/elevated"
	"github.com/Daskott/tandem/server/linking"
	"github.com/Daskott/tandem/server/models"
	"github.com/Daskott/tandem/server/ratelimit"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testResponse struct {
	Errors  []string        `json:"errors"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type testUser struct {
	user  *models.User
	token string
}

func generateKeyPair(t *testing.T, kid string) *key.KeyPair {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.Nil(t, err)

	return &key.KeyPair{Kid: kid, PrivateKey: privateKey, PublicKey: &privateKey.PublicKey}
}

// setupTestServer resets the db & returns a router wired like Start does,
// with the elevated boundary in-process
func setupTestServer(t *testing.T, lookupsPerMinute int) *mux.Router {
	return setupTestServerBehindProxies(t, lookupsPerMinute, ratelimit.TrustedProxies{})
}

func setupTestServerBehindProxies(t *testing.T, lookupsPerMinute int, proxies ratelimit.TrustedProxies) *mux.Router {
	models.InitializeTestDb()

	authKeyPair = generateKeyPair(t, key.SESSION_KEY_ID)
	elevatedKeyPair := generateKeyPair(t, key.ELEVATED_KEY_ID)
	executor := elevated.NewExecutor(elevatedKeyPair)
	linker = linking.NewOrchestrator(nil, executor, elevated.NewIssuer(elevatedKeyPair), nil, nil)

	limiter := ratelimit.NewLocalLimiter(ratelimit.PerMinute(lookupsPerMinute))
	t.Cleanup(func() { limiter.Close() })

	return newRouter(limiter, proxies, executor.Handler())
}

func createTestUser(t *testing.T, firstName, phone string) testUser {
	user := &models.User{
		FirstName:   firstName,
		LastName:    "tester",
		Email:       firstName + "@example.com",
		Password:    "very-secure",
		PhoneNumber: phone,
	}
	require.Nil(t, models.CreateUser(user))

	isAdmin, err := user.IsAdmin()
	require.Nil(t, err)

	token, err := auth.EncodeJWT(auth.NewSessionClaims(user.ID, user.FirstName, user.LastName, isAdmin), authKeyPair)
	require.Nil(t, err)

	return testUser{user: user, token: token}
}

func createTestCard(t *testing.T, owner testUser, input models.CardInput) *models.ContactCard {
	card, err := models.UpsertOwnCard(context.Background(), owner.user.ID, input)
	require.Nil(t, err)
	return card
}

func doRequest(t *testing.T, router http.Handler, method, path, token string, body interface{}) (int, testResponse) {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.Nil(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "10.0.0.1:5555"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	resp := testResponse{}
	require.Nil(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return rr.Code, resp
}

func userPath(user testUser, suffix string) string {
	return fmt.Sprintf("%s/users/%d%s", API_PATH_PREFIX, user.user.ID, suffix)
}

func TestLinkOverHTTP(t *testing.T) {
	router := setupTestServer(t, 10)
	ada := createTestUser(t, "ada", "+12345678900")
	alan := createTestUser(t, "alan", "+12345678901")
	createTestCard(t, ada, models.CardInput{Name: "Ada", Email: "ada@example.com"})
	alanCard := createTestCard(t, alan, models.CardInput{Name: "Alan", Email: "alan@example.com", Username: "alan.t"})

	status, resp := doRequest(t, router, http.MethodPost, userPath(ada, "/links"), ada.token,
		map[string]string{"scan": "https://app.example/public/" + alanCard.ShareCode, "tier": models.TIER_A_PLAYER})
	require.Equal(t, http.StatusOK, status, resp.Errors)

	outcome := linking.LinkOutcome{}
	require.Nil(t, json.Unmarshal(resp.Data, &outcome))
	assert.Equal(t, linking.Completed, outcome.State)
	assert.Equal(t, linking.Created, outcome.OwnSide)
	assert.Equal(t, linking.Created, outcome.CounterpartSide)

	// Linking again by username is a no-op on both sides
	status, resp = doRequest(t, router, http.MethodPost, userPath(ada, "/links"), ada.token,
		map[string]string{"username": "alan.t"})
	require.Equal(t, http.StatusOK, status, resp.Errors)
	require.Nil(t, json.Unmarshal(resp.Data, &outcome))
	assert.Equal(t, linking.AlreadyExisted, outcome.OwnSide)
	assert.Equal(t, linking.AlreadyExisted, outcome.CounterpartSide)

	for _, owner := range []testUser{ada, alan} {
		status, resp = doRequest(t, router, http.MethodGet, userPath(owner, "/contacts"), owner.token, nil)
		require.Equal(t, http.StatusOK, status)

		page := struct {
			Contacts []models.Contact `json:"contacts"`
			Paging   models.Paging    `json:"paging"`
		}{}
		require.Nil(t, json.Unmarshal(resp.Data, &page))
		assert.Len(t, page.Contacts, 1)
		assert.Equal(t, int64(1), page.Paging.Total)
	}
}

func TestLinkErrorsOverHTTP(t *testing.T) {
	router := setupTestServer(t, 10)
	ada := createTestUser(t, "ada", "+12345678900")
	alan := createTestUser(t, "alan", "+12345678901")
	adaCard := createTestCard(t, ada, models.CardInput{Name: "Ada", Email: "ada@example.com"})
	alanCard := createTestCard(t, alan, models.CardInput{Name: "Alan", Email: "alan@example.com"})
	grace := createTestUser(t, "grace", "+12345678902")

	cases := []struct {
		description    string
		user           testUser
		body           map[string]string
		expectedStatus int
	}{
		{"Should reject a body without an identifier", ada, map[string]string{}, http.StatusBadRequest},
		{"Should reject a body with two identifiers", ada, map[string]string{"code": alanCard.ShareCode, "username": "alan"}, http.StatusBadRequest},
		{"Should reject an unknown tier", ada, map[string]string{"code": alanCard.ShareCode, "tier": "VIP"}, http.StatusBadRequest},
		{"Should reject a malformed code", ada, map[string]string{"code": "xyz"}, http.StatusBadRequest},
		{"Should reject unreadable scan text", ada, map[string]string{"scan": "hello there"}, http.StatusBadRequest},
		{"Should report an unknown code", ada, map[string]string{"code": "00000000"}, http.StatusNotFound},
		{"Should reject linking to yourself", ada, map[string]string{"code": strings.ToUpper(adaCard.ShareCode)}, http.StatusConflict},
		{"Should require the requester's card", grace, map[string]string{"code": alanCard.ShareCode}, http.StatusPreconditionFailed},
	}

	for _, tc := range cases {
		t.Run(tc.description, func(t *testing.T) {
			status, resp := doRequest(t, router, http.MethodPost, userPath(tc.user, "/links"), tc.user.token, tc.body)
			assert.Equal(t, tc.expectedStatus, status, resp.Errors)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Errors)
		})
	}

	for _, owner := range []testUser{ada, alan, grace} {
		total, err := models.CountContacts(owner.user.ID)
		require.Nil(t, err)
		assert.Equal(t, int64(0), total)
	}
}

func TestProtectedRoutes(t *testing.T) {
	router := setupTestServer(t, 10)
	admin := createTestUser(t, "admin", "+12345678900")
	ada := createTestUser(t, "ada", "+12345678901")
	alan := createTestUser(t, "alan", "+12345678902")

	cases := []struct {
		description    string
		method         string
		path           string
		token          string
		expectedStatus int
	}{
		{"Should require a token", http.MethodGet, userPath(ada, ""), "", http.StatusUnauthorized},
		{"Should reject an invalid token", http.MethodGet, userPath(ada, ""), "not-a-jwt", http.StatusUnauthorized},
		{"Should allow a user to view themselves", http.MethodGet, userPath(ada, ""), ada.token, http.StatusOK},
		{"Should forbid viewing another user", http.MethodGet, userPath(ada, ""), alan.token, http.StatusForbidden},
		{"Should forbid linking for another user", http.MethodPost, userPath(ada, "/links"), alan.token, http.StatusForbidden},
		{"Should allow an admin to view a user", http.MethodGet, userPath(ada, ""), admin.token, http.StatusOK},
		{"Should forbid an admin reading contacts", http.MethodGet, userPath(ada, "/contacts"), admin.token, http.StatusForbidden},
		{"Should forbid non admins from job stats", http.MethodGet, API_PATH_PREFIX + "/admin/jobs/stats", ada.token, http.StatusForbidden},
		{"Should allow admins to view job stats", http.MethodGet, API_PATH_PREFIX + "/admin/jobs/stats", admin.token, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.description, func(t *testing.T) {
			status, _ := doRequest(t, router, tc.method, tc.path, tc.token, map[string]string{})
			assert.Equal(t, tc.expectedStatus, status)
		})
	}
}

func TestPublicCardLookup(t *testing.T) {
	router := setupTestServer(t, 3)
	ada := createTestUser(t, "ada", "+12345678900")
	card := createTestCard(t, ada, models.CardInput{
		Name:             "Ada",
		Email:            "ada@example.com",
		Phone:            "+12345678900",
		Username:         "Ada_L",
		PublicVisibility: map[string]bool{"phone": false},
	})

	status, resp := doRequest(t, router, http.MethodGet,
		API_PATH_PREFIX+"/cards/code/"+strings.ToUpper(card.ShareCode), "", nil)
	require.Equal(t, http.StatusOK, status, resp.Errors)

	view := models.PublicCard{}
	require.Nil(t, json.Unmarshal(resp.Data, &view))
	assert.Equal(t, "ada@example.com", view.Email)
	assert.Empty(t, view.Phone, "Hidden fields must not be served")

	status, _ = doRequest(t, router, http.MethodGet, API_PATH_PREFIX+"/cards/username/ada_l", "", nil)
	assert.Equal(t, http.StatusNotFound, status, "Usernames are case-sensitive")

	status, _ = doRequest(t, router, http.MethodGet, API_PATH_PREFIX+"/cards/username/Ada_L", "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = doRequest(t, router, http.MethodGet, API_PATH_PREFIX+"/cards/code/"+card.ShareCode, "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = doRequest(t, router, http.MethodGet, API_PATH_PREFIX+"/cards/code/"+card.ShareCode, "", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = doRequest(t, router, http.MethodGet, API_PATH_PREFIX+"/cards/code/"+card.ShareCode, "", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)
}

func TestCardLifecycleOverHTTP(t *testing.T) {
	router := setupTestServer(t, 10)
	ada := createTestUser(t, "ada", "+12345678900")
	alan := createTestUser(t, "alan", "+12345678901")
	createTestCard(t, alan, models.CardInput{Name: "Alan", Email: "alan@example.com", Username: "taken"})

	status, _ := doRequest(t, router, http.MethodGet, userPath(ada, "/card"), ada.token, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, resp := doRequest(t, router, http.MethodPut, userPath(ada, "/card"), ada.token,
		map[string]interface{}{"name": "Ada", "email": "ada@example.com", "username": "taken"})
	assert.Equal(t, http.StatusConflict, status, resp.Errors)

	status, resp = doRequest(t, router, http.MethodPut, userPath(ada, "/card"), ada.token,
		map[string]interface{}{"name": "Ada", "email": "ada@example.com", "username": "no"})
	assert.Equal(t, http.StatusBadRequest, status, "Usernames need at least 3 characters")

	status, resp = doRequest(t, router, http.MethodPut, userPath(ada, "/card"), ada.token,
		map[string]interface{}{"name": "Ada", "email": "ada@example.com", "public_visibility": map[string]bool{"shoe_size": false}})
	assert.Equal(t, http.StatusBadRequest, status, resp.Errors)

	status, resp = doRequest(t, router, http.MethodPut, userPath(ada, "/card"), ada.token,
		map[string]interface{}{"name": "Ada", "email": "ada@example.com"})
	require.Equal(t, http.StatusOK, status, resp.Errors)

	card := models.ContactCard{}
	require.Nil(t, json.Unmarshal(resp.Data, &card))
	assert.Len(t, card.ShareCode, models.SHARE_CODE_LENGTH)

	status, resp = doRequest(t, router, http.MethodPost, userPath(ada, "/card/regenerate"), ada.token, nil)
	require.Equal(t, http.StatusOK, status, resp.Errors)

	regenerated := models.ContactCard{}
	require.Nil(t, json.Unmarshal(resp.Data, &regenerated))
	assert.NotEqual(t, card.ShareCode, regenerated.ShareCode)

	status, _ = doRequest(t, router, http.MethodGet, API_PATH_PREFIX+"/cards/code/"+card.ShareCode, "", nil)
	assert.Equal(t, http.StatusNotFound, status, "The old code stops resolving")

	status, _ = doRequest(t, router, http.MethodDelete, userPath(ada, "/card"), ada.token, nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = doRequest(t, router, http.MethodDelete, userPath(ada, "/card"), ada.token, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestContactEditsOverHTTP(t *testing.T) {
	router := setupTestServer(t, 10)
	ada := createTestUser(t, "ada", "+12345678900")
	alan := createTestUser(t, "alan", "+12345678901")
	createTestCard(t, ada, models.CardInput{Name: "Ada", Email: "ada@example.com"})
	alanCard := createTestCard(t, alan, models.CardInput{Name: "Alan", Email: "alan@example.com"})

	_, err := linker.LinkByCode(context.Background(), ada.user.ID, alanCard.ShareCode, "")
	require.Nil(t, err)

	contact, err := models.FindContactByEmail(context.Background(), ada.user.ID, "alan@example.com")
	require.Nil(t, err)
	contactPath := userPath(ada, fmt.Sprintf("/contacts/%d", contact.ID))

	cases := []struct {
		description    string
		body           map[string]interface{}
		expectedStatus int
	}{
		{"Should reject unknown fields only", map[string]interface{}{"email": "x@example.com"}, http.StatusBadRequest},
		{"Should reject an unknown tier", map[string]interface{}{"tier": "VIP"}, http.StatusBadRequest},
		{"Should update tier & notes", map[string]interface{}{"tier": models.TIER_A_PLAYER, "notes": "met at gophercon"}, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.description, func(t *testing.T) {
			status, resp := doRequest(t, router, http.MethodPut, contactPath, ada.token, tc.body)
			assert.Equal(t, tc.expectedStatus, status, resp.Errors)
		})
	}

	contact, err = models.FindContactByEmail(context.Background(), ada.user.ID, "alan@example.com")
	require.Nil(t, err)
	assert.Equal(t, models.TIER_A_PLAYER, contact.Tier)
	assert.Equal(t, "met at gophercon", contact.Notes)

	status, _ := doRequest(t, router, http.MethodPut, userPath(alan, fmt.Sprintf("/contacts/%d", contact.ID)), alan.token,
		map[string]interface{}{"notes": "not mine"})
	assert.Equal(t, http.StatusNotFound, status, "Only the owner's rows are editable")

	status, _ = doRequest(t, router, http.MethodDelete, contactPath, ada.token, nil)
	assert.Equal(t, http.StatusOK, status)

	total, err := models.CountContacts(alan.user.ID)
	require.Nil(t, err)
	assert.Equal(t, int64(1), total, "Deleting one side leaves the other")
}

func TestSignUpAndLogIn(t *testing.T) {
	router := setupTestServer(t, 10)

	newUser := map[string]string{
		"first_name":   "grace",
		"last_name":    "hopper",
		"email":        "Grace@Example.com",
		"phone_number": "+12345678909",
		"password":     "cobol-rocks",
	}

	status, resp := doRequest(t, router, http.MethodPost, API_PATH_PREFIX+"/users", "", newUser)
	require.Equal(t, http.StatusCreated, status, resp.Errors)

	status, _ = doRequest(t, router, http.MethodPost, API_PATH_PREFIX+"/users", "", newUser)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = doRequest(t, router, http.MethodPost, API_PATH_PREFIX+"/login", "",
		map[string]string{"email": "grace@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, resp = doRequest(t, router, http.MethodPost, API_PATH_PREFIX+"/login", "",
		map[string]string{"email": "grace@example.com", "password": "cobol-rocks"})
	require.Equal(t, http.StatusOK, status, resp.Errors)

	data := map[string]string{}
	require.Nil(t, json.Unmarshal(resp.Data, &data))

	claims, err := auth.DecodeSessionJWT(data["token"], authKeyPair)
	require.Nil(t, err)
	assert.Equal(t, "grace", claims.FirstName)
	assert.True(t, claims.IsAdmin, "The first user is an admin")
	assert.WithinDuration(t, time.Now().Add(auth.SESSION_TTL), time.Unix(claims.ExpiresAt, 0), time.Minute)
}

func TestJWKS(t *testing.T) {
	router := setupTestServer(t, 10)

	req := httptest.NewRequest(http.MethodGet, API_PATH_PREFIX+"/jwks", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	jwks := struct {
		Keys []map[string]interface{} `json:"keys"`
	}{}
	require.Nil(t, json.Unmarshal(rr.Body.Bytes(), &jwks))
	require.Len(t, jwks.Keys, 1)
	assert.Equal(t, key.SESSION_KEY_ID, jwks.Keys[0]["kid"])
	assert.Equal(t, "RS256", jwks.Keys[0]["alg"])
}

func TestLookupLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	proxies, err := ratelimit.NewTrustedProxies([]string{"10.0.0.1"})
	require.Nil(t, err)

	cases := []struct {
		description    string
		proxies        ratelimit.TrustedProxies
		remoteAddr     string
		expectedLimits int
	}{
		{"Should limit a direct client rotating X-Forwarded-For", ratelimit.TrustedProxies{}, "10.0.0.1:5555", 8},
		{"Should limit an untrusted peer rotating X-Forwarded-For", proxies, "10.9.9.9:5555", 8},
		{"Should key on forwarded addresses from a trusted proxy", proxies, "10.0.0.1:5555", 0},
	}

	for _, tc := range cases {
		t.Run(tc.description, func(t *testing.T) {
			router := setupTestServerBehindProxies(t, 2, tc.proxies)

			limited := 0
			for i := 0; i < 10; i++ {
				req := httptest.NewRequest(http.MethodGet, API_PATH_PREFIX+"/cards/code/00000000", nil)
				req.RemoteAddr = tc.remoteAddr
				req.Header.Set("X-Forwarded-For", fmt.Sprintf("1.2.3.%d", i))

				rr := httptest.NewRecorder()
				router.ServeHTTP(rr, req)
				if rr.Code == http.StatusTooManyRequests {
					limited++
				}
			}

			assert.Equal(t, tc.expectedLimits, limited)
		})
	}
}

func TestLinkAttemptsAreLimitedPerUser(t *testing.T) {
	router := setupTestServer(t, 2)
	ada := createTestUser(t, "ada", "+12345678900")
	alan := createTestUser(t, "alan", "+12345678901")
	createTestCard(t, ada, models.CardInput{Name: "Ada", Email: "ada@example.com"})

	statuses := []int{}
	for i := 0; i < 5; i++ {
		status, _ := doRequest(t, router, http.MethodPost, userPath(ada, "/links"), ada.token,
			map[string]string{"code": fmt.Sprintf("%08x", i)})
		statuses = append(statuses, status)
	}

	assert.Equal(t, []int{http.StatusNotFound, http.StatusNotFound,
		http.StatusTooManyRequests, http.StatusTooManyRequests, http.StatusTooManyRequests}, statuses)

	status, _ := doRequest(t, router, http.MethodPost, userPath(alan, "/links"), alan.token,
		map[string]string{"code": "00000000"})
	assert.Equal(t, http.StatusNotFound, status, "other users have their own budget")
}
