package models

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestUpsertContact(t *testing.T) {
	InitializeTestDb()
	ctx := context.Background()
	owner := createTestUser(t, "ada", "ada@example.com")
	counterpart := CardDetails{UserID: 42, Name: "Alan", Email: "Alan@Example.com", Services: []string{"crypto"}}

	created, err := UpsertContact(ctx, owner.ID, counterpart, TIER_A_PLAYER, ADDED_VIA_QR_CODE)
	require.Nil(t, err)
	assert.True(t, created)

	counterpart.Name = "Alan Mathison Turing"
	created, err = UpsertContact(ctx, owner.ID, counterpart, TIER_ACQUAINTANCE, ADDED_VIA_SHARE_CODE)
	require.Nil(t, err)
	assert.False(t, created, "second write for the same email should be a no-op")

	contact, err := FindContactByEmail(ctx, owner.ID, "alan@example.com")
	require.Nil(t, err)
	assert.Equal(t, "Alan", contact.Name, "existing row should be left unchanged")
	assert.Equal(t, TIER_A_PLAYER, contact.Tier)
	assert.Equal(t, ADDED_VIA_QR_CODE, contact.AddedVia)
	assert.Equal(t, []string{"crypto"}, contact.Services)
	assert.False(t, contact.AddedDate.IsZero())

	total, err := CountContacts(owner.ID)
	require.Nil(t, err)
	assert.Equal(t, int64(1), total)
}

func TestUpsertContactRejectsUnknownValues(t *testing.T) {
	InitializeTestDb()
	ctx := context.Background()
	counterpart := CardDetails{Name: "Alan", Email: "alan@example.com"}

	testCases := []struct {
		description string
		tier        string
		addedVia    string
	}{
		{description: "unknown tier", tier: "Best friend", addedVia: ADDED_VIA_SHARE_CODE},
		{description: "unknown added_via", tier: TIER_A_PLAYER, addedVia: "carrier pigeon"},
	}

	for _, tc := range testCases {
		created, err := UpsertContact(ctx, 1, counterpart, tc.tier, tc.addedVia)
		assert.False(t, created, tc.description)
		assert.True(t, errors.Is(err, ErrWriteFailed), tc.description)
	}
}

func TestUpdateContact(t *testing.T) {
	InitializeTestDb()
	ctx := context.Background()
	owner := createTestUser(t, "ada", "ada@example.com")
	stranger := createTestUser(t, "eve", "eve@example.com")

	_, err := UpsertContact(ctx, owner.ID, CardDetails{Name: "Alan", Email: "alan@example.com"},
		TIER_ACQUAINTANCE, ADDED_VIA_SHARE_CODE)
	require.Nil(t, err)
	contact, err := FindContactByEmail(ctx, owner.ID, "alan@example.com")
	require.Nil(t, err)

	err = UpdateContact(owner.ID, contact.ID, map[string]interface{}{
		"tier": TIER_A_PLAYER, "notes": "met at the conference", "email": "changed@example.com",
	})
	require.Nil(t, err)

	contact, err = FindContactByEmail(ctx, owner.ID, "alan@example.com")
	require.Nil(t, err, "email is not editable")
	assert.Equal(t, TIER_A_PLAYER, contact.Tier)
	assert.Equal(t, "met at the conference", contact.Notes)

	err = UpdateContact(owner.ID, contact.ID, map[string]interface{}{"tier": "Nemesis"})
	assert.NotNil(t, err)

	err = UpdateContact(stranger.ID, contact.ID, map[string]interface{}{"notes": "mine now"})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	assert.ErrorIs(t, DeleteContact(stranger.ID, contact.ID), gorm.ErrRecordNotFound)
	assert.Nil(t, DeleteContact(owner.ID, contact.ID))
	assert.ErrorIs(t, DeleteContact(owner.ID, contact.ID), gorm.ErrRecordNotFound)
}

func TestFetchContacts(t *testing.T) {
	InitializeTestDb()
	ctx := context.Background()
	owner := createTestUser(t, "ada", "ada@example.com")

	for i := 0; i < DEFAULT_PAGE_SIZE+5; i++ {
		_, err := UpsertContact(ctx, owner.ID, CardDetails{Name: fmt.Sprintf("contact %v", i),
			Email: fmt.Sprintf("contact%v@example.com", i)}, TIER_ACQUAINTANCE, ADDED_VIA_SHARE_CODE)
		require.Nil(t, err)
	}

	testCases := []struct {
		description   string
		page          int
		expectedCount int
		expectedPage  int64
	}{
		{description: "first page", page: 1, expectedCount: DEFAULT_PAGE_SIZE, expectedPage: 1},
		{description: "last page", page: 2, expectedCount: 5, expectedPage: 2},
		{description: "page past the end", page: 3, expectedCount: 0, expectedPage: 3},
		{description: "non positive page defaults to first", page: 0, expectedCount: DEFAULT_PAGE_SIZE, expectedPage: 1},
	}

	for _, tc := range testCases {
		contacts, paging, err := FetchContacts(owner.ID, tc.page)
		require.Nil(t, err, tc.description)
		assert.Len(t, contacts, tc.expectedCount, tc.description)
		assert.Equal(t, tc.expectedPage, paging.Page, tc.description)
		assert.Equal(t, int64(DEFAULT_PAGE_SIZE+5), paging.Total, tc.description)
		assert.Equal(t, int64(2), paging.Pages, tc.description)
	}
}

func TestDeleteUserKeepsCounterpartCopies(t *testing.T) {
	InitializeTestDb()
	ctx := context.Background()
	ada := createTestUser(t, "ada", "ada@example.com")
	alan := createTestUser(t, "alan", "alan@example.com")

	_, err := UpsertOwnCard(ctx, ada.ID, CardInput{Name: "Ada", Email: "ada@example.com"})
	require.Nil(t, err)
	_, err = UpsertContact(ctx, ada.ID, CardDetails{UserID: alan.ID, Name: "Alan", Email: "alan@example.com"},
		TIER_ACQUAINTANCE, ADDED_VIA_SHARE_CODE)
	require.Nil(t, err)
	_, err = UpsertContact(ctx, alan.ID, CardDetails{UserID: ada.ID, Name: "Ada", Email: "ada@example.com"},
		TIER_ACQUAINTANCE, ADDED_VIA_SHARE_CODE)
	require.Nil(t, err)

	require.Nil(t, DeleteUser(ada.ID))

	_, err = FindUserBy("id", ada.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = FindActiveCardByOwner(ctx, ada.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	adaContacts, err := CountContacts(ada.ID)
	require.Nil(t, err)
	assert.Equal(t, int64(0), adaContacts)

	_, err = FindContactByEmail(ctx, alan.ID, "ada@example.com")
	assert.Nil(t, err, "alan keeps his copy of ada")
}
