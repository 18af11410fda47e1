package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Daskott/tandem/server/auth"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
)

var (
	allFieldsExceptPassword = []string{"id",
		"first_name",
		"last_name",
		"phone_number",
		"email",
		"role_id",
		"created_at",
		"updated_at",
	}

	updatableFields = []string{"first_name",
		"last_name",
		"phone_number",
		"password",
	}
)

type User struct {
	BaseModel
	FirstName   string        `json:"first_name" validate:"required"`
	LastName    string        `json:"last_name" validate:"required"`
	PhoneNumber string        `json:"phone_number" validate:"required,e164" gorm:"not null;unique"`
	Email       string        `json:"email" validate:"required,email" gorm:"not null;unique"`
	Password    string        `json:"password,omitempty" validate:"required,password" gorm:"not null"`
	RoleID      uint          `json:"role_id" gorm:"null"`
	Cards       []ContactCard `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Contacts    []Contact     `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (user *User) FullName() string {
	return strings.TrimSpace(fmt.Sprintf("%s %s", user.FirstName, user.LastName))
}

func (user *User) Update(data map[string]interface{}) error {
	if data["password"] != nil {
		passwordHash, err := auth.HashPassword(data["password"].(string))
		if err != nil {
			return err
		}
		data["password"] = passwordHash
	}

	return db.Model(&User{}).Where("id = ?", user.ID).Select(updatableFields).Updates(data).Error
}

func (user *User) IsAdmin() (bool, error) {
	if user.RoleID == 0 {
		return false, nil
	}

	adminRole, err := FindRole(ADMIN_USER_ROLE)
	if err != nil {
		return false, err
	}

	return adminRole.ID == user.RoleID, nil
}

func FindUserBy(field string, value interface{}) (*User, error) {
	user := User{}
	err := db.Select(allFieldsExceptPassword).First(&user, fmt.Sprintf("%v = ?", field), value).Error
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func UserExists(ctx context.Context, userID uint) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Count(&count).Error
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

func FindUserPassword(email string) (string, error) {
	user := &User{}
	err := db.Select("Password").First(user, "email = ?", NormalizeEmail(email)).Error

	if err != nil {
		return "", err
	}
	return user.Password, nil
}

// CreateUser stores a new user with a hashed password. The very first user
// becomes an admin, everyone after that is a basic user.
func CreateUser(user *User) error {
	passwordHash, err := auth.HashPassword(user.Password)
	if err != nil {
		return err
	}
	user.Password = passwordHash
	user.Email = NormalizeEmail(user.Email)

	roleName := BASIC_USER_ROLE
	exists, err := AtLeastOneUserExists()
	if err != nil {
		return err
	}
	if !exists {
		roleName = ADMIN_USER_ROLE
	}

	role, err := FindRole(roleName)
	if err != nil {
		return err
	}
	user.RoleID = role.ID

	return db.Create(user).Error
}

// DeleteUser hard-deletes a user with their cards & contacts.
// The counterpart copies held by other users are left untouched.
func DeleteUser(id interface{}) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", id).Delete(&Contact{}).Error; err != nil {
			return err
		}

		if err := tx.Where("user_id = ?", id).Delete(&ContactCard{}).Error; err != nil {
			return err
		}

		return tx.Delete(&User{}, id).Error
	})
}

func AtLeastOneUserExists() (bool, error) {
	err := db.First(&User{}).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

// NormalizeEmail is the identity key for contacts, so equivalent unicode forms
// must collapse to the same string
func NormalizeEmail(email string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(email)))
}
