package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signInBody struct {
	Credential string `json:"credential" validate:"required"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Role       string `validate:"omitempty,oneof=user admin"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		err := ValidateStruct(&signInBody{Credential: "token", Email: "ada@example.com"})
		assert.NoError(t, err)
	})

	t.Run("missing required field uses json name", func(t *testing.T) {
		err := ValidateStruct(&signInBody{})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Equal(t, "credential is required", fields["credential"])
	})

	t.Run("invalid email", func(t *testing.T) {
		err := ValidateStruct(&signInBody{Credential: "token", Email: "not-an-email"})
		require.Error(t, err)
		assert.Contains(t, GetValidationFields(err), "email")
	})

	t.Run("field without json tag keeps go name", func(t *testing.T) {
		err := ValidateStruct(&signInBody{Credential: "token", Role: "root"})
		require.Error(t, err)
		assert.Equal(t, "Role must be one of: user admin", GetValidationFields(err)["Role"])
	})
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email   string
		wantErr bool
	}{
		{email: "ada@example.com"},
		{email: "ops+admin@lab.example.co"},
		{email: "", wantErr: true},
		{email: "ada@", wantErr: true},
		{email: "ada.example.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Message: "Test validation error",
		Fields:  map[string]string{"credential": "credential is required"},
	}

	assert.Equal(t, "Test validation error", err.Error())
	assert.True(t, err.HasField("credential"))
	assert.False(t, err.HasField("email"))
	assert.True(t, IsValidationError(err))
	assert.False(t, IsValidationError(assert.AnError))
	assert.Nil(t, GetValidationFields(assert.AnError))
}
