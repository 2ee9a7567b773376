package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type registerPayload struct {
	Name     string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=8"`
}

func TestValidateStruct_Valid(t *testing.T) {
	errs := ValidateStruct(registerPayload{
		Name:     "Alice",
		Email:    "alice@example.com",
		Password: "password123",
	})
	assert.Empty(t, errs)
}

func TestValidateStruct_CollectsAllFailures(t *testing.T) {
	errs := ValidateStruct(registerPayload{
		Email:    "not-an-email",
		Password: "short",
	})
	require.Len(t, errs, 3)

	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}

	assert.Equal(t, "required", byField["Name"].Tag)
	assert.Contains(t, byField["Email"].Message, "valid email")
	assert.Contains(t, byField["Password"].Message, "at least 8")
}
