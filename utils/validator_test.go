package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Email       string `validate:"required,email"`
	Status      string `validate:"oneof=draft sent"`
	StageStatus string `json:"stage_status,omitempty" validate:"required"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(sample{Email: "a@b.co", Status: "sent", StageStatus: "draft"}))

	err := ValidateStruct(sample{Status: "lost"})
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "email is required")
		assert.Contains(t, err.Error(), "status must be one of: draft sent")
		assert.Contains(t, err.Error(), "stage_status is required")
	}
}
