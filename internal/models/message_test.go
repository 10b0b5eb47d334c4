package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayloadValidate(t *testing.T) {
	assert.ErrorIs(t, Payload{}.Validate(), ErrEmptyPayload)
	assert.ErrorIs(t, Payload{Text: " \t\n", Image: "  "}.Validate(), ErrEmptyPayload)
	assert.NoError(t, Payload{Text: " hi "}.Validate())
	assert.NoError(t, Payload{Image: "https://cdn.example/a.png"}.Validate())
}
