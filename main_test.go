package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"dm-service/internal/models"
)

func TestParseParticipantSeed(t *testing.T) {
	got := parseParticipantSeed(" alice:Alice Liddell, bob ,,carol: Carol ")
	assert.Equal(t, []models.Participant{
		{ID: "alice", FullName: "Alice Liddell"},
		{ID: "bob", FullName: "bob"},
		{ID: "carol", FullName: "Carol"},
	}, got)

	assert.Empty(t, parseParticipantSeed(""))
}
