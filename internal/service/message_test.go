package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"compow-alarm/internal/models"
)

func TestMapsURL(t *testing.T) {
	loc := &models.Location{Latitude: -0.0469, Longitude: 37.6494}
	assert.Equal(t, "https://maps.google.com/?q=-0.0469,37.6494", MapsURL(loc))
	assert.Equal(t, "", MapsURL(nil))
}

func TestBuildAlertMessage_WithLocation(t *testing.T) {
	loc := &models.Location{Latitude: -0.0469, Longitude: 37.6494}

	got := BuildAlertMessage("Alice W", "I need help", loc, "14:30:05")

	want := "Alice W: I need help\n\n" +
		"📍 Location: https://maps.google.com/?q=-0.0469,37.6494\n" +
		"⏰ Time: 14:30:05"
	assert.Equal(t, want, got)
}

func TestBuildAlertMessage_WithoutLocation(t *testing.T) {
	got := BuildAlertMessage("Alice W", "I need help", nil, "14:30:05")

	assert.Contains(t, got, "📍 Location: Unavailable")
	assert.Contains(t, got, "⏰ Time: 14:30:05")
}

func TestBuildAlertMessage_AnonymousSender(t *testing.T) {
	got := BuildAlertMessage(models.AnonymousUserName, "I need help", nil, "14:30:05")

	assert.Contains(t, got, "A ComPow User: I need help")
}
