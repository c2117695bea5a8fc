package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPriorityForType(t *testing.T) {
	cases := []struct {
		alertType AlertType
		priority  int
	}{
		{AlertTypeSOS, 5},
		{AlertTypeManDown, 4},
		{AlertTypeMedical, 4},
		{AlertTypeSafety, 3},
		{AlertTypeCommunicationLost, 3},
		{AlertTypeDeviceFailure, 2},
		{AlertType("UNKNOWN"), 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.priority, PriorityForType(tc.alertType), "type %s", tc.alertType)
	}
}
