package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGroupKindReceivesLocation(t *testing.T) {
	assert.False(t, GroupKindStandard.ReceivesLocation())
	assert.True(t, GroupKindDispatch.ReceivesLocation())
	assert.True(t, GroupKindEmergency.ReceivesLocation())
}

func TestGroupPermissionCanTransmit(t *testing.T) {
	assert.True(t, PermissionAdmin.CanTransmit())
	assert.True(t, PermissionModerator.CanTransmit())
	assert.True(t, PermissionMember.CanTransmit())
	assert.False(t, PermissionObserver.CanTransmit())
}

func TestValidStatus(t *testing.T) {
	assert.True(t, ValidStatus(StatusOnline))
	assert.True(t, ValidStatus(StatusEmergency))
	assert.False(t, ValidStatus(UserStatus("asleep")))
}
