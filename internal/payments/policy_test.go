package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateFinalFare(t *testing.T) {
	cfg := testPolicyConfig()

	assert.NoError(t, ValidateFinalFare(cfg, 20.00, 20.00))
	assert.NoError(t, ValidateFinalFare(cfg, 20.00, 22.00), "exactly at tolerance")
	assert.NoError(t, ValidateFinalFare(cfg, 20.00, 18.00))

	assert.Error(t, ValidateFinalFare(cfg, 20.00, 22.50))
	assert.Error(t, ValidateFinalFare(cfg, 20.00, 17.00))
	assert.Error(t, ValidateFinalFare(cfg, 0, 10.00))
	assert.Error(t, ValidateFinalFare(cfg, 20.00, -1))
}

func TestEmergencyNumber(t *testing.T) {
	cfg := testPolicyConfig()

	assert.Equal(t, "911", EmergencyNumber(cfg, "US"))
	assert.Equal(t, "911", EmergencyNumber(cfg, " us "))
	assert.Equal(t, "999", EmergencyNumber(cfg, "GB"))
	assert.Equal(t, "112", EmergencyNumber(cfg, "XX"), "unknown country falls back to default")
}
