package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "PRAÇA SUL", NormalizeKey("  praça sul "))
	assert.Equal(t, "", NormalizeKey("   "))
}

func TestNormalizePlate(t *testing.T) {
	assert.Equal(t, "ABC1234", NormalizePlate("AB#C12-34"))
	assert.Equal(t, "ABCD123", NormalizePlate("ABCD-1234XYZ"))
	assert.Equal(t, "BRA2E19", NormalizePlate("bra2e19"))
	assert.Equal(t, "", NormalizePlate("###"))
}

func TestNormalizeMatchKey(t *testing.T) {
	assert.Equal(t, "SP330", NormalizeMatchKey("SP-330"))
	assert.Equal(t, "SP330", NormalizeMatchKey(" sp 330 "))
}

func TestNormalizeKm(t *testing.T) {
	assert.Equal(t, "145", NormalizeKm("145+200"))
	assert.Equal(t, "145", NormalizeKm(" 145 "))
	assert.Equal(t, "145500", NormalizeKm("145,500"))
}
