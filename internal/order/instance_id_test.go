package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInstanceID_Deterministic(t *testing.T) {
	in := CartItemInput{ProductID: 42, Price: 9.5, Quantity: 2}
	id1 := GenerateInstanceID(in)
	id2 := GenerateInstanceID(in)
	require.Equal(t, id1, id2)
	assert.Len(t, id1, 32) // 16 bytes hex-encoded
}

func TestGenerateInstanceID_DifferentPriceDiffers(t *testing.T) {
	a := GenerateInstanceID(CartItemInput{ProductID: 1, Price: 10})
	b := GenerateInstanceID(CartItemInput{ProductID: 1, Price: 11})
	assert.NotEqual(t, a, b)
}

func TestGenerateInstanceID_TinyManualDiscountIgnored(t *testing.T) {
	tiny := 0.001
	a := GenerateInstanceID(CartItemInput{ProductID: 1, Price: 10})
	b := GenerateInstanceID(CartItemInput{ProductID: 1, Price: 10, ManualDiscountPercent: &tiny})
	assert.Equal(t, a, b, "a manual discount under the 0.01 threshold must not change identity")
}

func TestGenerateInstanceID_MaterialManualDiscountDiffers(t *testing.T) {
	d := 10.0
	a := GenerateInstanceID(CartItemInput{ProductID: 1, Price: 10})
	b := GenerateInstanceID(CartItemInput{ProductID: 1, Price: 10, ManualDiscountPercent: &d})
	assert.NotEqual(t, a, b)
}

func TestGenerateInstanceID_OptionsAffectIdentity(t *testing.T) {
	a := GenerateInstanceID(CartItemInput{ProductID: 1, Price: 10})
	b := GenerateInstanceID(CartItemInput{ProductID: 1, Price: 10, SelectedOptions: []SelectedOption{
		{AttributeID: 1, OptionID: 2, Quantity: 1},
	}})
	assert.NotEqual(t, a, b)
}

func TestGenerateInstanceID_SpecificationAffectsIdentity(t *testing.T) {
	a := GenerateInstanceID(CartItemInput{ProductID: 1, Price: 10})
	b := GenerateInstanceID(CartItemInput{ProductID: 1, Price: 10, Specification: &Specification{ID: 7}})
	assert.NotEqual(t, a, b)
}
