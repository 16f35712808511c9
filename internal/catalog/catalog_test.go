package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinLookups(t *testing.T) {
	c := Builtin()

	id, ok := c.VariationID("Regular Haircut")
	require.True(t, ok)
	assert.Equal(t, "7XPUHGDLY4N3H2OWTHMIABKF", id)
	assert.Equal(t, id, c.DefaultVariationID())

	assert.Equal(t, 90*time.Minute, c.Duration("7UKWUIF4CP7YR27FI52DWPEN"))
	assert.Equal(t, "Gold", c.NameFor("7UKWUIF4CP7YR27FI52DWPEN"))

	_, ok = c.VariationID("Mullet Restoration")
	assert.False(t, ok)
	assert.Equal(t, "Unknown Service", c.NameFor("nope"))
}

func TestDuration_UnknownFallsBackToDefault(t *testing.T) {
	c := Builtin()
	assert.Equal(t, DefaultDuration, c.Duration("not-a-service"))
}

func TestTotalDuration(t *testing.T) {
	c := Builtin()
	total := c.TotalDuration([]string{
		"7XPUHGDLY4N3H2OWTHMIABKF", // 30 min
		"ALZZEN4DO6JCNMC6YPXN6DPH", // 10 min
		"unknown",                  // default 30 min
	})
	assert.Equal(t, 70*time.Minute, total)
}

func TestMaxDuration(t *testing.T) {
	assert.Equal(t, 90*time.Minute, Builtin().MaxDuration())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "x")
	assert.Error(t, err)

	_, err = New([]Service{{Name: "Cut", VariationID: "V1", Duration: time.Hour}}, "Shave")
	assert.Error(t, err)

	_, err = New([]Service{{Name: "", VariationID: "V1"}}, "")
	assert.Error(t, err)
}

func TestLoadJSON(t *testing.T) {
	data := []byte(`[
		{"name":"Cut","variation_id":"V1","duration_ms":1800000},
		{"name":"Shave","variation_id":"V2","duration_ms":600000,"default":true}
	]`)
	c, err := LoadJSON(data)
	require.NoError(t, err)
	assert.Equal(t, "V2", c.DefaultVariationID())
	assert.Equal(t, 30*time.Minute, c.Duration("V1"))
	assert.Equal(t, []string{"Cut", "Shave"}, c.ValidNames())

	_, err = LoadJSON([]byte(`{`))
	assert.Error(t, err)
	_, err = LoadJSON([]byte(`[]`))
	assert.Error(t, err)
}
