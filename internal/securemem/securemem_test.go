package securemem

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringRevealAndRedaction(t *testing.T) {
	s := NewString("sk-ant-123456789")
	defer s.Destroy()

	assert.Equal(t, "sk-ant-123456789", s.Reveal())
	assert.Equal(t, 16, s.Len())
	assert.Equal(t, "***", s.String())
	assert.Equal(t, "***", fmt.Sprintf("%v", s))

	data, err := json.Marshal(struct {
		Key *String `json:"key"`
	}{s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"***"}`, string(data))
}

func TestStringEmptyAndBlank(t *testing.T) {
	var nilStr *String
	assert.True(t, nilStr.IsEmpty())
	assert.True(t, nilStr.IsBlank())
	assert.Equal(t, "", nilStr.Reveal())

	empty := NewString("")
	assert.True(t, empty.IsEmpty())
	assert.Equal(t, "", empty.String())

	blank := NewString("   \t")
	assert.False(t, blank.IsEmpty())
	assert.True(t, blank.IsBlank())
}

func TestStringEqualAndClone(t *testing.T) {
	s := NewString("secret")
	c := s.Clone()

	assert.True(t, s.Equal("secret"))
	assert.False(t, s.Equal("Secret"))

	s.Destroy()
	assert.True(t, s.IsEmpty())
	assert.True(t, c.Equal("secret"), "clone must survive destroying the original")
}

func TestStringWithValue(t *testing.T) {
	s := NewString("abc")
	var seen string
	s.WithValue(func(v string) { seen = v })
	assert.Equal(t, "abc", seen)

	var nilStr *String
	nilStr.WithValue(func(v string) { seen = v })
	assert.Equal(t, "", seen)
}
