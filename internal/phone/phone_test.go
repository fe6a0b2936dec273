package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0712345678", "254712345678"},
		{"254712345678", "254712345678"},
		{"712345678", "254712345678"},
		{"+254 712 345 678", "254712345678"},
		{"0712-345-678", "254712345678"},
		{"0110123456", "254110123456"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Normalize(c.in), "input %q", c.in)
	}
}

func TestIsValid(t *testing.T) {
	valid := []string{
		"0712345678",
		"254712345678",
		"254100123456",
		"254110123456",
		"0110123456",
		"+254712345678",
	}
	for _, n := range valid {
		assert.True(t, IsValid(n), "expected %q to be valid", n)
	}

	invalid := []string{
		"0612345678",   // local part starts with 6
		"254129123456", // second digit 2 after leading 1
		"071234567",    // too short
		"07123456789",  // too long
		"712345678",    // bare local part without trunk prefix
		"",
	}
	for _, n := range invalid {
		assert.False(t, IsValid(n), "expected %q to be invalid", n)
	}
}
