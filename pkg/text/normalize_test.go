package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"lower and trim", "  Corn Flour ", "corn flour"},
		{"collapse", "sugar,\t\tbrown   sugar", "sugar, brown sugar"},
		{"nfkc", "ｓｕｇａｒ", "sugar"},
		{"unicode lower", "CRÈME", "crème"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"commas", "sugar, salt", []string{"sugar", "salt"}},
		{"single chars dropped", "vitamin b, a", []string{"vitamin"}},
		{"slash and parens", "palm and/or coconut oil (organic)", []string{"palm", "and", "or", "coconut", "oil", "organic"}},
		{"digits", "e330 citric_acid", []string{"e330", "citric_acid"}},
		{"no trailing sep", "malic acid", []string{"malic", "acid"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestTokens_SameAfterNormalization(t *testing.T) {
	assert.Equal(t, Tokens("  SUGAR,   Salt"), Tokens("sugar, salt"))
}
