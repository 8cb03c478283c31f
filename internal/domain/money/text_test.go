package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := map[string]string{
		"  José   Pérez ": "jose perez",
		"ÁRBOL\tÑandú":    "arbol nandu",
		"Depósito\nexitoso": "deposito exitoso",
		"":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeText(in), "input %q", in)
	}
}

func TestContainsExact(t *testing.T) {
	tests := []struct {
		name     string
		haystack string
		needle   string
		want     bool
	}{
		{"whole text", "pruebita", "pruebita", true},
		{"surrounded by spaces", "user pruebita active", "pruebita", true},
		{"punctuation boundary", "(pruebita)", "pruebita", true},
		{"case and accents", "Usuario: PRUÉBITA", "pruebita", true},
		{"underscore suffix is not a boundary", "pruebita_2", "pruebita", false},
		{"digit suffix is not a boundary", "pruebita2", "pruebita", false},
		{"prefix is not a boundary", "xpruebita", "pruebita", false},
		{"second occurrence matches", "pruebita_2 pruebita", "pruebita", true},
		{"empty needle", "anything", "", false},
		{"needle longer than haystack", "ab", "abc", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ContainsExact(tt.haystack, tt.needle))
		})
	}
}

func TestEqualFold(t *testing.T) {
	assert.True(t, EqualFold("Éxito", "exito"))
	assert.False(t, EqualFold("exito", "exitos"))
}
