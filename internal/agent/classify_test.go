package agent

import (
	"testing"

	"chatvri/internal/domain"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		content string
		want    domain.MessageClass
	}{
		{"¿Cuál es el correo de enfermería?", domain.ClassDomainQuery},
		{"horario de atención de la FIEI", domain.ClassDomainQuery},
		{"/reset", domain.ClassCommand},
		{"/ayuda", domain.ClassCommand},
		{"//ayuda", domain.ClassCommand},
		{"/help", domain.ClassCommand},
		{"Hola", domain.ClassGreeting},
		{"buenos días", domain.ClassGreeting},
		{"¡Hola!", domain.ClassGreeting},
		{"gracias", domain.ClassTrivial},
		{"ok", domain.ClassTrivial},
		{"👍", domain.ClassTrivial},
		{"", domain.ClassTrivial},
		{"   ", domain.ClassTrivial},
		// Domain keywords override an otherwise trivial message.
		{"ok y el correo?", domain.ClassDomainQuery},
		{"gracias, y el teléfono de minas?", domain.ClassDomainQuery},
		// Greeting plus a real question is a query.
		{"hola, necesito el horario de veterinaria", domain.ClassDomainQuery},
		{"¿qué requisitos hay para presentar mi tesis?", domain.ClassDomainQuery},
		// Off-topic questions get the redirect without touching retrieval.
		{"qué hora es", domain.ClassOffTopic},
		{"cuál es la capital de Francia", domain.ClassOffTopic},
		{"cuéntame un chiste", domain.ClassOffTopic},
		{"cómo está el clima en puno", domain.ClassOffTopic},
		// A domain keyword overrides the off-topic filter.
		{"a qué hora atiende la facultad de enfermería", domain.ClassDomainQuery},
	}

	for _, c := range cases {
		if got := Classify(c.content); got != c.want {
			t.Fatalf("Classify(%q) = %s, want %s", c.content, got, c.want)
		}
	}
}

func TestNormalizeCommand(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/reset", "/reset"},
		{"/RESET", "/reset"},
		{"/reset por favor", "/reset"},
		{"//ayuda", "//ayuda"},
		{"", ""},
	}
	for _, c := range cases {
		if got := normalizeCommand(c.in); got != c.want {
			t.Fatalf("normalizeCommand(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
