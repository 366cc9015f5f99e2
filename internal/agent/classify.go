package agent

import (
	"strings"

	"chatvri/internal/domain"
)

var greetings = []string{
	"hola", "buenos días", "buenos dias", "buenas tardes",
	"buenas noches", "buenas", "hello", "hi", "saludos", "alo", "aló",
}

var trivialPhrases = []string{
	"gracias", "muchas gracias", "ok", "okay", "vale", "ya",
	"entendido", "perfecto", "genial", "bien", "listo", "de acuerdo",
	"muy amable", "excelente", "👍", "👌",
}

// offTopicKeywords mark questions the bot cannot answer (general
// knowledge, small talk about time or weather, jokes). A domain keyword
// in the same message overrides them.
var offTopicKeywords = []string{
	"hora", "fecha", "día", "dia", "clima", "tiempo", "chiste",
	"partido", "fútbol", "futbol", "matemática", "matematica", "calcula",
	"capital", "país", "pais", "presidente", "receta", "traduce",
}

// domainKeywords force full processing even when a message also looks
// trivial ("ok y el correo?") or off-topic ("a qué hora atiende la
// facultad").
var domainKeywords = []string{
	"correo", "email", "teléfono", "telefono", "celular", "horario",
	"ubicación", "ubicacion", "dónde", "donde", "facultad", "escuela",
	"tesis", "investigación", "investigacion", "proyecto", "repositorio",
	"trámite", "tramite", "requisito", "convocatoria", "beca",
	"vicerrectorado", "director", "coordinador", "contacto",
}

// Classify tags an inbound message so the dispatcher can short-circuit
// canned interactions without touching retrieval or generation.
func Classify(content string) domain.MessageClass {
	text := strings.ToLower(strings.TrimSpace(content))
	if text == "" {
		return domain.ClassTrivial
	}

	if strings.HasPrefix(text, "/") {
		return domain.ClassCommand
	}

	for _, kw := range domainKeywords {
		if strings.Contains(text, kw) {
			return domain.ClassDomainQuery
		}
	}

	stripped := strings.Trim(text, "¡!¿?.,;: ")
	for _, g := range greetings {
		if stripped == g {
			return domain.ClassGreeting
		}
	}
	for _, t := range trivialPhrases {
		if stripped == t {
			return domain.ClassTrivial
		}
	}

	// Exact greetings like "buenos días" never reach this scan, so a
	// día or tiempo here really is small talk.
	for _, kw := range offTopicKeywords {
		if strings.Contains(text, kw) {
			return domain.ClassOffTopic
		}
	}

	// Very short non-question fragments are treated as trivial noise.
	if len([]rune(stripped)) <= 2 && !strings.Contains(text, "?") {
		return domain.ClassTrivial
	}

	return domain.ClassDomainQuery
}

// normalizeCommand extracts the command word: "/reset por favor" is
// "/reset".
func normalizeCommand(content string) string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(content)))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
