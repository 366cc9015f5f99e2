package knowledge

import "strings"

// Intent classifies what kind of document a query is after. It drives
// the doc-type bonus during scoring.
type Intent string

const (
	IntentContact  Intent = "contacto"
	IntentSchedule Intent = "horario"
	IntentLocation Intent = "ubicacion"
	IntentResearch Intent = "investigacion"
	IntentNone     Intent = ""
)

var intentKeywords = map[Intent][]string{
	IntentContact:  {"correo", "email", "mail", "teléfono", "telefono", "celular", "número", "numero", "contacto", "fono"},
	IntentSchedule: {"horario", "hora", "atención", "atencion", "cuándo", "cuando"},
	IntentLocation: {"ubicación", "ubicacion", "dónde", "donde", "lugar", "dirección", "direccion", "oficina"},
	IntentResearch: {"tesis", "investigación", "investigacion", "proyecto", "repositorio", "publicación", "publicacion"},
}

// DetectIntent returns the first intent whose keywords appear in the
// query. Contact wins ties because it is the most common request.
func DetectIntent(query string) Intent {
	q := strings.ToLower(query)
	for _, intent := range []Intent{IntentContact, IntentSchedule, IntentLocation, IntentResearch} {
		for _, kw := range intentKeywords[intent] {
			if strings.Contains(q, kw) {
				return intent
			}
		}
	}
	return IntentNone
}

// matchesIntent reports whether a document type satisfies an intent.
func matchesIntent(docType string, intent Intent) bool {
	if intent == IntentNone {
		return false
	}
	dt := strings.ToLower(docType)
	switch intent {
	case IntentContact:
		return strings.Contains(dt, "contacto") || strings.Contains(dt, "directorio")
	case IntentSchedule:
		return strings.Contains(dt, "horario")
	case IntentLocation:
		return strings.Contains(dt, "ubicacion") || strings.Contains(dt, "ubicación")
	case IntentResearch:
		return strings.Contains(dt, "investigacion") || strings.Contains(dt, "investigación") || strings.Contains(dt, "tesis")
	}
	return false
}
