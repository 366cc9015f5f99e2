package agent

import (
	"fmt"
	"strings"

	"chatvri/internal/domain"
)

// systemPrompt frames every generation call. The assistant answers only
// from the supplied context, in Spanish, briefly (WhatsApp messages).
const systemPrompt = `Eres el asistente virtual del Vicerrectorado de Investigación de la Universidad Nacional del Altiplano de Puno.

Reglas:
- Responde SOLO con la información del CONTEXTO proporcionado.
- Si el contexto no contiene la respuesta, di que no tienes esa información y sugiere contactar al Vicerrectorado de Investigación.
- Responde en español, de forma breve y directa (es un chat de WhatsApp).
- No inventes correos, teléfonos, nombres ni fechas.
- No menciones que usas un "contexto" ni cómo funcionas internamente.`

// PromptBuilder assembles the user-side prompt from retrieved documents
// and recent conversation history.
type PromptBuilder struct {
	historyLimit int
}

func NewPromptBuilder(historyLimit int) *PromptBuilder {
	if historyLimit < 0 {
		historyLimit = 0
	}
	return &PromptBuilder{historyLimit: historyLimit}
}

// System returns the fixed system prompt.
func (p *PromptBuilder) System() string { return systemPrompt }

// Build renders the user prompt: numbered context blocks tagged with
// category and document type, recent history oldest first, then the
// question.
func (p *PromptBuilder) Build(query string, docs []domain.ScoredDocument, history []domain.Exchange) string {
	var b strings.Builder

	b.WriteString("CONTEXTO:\n")
	for i, d := range docs {
		fmt.Fprintf(&b, "[%d] (%s/%s) %s\n%s\n\n", i+1, d.Category, d.DocType, d.Title, d.Content)
	}

	if p.historyLimit > 0 && len(history) > 0 {
		limited := history
		if len(limited) > p.historyLimit {
			limited = limited[:p.historyLimit]
		}
		b.WriteString("CONVERSACIÓN RECIENTE:\n")
		// History arrives newest first; the prompt reads oldest first.
		for i := len(limited) - 1; i >= 0; i-- {
			fmt.Fprintf(&b, "Usuario: %s\nAsistente: %s\n", limited[i].UserText, limited[i].BotText)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "PREGUNTA: %s", query)
	return b.String()
}
