package markup_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/segurbot/markup"
)

func TestLinks(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []markup.Link
	}{
		{
			name:    "none",
			content: "¡Hola! ¿En qué te ayudo?",
			want:    nil,
		},
		{
			name:    "markdown link",
			content: "Puedes cotizar [aquí](https://segurbot.example.com/cotizar).",
			want:    []markup.Link{{Text: "aquí", URL: "https://segurbot.example.com/cotizar"}},
		},
		{
			name:    "emphasis inside link text",
			content: "[**Planes** de auto](https://segurbot.example.com/auto)",
			want:    []markup.Link{{Text: "Planes de auto", URL: "https://segurbot.example.com/auto"}},
		},
		{
			name:    "bare url",
			content: "Visita https://segurbot.example.com para más info",
			want:    []markup.Link{{Text: "https://segurbot.example.com", URL: "https://segurbot.example.com"}},
		},
		{
			name:    "document order",
			content: "[uno](https://a.example.com) y [dos](https://b.example.com)",
			want: []markup.Link{
				{Text: "uno", URL: "https://a.example.com"},
				{Text: "dos", URL: "https://b.example.com"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, markup.Links(tt.content))
		})
	}
}

func TestPlain(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "plain text", content: "Hola mundo", want: "Hola mundo"},
		{name: "emphasis", content: "Tenemos **tres** planes", want: "Tenemos tres planes"},
		{name: "link", content: "Ver [planes](https://x.example.com)", want: "Ver planes (https://x.example.com)"},
		{name: "list", content: "- Auto\n- Hogar", want: "• Auto\n• Hogar"},
		{name: "paragraphs", content: "Uno.\n\nDos.", want: "Uno.\nDos."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, markup.Plain(tt.content))
		})
	}
}

func TestHTML(t *testing.T) {
	out, err := markup.HTML("Cotiza [aquí](https://segurbot.example.com) <script>alert(1)</script>")
	require.NoError(t, err)

	assert.Contains(t, out, `href="https://segurbot.example.com"`)
	assert.Contains(t, out, `target="_blank"`)
	assert.Contains(t, out, `rel="noopener noreferrer"`)
	assert.NotContains(t, out, "<script>")
}
