package pdf

import (
	"context"

	"github.com/recophone/api/internal/domain"
)

// Generator renders quotes and contracts to PDF.
type Generator struct {
	builder  *Builder
	renderer Renderer
}

// NewGenerator combines the HTML builder with a renderer.
func NewGenerator(builder *Builder, renderer Renderer) *Generator {
	return &Generator{builder: builder, renderer: renderer}
}

// Quote renders the quote PDF.
func (g *Generator) Quote(ctx context.Context, payload domain.QuotePayload) ([]byte, error) {
	html, err := g.builder.QuoteHTML(payload)
	if err != nil {
		return nil, err
	}
	return g.renderer.RenderPDF(ctx, html)
}

// Contract renders the contract PDF.
func (g *Generator) Contract(ctx context.Context, payload domain.ContractPayload) ([]byte, error) {
	html, err := g.builder.ContractHTML(payload)
	if err != nil {
		return nil, err
	}
	return g.renderer.RenderPDF(ctx, html)
}
