package textgen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderInterpolatesNamedSlots(t *testing.T) {
	out := Render("Hello {{name}}, department {{dept}}", map[string]string{"name": "Ana", "dept": "IT"})
	assert.Equal(t, "Hello Ana, department IT", out)
}

func TestRenderLeavesUnknownSlotsUntouched(t *testing.T) {
	out := Render("Hello {{name}}", map[string]string{})
	assert.Equal(t, "Hello {{name}}", out)
}

func TestStubGeneratorRefusesWithoutContext(t *testing.T) {
	g := StubGenerator{}
	out, err := g.Generate(context.Background(), "sys", "user", map[string]string{"context": "No relevant documents found."})
	assert.NoError(t, err)
	assert.Contains(t, out, "don't have information")
}

func TestStubGeneratorEchoesProvidedContext(t *testing.T) {
	g := StubGenerator{}
	out, err := g.Generate(context.Background(), "sys", "how many PTO days", map[string]string{"context": "[Document 1] Source: hr_policies.md\nEmployees accrue 15 days."})
	assert.NoError(t, err)
	assert.Contains(t, out, "Employees accrue 15 days")
}
