package messages

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mietcheck/mietcheck/pkg/models"
)

func TestCatalogDefaults(t *testing.T) {
	c := NewCatalog()

	assert.Contains(t, c.Get(KeyNotAStatement), "keine Nebenkostenabrechnung")
	assert.Equal(t, c.Get(KeyGeneric), c.Get("no_such_key"), "unknown keys fall back to the generic text")
}

func TestCatalogLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.yaml")
	require.NoError(t, os.WriteFile(path, []byte("error_generic: Etwas ging schief.\n"), 0o644))

	c := NewCatalog()
	require.NoError(t, c.Load(path))

	assert.Equal(t, "Etwas ging schief.", c.Get(KeyGeneric))
	assert.Contains(t, c.Get(KeyUnreadable), "nicht gelesen", "untouched keys keep their defaults")
}

func TestValidationMessageIncludesModelExplanation(t *testing.T) {
	c := NewCatalog()

	msg := c.ValidationMessage(models.ValidationNotAStatement, "Das Dokument ist ein Mietvertrag.")
	assert.Contains(t, msg, "keine Nebenkostenabrechnung")
	assert.Contains(t, msg, "Mietvertrag")

	plain := c.ValidationMessage(models.ValidationUnreadable, "  ")
	assert.NotContains(t, plain, "(", "empty model explanation adds nothing")
}

func TestRefundLine(t *testing.T) {
	c := NewCatalog()

	assert.Contains(t, c.RefundLine(true, 2990), "29.90")
	assert.Contains(t, c.RefundLine(false, 2990), "fehlgeschlagen")
}
