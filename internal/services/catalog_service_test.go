// internal/services/catalog_service_test.go
package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/loreless/ai-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogService_LoadAndList(t *testing.T) {
	catalog := newTestCatalog(t)

	traits := catalog.ListTraits()
	require.Len(t, traits, 2)
	// 按名称排序
	assert.Equal(t, "Brave", traits[0].Name)
	assert.Equal(t, "Cautious", traits[1].Name)
	assert.Equal(t, "Faces danger head-on.", traits[0].Description)
	assert.Equal(t, 3.0, traits[0].StatChanges["attack"])
	assert.Equal(t, -1.0, traits[0].StatChanges["defense"])

	skills := catalog.ListSkills()
	require.Len(t, skills, 2)
	assert.Equal(t, "Cleave", skills[0].Name)
	assert.Equal(t, 3, skills[0].AP)
	assert.Equal(t, 1, skills[0].Range)
	assert.Equal(t, 1.2, skills[0].DmgMult)
	assert.Equal(t, []string{"hits adjacent enemies"}, skills[0].Effects)
}

func TestCatalogService_Has(t *testing.T) {
	catalog := newTestCatalog(t)

	assert.True(t, catalog.HasTrait("Brave"))
	assert.False(t, catalog.HasTrait("brave"))
	assert.False(t, catalog.HasTrait("Nonexistent"))

	assert.True(t, catalog.HasSkill("First Aid"))
	assert.False(t, catalog.HasSkill("Fireball"))
}

func TestCatalogService_FormatTraitsForPrompt(t *testing.T) {
	catalog := newTestCatalog(t)

	text := catalog.FormatTraitsForPrompt()
	assert.Contains(t, text, "- Brave: Faces danger head-on. [changes: attack: +3, defense: -1]")
	assert.Contains(t, text, "- Cautious: Weighs every step twice. [changes: defense: +3]")
}

func TestCatalogService_FormatSkillsForPrompt(t *testing.T) {
	catalog := newTestCatalog(t)

	text := catalog.FormatSkillsForPrompt()
	assert.Contains(t, text, "- Cleave: A sweeping strike. [AP: 3, range: 1, dmg: 1.2, effects: hits adjacent enemies]")
	assert.Contains(t, text, "- First Aid: Field dressing. [AP: 2, range: 1, dmg: 0, effects: restore 25 hp]")
}

func TestCatalogService_MissingFiles(t *testing.T) {
	dir := t.TempDir()
	fileStorage, err := storage.NewFileStorage(dir)
	require.NoError(t, err)

	_, err = NewCatalogService(fileStorage)
	assert.Error(t, err)
}

func TestCatalogService_Reload(t *testing.T) {
	dir := t.TempDir()
	writeCatalog := func(traits, skills string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "traits.json"), []byte(traits), 0644))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "skills.json"), []byte(skills), 0644))
	}

	writeCatalog(`{"Brave": {"description": "a", "stat_cng": {}}}`, `{}`)

	fileStorage, err := storage.NewFileStorage(dir)
	require.NoError(t, err)
	catalog, err := NewCatalogService(fileStorage)
	require.NoError(t, err)
	require.Len(t, catalog.ListTraits(), 1)

	writeCatalog(`{"Brave": {"description": "a"}, "Nimble": {"description": "b"}}`,
		`{"Cleave": {"description": "c", "ap": 3, "range": 1, "dmg_mult": 1.2}}`)

	require.NoError(t, catalog.Reload())
	assert.Len(t, catalog.ListTraits(), 2)
	assert.Len(t, catalog.ListSkills(), 1)
}
