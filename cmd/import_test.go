package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasbanco/prospect-engine/internal/model"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseCandidateFileCSV(t *testing.T) {
	path := writeTempFile(t, "leads.csv",
		"tax_id,name,email,extra\n"+
			"11222333000181,Padaria Central,contato@padaria.com,ignored\n"+
			",Sem Documento,x@y.com,skipped\n"+
			"99888777000166,Mercearia Azul,,\n")

	candidates, err := parseCandidateFile(path, "", model.KindProspect)
	require.NoError(t, err)
	require.Len(t, candidates, 2, "row without tax_id is skipped")

	assert.Equal(t, "11222333000181", candidates[0].TaxID)
	assert.Equal(t, "Padaria Central", candidates[0].Name)
	assert.Equal(t, "contato@padaria.com", candidates[0].Email)
	assert.Equal(t, model.KindProspect, candidates[0].Kind)
	assert.Equal(t, "Mercearia Azul", candidates[1].Name)
}

func TestParseCandidateFile_MissingTaxIDColumn(t *testing.T) {
	path := writeTempFile(t, "leads.csv", "name,email\nPadaria,x@y.com\n")

	_, err := parseCandidateFile(path, "", model.KindProspect)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tax_id")
}

func TestParseCandidateFile_HeaderOnly(t *testing.T) {
	path := writeTempFile(t, "leads.csv", "tax_id,name\n")

	_, err := parseCandidateFile(path, "", model.KindUnbanked)
	require.Error(t, err)
}

func TestLoadSources(t *testing.T) {
	path := writeTempFile(t, "sources.yaml", `
- name: receita-ws
  type: external_api
  base_url: https://api.example.com/v1/cnpj
  field_mapping:
    email: contact_email
- name: leads-sheet
  type: upload
  location: /data/leads.xlsx
  key_column: cnpj
  field_mapping:
    telefone: phone
`)

	sources, err := loadSources(path)
	require.NoError(t, err)
	require.Len(t, sources, 2)

	assert.Equal(t, model.SourceExternalAPI, sources[0].Type)
	assert.Equal(t, "contact_email", sources[0].FieldMapping["email"])
	assert.Equal(t, model.SourceUpload, sources[1].Type)
	assert.Equal(t, "cnpj", sources[1].KeyColumn)
}

func TestLoadSources_MissingFile(t *testing.T) {
	_, err := loadSources(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
