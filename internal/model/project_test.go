package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopeDocumentIDs(t *testing.T) {
	p := &Project{DocumentScope: ScopeAllDocs}
	ids, allDocs := p.ScopeDocumentIDs()
	assert.True(t, allDocs)
	assert.Nil(t, ids)

	p = &Project{DocumentScope: ""}
	_, allDocs = p.ScopeDocumentIDs()
	assert.True(t, allDocs)

	p = &Project{DocumentScope: "doc_a, doc_b,,doc_c"}
	ids, allDocs = p.ScopeDocumentIDs()
	assert.False(t, allDocs)
	assert.Equal(t, []string{"doc_a", "doc_b", "doc_c"}, ids)
}

func TestScopeContains(t *testing.T) {
	all := &Project{DocumentScope: ScopeAllDocs}
	assert.True(t, all.ScopeContains("doc_anything"))

	scoped := &Project{DocumentScope: "doc_a,doc_b"}
	assert.True(t, scoped.ScopeContains("doc_a"))
	assert.False(t, scoped.ScopeContains("doc_c"))
}

func TestJobTerminal(t *testing.T) {
	assert.False(t, (&Job{Status: JobStatusPending}).Terminal())
	assert.False(t, (&Job{Status: JobStatusRunning}).Terminal())
	assert.True(t, (&Job{Status: JobStatusCompleted}).Terminal())
	assert.True(t, (&Job{Status: JobStatusFailed}).Terminal())
}
