package xmlparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeGetDottedPath(t *testing.T) {
	root, err := Parse([]byte(`<a><b><c>valor</c></b></a>`))
	require.NoError(t, err)

	assert.Equal(t, "valor", root.Value("a.b.c"))
	assert.Nil(t, root.Get("a.x.c"))
	assert.Empty(t, root.Value("a.x.c"))
}

func TestNodeAllNormalizesOneOrMany(t *testing.T) {
	root, err := Parse([]byte(`<r><det>1</det><det>2</det><x/></r>`))
	require.NoError(t, err)

	dets := root.Child("r").All("det")
	require.Len(t, dets, 2)
	assert.Equal(t, "1", dets[0].Text)
	assert.Equal(t, "2", dets[1].Text)

	assert.Empty(t, root.Child("r").All("nope"))
}

func TestParseMatchesLocalNames(t *testing.T) {
	raw := []byte(`<x:a xmlns:x="http://example.com/ns"><x:b>ok</x:b></x:a>`)
	root, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "ok", root.Value("a.b"))
}

func TestNodeAttrSkipsXMLNS(t *testing.T) {
	raw := []byte(`<infNFe xmlns="http://www.portalfiscal.inf.br/nfe" Id="NFe123" versao="4.00"/>`)
	root, err := Parse(raw)
	require.NoError(t, err)

	inf := root.Child("infNFe")
	require.NotNil(t, inf)
	assert.Equal(t, "NFe123", inf.Attr("Id"))
	assert.Equal(t, "4.00", inf.Attr("versao"))
	assert.Empty(t, inf.Attr("xmlns"))
}

func TestStripNamespaces(t *testing.T) {
	raw := []byte(`<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" xmlns:ds="http://www.w3.org/2000/09/xmldsig#" versao="4.00"/>`)
	out := string(StripNamespaces(raw))
	assert.Equal(t, `<nfeProc versao="4.00"/>`, out)
}

func TestParseRejectsEmptyDocument(t *testing.T) {
	_, err := Parse([]byte("   "))
	assert.Error(t, err)
}
