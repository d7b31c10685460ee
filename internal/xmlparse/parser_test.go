package xmlparse

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brfiscal/nfe-pipeline/constants"
	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/domain"
)

const notaMinimaXML = `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
  <NFe>
    <infNFe Id="NFe35200714200166000187550010000000046550010046" versao="4.00">
      <ide><cUF>35</cUF><natOp>VENDA DE MERCADORIA</natOp><mod>55</mod><serie>1</serie><nNF>4</nNF></ide>
      <emit>
        <CNPJ>14200166000187</CNPJ>
        <xNome>LOJA EXEMPLO LTDA</xNome>
        <enderEmit>
          <xLgr>RUA DAS FLORES</xLgr>
          <nro>100</nro>
          <xBairro>CENTRO</xBairro>
          <xMun>SAO PAULO</xMun>
          <UF>SP</UF>
          <CEP>01310100</CEP>
          <fone>1138765432</fone>
        </enderEmit>
        <IE>110042490114</IE>
      </emit>
      <dest>
        <CPF>12345678909</CPF>
        <xNome>FULANO DE TAL</xNome>
        <enderDest>
          <xLgr>AV PAULISTA</xLgr>
          <nro>1000</nro>
          <xBairro>BELA VISTA</xBairro>
          <xMun>SAO PAULO</xMun>
          <UF>SP</UF>
          <CEP>01310200</CEP>
        </enderDest>
        <indIEDest>9</indIEDest>
      </dest>
      <det nItem="1">
        <prod>
          <cProd>001</cProd>
          <xProd>camiseta gola v</xProd>
          <NCM>61091000</NCM>
          <CFOP>5102</CFOP>
          <uCom>UN</uCom>
          <qCom>2.0000</qCom>
          <vUnCom>50.00</vUnCom>
          <vProd>100.00</vProd>
        </prod>
        <imposto>
          <ICMS>
            <ICMS00>
              <orig>0</orig>
              <CST>00</CST>
              <modBC>3</modBC>
              <vBC>100.00</vBC>
              <pICMS>18.00</pICMS>
              <vICMS>18.00</vICMS>
            </ICMS00>
          </ICMS>
          <PIS>
            <PISAliq><CST>01</CST><vBC>100.00</vBC><pPIS>1.65</pPIS><vPIS>1.65</vPIS></PISAliq>
          </PIS>
          <COFINS>
            <COFINSAliq><CST>01</CST><vBC>100.00</vBC><pCOFINS>7.60</pCOFINS><vCOFINS>7.60</vCOFINS></COFINSAliq>
          </COFINS>
        </imposto>
      </det>
      <total>
        <ICMSTot><vBC>100.00</vBC><vICMS>18.00</vICMS><vProd>100.00</vProd><vNF>100.00</vNF></ICMSTot>
      </total>
    </infNFe>
  </NFe>
</nfeProc>`

const simplesNacionalXML = `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
  <NFe>
    <infNFe Id="NFe35200744444444000188550010000001011000001017" versao="4.00">
      <emit>
        <CNPJ>44444444000188</CNPJ>
        <xNome>MERCADINHO SIMPLES LTDA</xNome>
        <enderEmit><xMun>SAO PAULO</xMun><UF>SP</UF></enderEmit>
        <IE>ISENTO</IE>
      </emit>
      <dest>
        <CNPJ>55555555000199</CNPJ>
        <xNome>PADARIA DO BAIRRO LTDA</xNome>
        <enderDest><xMun>CAMPINAS</xMun><UF>SP</UF></enderDest>
      </dest>
      <det nItem="1">
        <prod>
          <xProd>ACUCAR REFINADO 1KG</xProd>
          <NCM>17019900</NCM>
          <CFOP>5102</CFOP>
          <vProd>50.00</vProd>
        </prod>
        <imposto>
          <ICMS><ICMSSN101><orig>0</orig><CSOSN>101</CSOSN></ICMSSN101></ICMS>
        </imposto>
      </det>
      <det nItem="2">
        <prod>
          <xProd>FARINHA DE TRIGO 1KG</xProd>
          <NCM>11010010</NCM>
          <CFOP>5102</CFOP>
          <vProd>30.00</vProd>
        </prod>
        <imposto>
          <ICMS><ICMSSN102><orig>0</orig><CSOSN>102</CSOSN></ICMSSN102></ICMS>
        </imposto>
      </det>
      <total>
        <ICMSTot><vNF>80.00</vNF></ICMSTot>
      </total>
    </infNFe>
  </NFe>
</nfeProc>`

const comCestXML = `<?xml version="1.0" encoding="UTF-8"?>
<NFe xmlns="http://www.portalfiscal.inf.br/nfe">
  <infNFe Id="NFe35200766666666000111550010000002021000002022" versao="4.00">
    <emit>
      <CNPJ>66666666000111</CNPJ>
      <xNome>DISTRIBUIDORA DE COMBUSTIVEIS LTDA</xNome>
      <enderEmit><xMun>SAO PAULO</xMun><UF>SP</UF></enderEmit>
    </emit>
    <dest>
      <CNPJ>77777777000122</CNPJ>
      <xNome>POSTO ESTRELA LTDA</xNome>
      <enderDest><xMun>RIO DE JANEIRO</xMun><UF>RJ</UF></enderDest>
    </dest>
    <det nItem="1">
      <prod>
        <xProd>GASOLINA COMUM</xProd>
        <NCM>27101229</NCM>
        <CEST>0600100</CEST>
        <CFOP>5405</CFOP>
        <vProd>5000.00</vProd>
      </prod>
      <imposto>
        <ICMS><ICMS60><orig>0</orig><CST>60</CST></ICMS60></ICMS>
      </imposto>
    </det>
    <det nItem="2">
      <prod>
        <xProd>OLEO DIESEL S10</xProd>
        <NCM>27101921</NCM>
        <CEST>0600200</CEST>
        <CFOP>5405</CFOP>
        <vProd>3000.00</vProd>
      </prod>
      <imposto>
        <ICMS><ICMS60><orig>0</orig><CST>60</CST></ICMS60></ICMS>
      </imposto>
    </det>
    <total>
      <ICMSTot><vNF>8000.00</vNF></ICMSTot>
    </total>
  </infNFe>
</NFe>`

func TestParse_NotaMinima(t *testing.T) {
	p := NewParser(nil)
	payload, err := p.Parse([]byte(notaMinimaXML))
	require.NoError(t, err)

	assert.Equal(t, "5102", payload.CFOP)
	assert.Equal(t, constants.FormatXML, payload.Fonte)
	assert.Equal(t, "35200714200166000187550010000000046550010046", payload.ChaveAcesso)

	assert.Equal(t, "LOJA EXEMPLO LTDA", payload.Emitente.RazaoSocial)
	assert.Equal(t, "14200166000187", payload.Emitente.CNPJ)
	assert.Equal(t, domain.SP, payload.Emitente.UF)
	assert.Equal(t, "110042490114", payload.Emitente.InscricaoEstadual)
	assert.Equal(t, "SAO PAULO", payload.Emitente.Municipio)
	assert.Equal(t, "01310100", payload.Emitente.CEP)

	assert.Equal(t, "FULANO DE TAL", payload.Destinatario.RazaoSocial)
	assert.Equal(t, "12345678909", payload.Destinatario.CPF)
	assert.Empty(t, payload.Destinatario.CNPJ)
	assert.Equal(t, domain.SP, payload.Destinatario.UF)
	assert.Equal(t, "9", payload.Destinatario.IndicadorIE)

	assert.Equal(t, "100.00", payload.ValorTotal.StringFixed(2))
	assert.Equal(t, domain.NaturezaInterna, payload.Natureza())

	require.Len(t, payload.Itens, 1)
	item := payload.Itens[0]
	assert.Equal(t, "camiseta gola v", item.Descricao)
	assert.Equal(t, "001", item.CodigoProduto)
	assert.Equal(t, "61091000", item.NCM)
	assert.Equal(t, "UN", item.UnidadeComercial)
	require.NotNil(t, item.Quantidade)
	assert.Equal(t, "2.0000", item.Quantidade.StringFixed(4))
	require.NotNil(t, item.ValorUnitario)
	assert.Equal(t, "50.00", item.ValorUnitario.StringFixed(2))
	assert.Equal(t, "100.00", item.Valor.StringFixed(2))

	require.NotNil(t, item.Impostos)
	assert.Equal(t, "00", item.Impostos.ICMS.CST)
	assert.Empty(t, item.Impostos.ICMS.CSOSN)
	assert.Equal(t, "0", item.Impostos.ICMS.Orig)
	require.NotNil(t, item.Impostos.ICMS.VICMS)
	assert.Equal(t, "18.00", item.Impostos.ICMS.VICMS.StringFixed(2))
	require.NotNil(t, item.Impostos.PIS)
	assert.Equal(t, "01", item.Impostos.PIS.CST)
	require.NotNil(t, item.Impostos.COFINS)
	assert.Equal(t, "7.60", item.Impostos.COFINS.VCOFINS.StringFixed(2))

	require.NotNil(t, payload.Totais)
	require.NotNil(t, payload.Totais.VICMS)
	assert.Equal(t, "18.00", payload.Totais.VICMS.StringFixed(2))
}

func TestParse_SemNfeProc(t *testing.T) {
	// Same document without the protocol wrapper still resolves.
	raw := strings.ReplaceAll(notaMinimaXML, "<nfeProc xmlns=\"http://www.portalfiscal.inf.br/nfe\" versao=\"4.00\">\n  ", "")
	raw = strings.ReplaceAll(raw, "\n</nfeProc>", "")
	raw = strings.Replace(raw, "<NFe>", `<NFe xmlns="http://www.portalfiscal.inf.br/nfe">`, 1)

	p := NewParser(nil)
	payload, err := p.Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "5102", payload.CFOP)
}

func TestParse_SimplesNacionalCSOSN(t *testing.T) {
	p := NewParser(nil)
	payload, err := p.Parse([]byte(simplesNacionalXML))
	require.NoError(t, err)

	assert.Equal(t, "5102", payload.CFOP)
	assert.Equal(t, "44444444000188", payload.Emitente.CNPJ)
	assert.Equal(t, "ISENTO", payload.Emitente.InscricaoEstadual)

	require.Len(t, payload.Itens, 2)
	for _, item := range payload.Itens {
		require.NotNil(t, item.Impostos)
		assert.NotEmpty(t, item.Impostos.ICMS.CSOSN)
		assert.Empty(t, item.Impostos.ICMS.CST)
	}
	assert.Equal(t, "101", payload.Itens[0].Impostos.ICMS.CSOSN)
	assert.Equal(t, "102", payload.Itens[1].Impostos.ICMS.CSOSN)
}

func TestParse_CESTSubstituicaoTributaria(t *testing.T) {
	p := NewParser(nil)
	payload, err := p.Parse([]byte(comCestXML))
	require.NoError(t, err)

	assert.Equal(t, "5405", payload.CFOP)
	assert.Equal(t, "66666666000111", payload.Emitente.CNPJ)
	assert.Equal(t, domain.NaturezaInterestadual, payload.Natureza())

	require.Len(t, payload.Itens, 2)
	assert.Equal(t, "0600100", payload.Itens[0].CEST)
	assert.Equal(t, "27101229", payload.Itens[0].NCM)
	assert.Equal(t, "0600200", payload.Itens[1].CEST)
	assert.Equal(t, "27101921", payload.Itens[1].NCM)

	for _, item := range payload.Itens {
		require.NotNil(t, item.Impostos)
		assert.Equal(t, "60", item.Impostos.ICMS.CST)
		assert.Empty(t, item.Impostos.ICMS.CSOSN)
	}
}

func TestParse_NCMInvalidoDescartado(t *testing.T) {
	raw := strings.Replace(notaMinimaXML, "<NCM>61091000</NCM>", "<NCM>123</NCM>", 1)
	p := NewParser(nil)
	payload, err := p.Parse([]byte(raw))
	require.NoError(t, err)
	assert.Empty(t, payload.Itens[0].NCM)
}

func TestParse_CFOPAusente(t *testing.T) {
	raw := strings.Replace(notaMinimaXML, "<CFOP>5102</CFOP>", "", 1)
	p := NewParser(nil)
	_, err := p.Parse([]byte(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Dados da NF-e inválidos")
	assert.Contains(t, err.Error(), "cfop: obrigatorio")
	assert.Equal(t, common.CodeValidation, common.CodeOf(err))
}

func TestParse_DestinatarioSemDocumento(t *testing.T) {
	raw := strings.Replace(notaMinimaXML, "<CPF>12345678909</CPF>", "", 1)
	p := NewParser(nil)
	_, err := p.Parse([]byte(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Destinatario deve ter CPF ou CNPJ")
}

func TestParse_ValorTotalAusente(t *testing.T) {
	raw := strings.Replace(notaMinimaXML, "<vNF>100.00</vNF>", "", 1)
	p := NewParser(nil)
	_, err := p.Parse([]byte(raw))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "valor_total: obrigatorio")
}

func TestParse_EstruturaSemInfNFe(t *testing.T) {
	p := NewParser(nil)
	_, err := p.Parse([]byte(`<?xml version="1.0"?><outro><coisa>x</coisa></outro>`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Estrutura XML inválida: não foi possível encontrar 'infNFe'")
	assert.Equal(t, common.CodeParse, common.CodeOf(err))
}

func TestParse_XMLMalformado(t *testing.T) {
	p := NewParser(nil)
	_, err := p.Parse([]byte(`isto nao e xml <<<`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Erro irrecuperável ao processar o XML")
}

func TestParseFile_NaoEncontrado(t *testing.T) {
	p := NewParser(nil)
	missing := filepath.Join(t.TempDir(), "nao_existe.xml")
	_, err := p.ParseFile(missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Arquivo XML não encontrado")
}

func TestParseFile_NotaMinima(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nota_minima.xml")
	require.NoError(t, os.WriteFile(path, []byte(notaMinimaXML), 0o644))

	p := NewParser(nil)
	payload, err := p.ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, "5102", payload.CFOP)
	assert.Equal(t, "100.00", payload.ValorTotal.StringFixed(2))
}

func TestParse_ImpostoIncompletoNaoFalha(t *testing.T) {
	// An ICMS block without CST or CSOSN is dropped with a warning.
	raw := strings.Replace(notaMinimaXML, "<CST>00</CST>", "", 1)
	p := NewParser(nil)
	payload, err := p.Parse([]byte(raw))
	require.NoError(t, err)
	assert.Nil(t, payload.Itens[0].Impostos)
}
