package domain

import (
	"strings"

	"github.com/brfiscal/nfe-pipeline/internal/common"
	"github.com/brfiscal/nfe-pipeline/internal/normalize"
)

// Emitente holds the issuer block of an NF-e.
type Emitente struct {
	RazaoSocial       string `json:"razao_social"`
	CNPJ              string `json:"cnpj"`
	InscricaoEstadual string `json:"inscricao_estadual,omitempty"`
	UF                UF     `json:"uf"`
	Municipio         string `json:"municipio,omitempty"`
	Bairro            string `json:"bairro,omitempty"`
	Logradouro        string `json:"logradouro,omitempty"`
	Numero            string `json:"numero,omitempty"`
	CEP               string `json:"cep,omitempty"`
	Telefone          string `json:"telefone,omitempty"`
}

// Normalize cleans every field in place. CNPJ keeps only digits regardless
// of length so validation can report a wrong-sized value instead of a
// missing one.
func (e *Emitente) Normalize() {
	e.RazaoSocial = strings.TrimSpace(e.RazaoSocial)
	e.CNPJ = normalize.CNPJ(e.CNPJ)
	e.InscricaoEstadual = normalize.IE(e.InscricaoEstadual)
	e.UF = UF(strings.ToUpper(strings.TrimSpace(string(e.UF))))
	e.Municipio = strings.TrimSpace(e.Municipio)
	e.Bairro = strings.TrimSpace(e.Bairro)
	e.Logradouro = strings.TrimSpace(e.Logradouro)
	e.Numero = strings.TrimSpace(e.Numero)
	e.CEP = normalize.CEPOrNone(e.CEP)
	e.Telefone = normalize.Telefone(e.Telefone)
}

func (e *Emitente) collect(v *common.Validator) {
	v.Field("razao_social", e.RazaoSocial, common.Required)
	v.Field("cnpj", e.CNPJ, common.Required, common.ExactDigits(14))
	v.Field("uf", string(e.UF), common.Required)
	if e.UF != "" && !e.UF.Valid() {
		v.Add("uf", "UF invalida")
	}
	v.Field("cep", e.CEP, common.ExactDigits(8))
}

func (e *Emitente) Validate() error {
	v := common.NewValidator()
	e.collect(v)
	return v.Err()
}

// Destinatario holds the recipient block of an NF-e. A recipient is either
// a company (CNPJ) or a person (CPF), never both.
type Destinatario struct {
	RazaoSocial       string `json:"razao_social"`
	CNPJ              string `json:"cnpj,omitempty"`
	CPF               string `json:"cpf,omitempty"`
	InscricaoEstadual string `json:"inscricao_estadual,omitempty"`
	IndicadorIE       string `json:"indicador_ie,omitempty"`
	UF                UF     `json:"uf"`
	Municipio         string `json:"municipio,omitempty"`
	Bairro            string `json:"bairro,omitempty"`
	Logradouro        string `json:"logradouro,omitempty"`
	Numero            string `json:"numero,omitempty"`
	CEP               string `json:"cep,omitempty"`
	Telefone          string `json:"telefone,omitempty"`
}

// Normalize cleans every field in place. Unlike the issuer, tax ids of the
// wrong length are dropped here so the CPF-or-CNPJ rule decides the outcome.
func (d *Destinatario) Normalize() {
	d.RazaoSocial = strings.TrimSpace(d.RazaoSocial)
	d.CNPJ = normalize.CNPJOrNone(d.CNPJ)
	d.CPF = normalize.CPFOrNone(d.CPF)
	d.InscricaoEstadual = normalize.IE(d.InscricaoEstadual)
	d.IndicadorIE = strings.TrimSpace(d.IndicadorIE)
	d.UF = UF(strings.ToUpper(strings.TrimSpace(string(d.UF))))
	d.Municipio = strings.TrimSpace(d.Municipio)
	d.Bairro = strings.TrimSpace(d.Bairro)
	d.Logradouro = strings.TrimSpace(d.Logradouro)
	d.Numero = strings.TrimSpace(d.Numero)
	d.CEP = normalize.CEPOrNone(d.CEP)
	d.Telefone = normalize.Telefone(d.Telefone)
}

func (d *Destinatario) collect(v *common.Validator) {
	v.Field("razao_social", d.RazaoSocial, common.Required)
	if d.CPF == "" && d.CNPJ == "" {
		v.Add("destinatario", "Destinatario deve ter CPF ou CNPJ")
	}
	if d.CPF != "" && d.CNPJ != "" {
		v.Add("destinatario", "Destinatario nao pode ter CPF e CNPJ simultaneamente")
	}
	v.Field("cnpj", d.CNPJ, common.ExactDigits(14))
	v.Field("cpf", d.CPF, common.ExactDigits(11))
	v.Field("uf", string(d.UF), common.Required)
	if d.UF != "" && !d.UF.Valid() {
		v.Add("uf", "UF invalida")
	}
	v.Field("cep", d.CEP, common.ExactDigits(8))
}

func (d *Destinatario) Validate() error {
	v := common.NewValidator()
	d.collect(v)
	return v.Err()
}
