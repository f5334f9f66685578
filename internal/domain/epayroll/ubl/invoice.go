// Package ubl models the UBL 2.1 invoice layout used to carry an individual
// electronic payroll document.
package ubl

import (
	"bytes"
	"encoding/xml"
)

const (
	NamespaceInvoice = "urn:oasis:names:specification:ubl:schema:xsd:Invoice-2"
	NamespaceCAC     = "urn:oasis:names:specification:ubl:schema:xsd:CommonAggregateComponents-2"
	NamespaceCBC     = "urn:oasis:names:specification:ubl:schema:xsd:CommonBasicComponents-2"
	NamespaceEXT     = "urn:oasis:names:specification:ubl:schema:xsd:CommonExtensionComponents-2"
	NamespaceSTS     = "dian:gov:co:facturaelectronica:Structures-2-1"

	Version         = "UBL 2.1"
	CustomizationID = "NominaIndividual"
	UUIDScheme      = "CUNE"
)

type Invoice struct {
	XMLName  xml.Name `xml:"Invoice"`
	Xmlns    string   `xml:"xmlns,attr"`
	XmlnsCAC string   `xml:"xmlns:cac,attr"`
	XmlnsCBC string   `xml:"xmlns:cbc,attr"`
	XmlnsEXT string   `xml:"xmlns:ext,attr"`
	XmlnsSTS string   `xml:"xmlns:sts,attr"`

	Extensions           Extensions    `xml:"ext:UBLExtensions"`
	UBLVersionID         string        `xml:"cbc:UBLVersionID"`
	CustomizationID      string        `xml:"cbc:CustomizationID"`
	ProfileExecutionID   string        `xml:"cbc:ProfileExecutionID"`
	ID                   string        `xml:"cbc:ID"`
	UUID                 UUID          `xml:"cbc:UUID"`
	IssueDate            string        `xml:"cbc:IssueDate"`
	IssueTime            string        `xml:"cbc:IssueTime"`
	DueDate              string        `xml:"cbc:DueDate"`
	InvoiceTypeCode      string        `xml:"cbc:InvoiceTypeCode"`
	Note                 string        `xml:"cbc:Note,omitempty"`
	DocumentCurrencyCode string        `xml:"cbc:DocumentCurrencyCode"`
	LineCountNumeric     int           `xml:"cbc:LineCountNumeric"`
	InvoicePeriod        Period        `xml:"cac:InvoicePeriod"`
	Supplier             SupplierParty `xml:"cac:AccountingSupplierParty"`
	Customer             CustomerParty `xml:"cac:AccountingCustomerParty"`
	PaymentMeans         PaymentMeans  `xml:"cac:PaymentMeans"`
	TaxTotal             TaxTotal      `xml:"cac:TaxTotal"`
	LegalMonetaryTotal   MonetaryTotal `xml:"cac:LegalMonetaryTotal"`
	Lines                []InvoiceLine `xml:"cac:InvoiceLine"`
}

type Extensions struct {
	Extension []Extension `xml:"ext:UBLExtension"`
}

type Extension struct {
	Content ExtensionContent `xml:"ext:ExtensionContent"`
}

type ExtensionContent struct {
	Payroll *PayrollExtension `xml:"sts:DianExtensions,omitempty"`
}

// PayrollExtension carries the authority specific control data.
type PayrollExtension struct {
	SoftwareProvider   SoftwareProvider `xml:"sts:SoftwareProvider"`
	Sequence           Sequence         `xml:"sts:NumberSequence"`
	UniqueCode         string           `xml:"sts:UniqueCode"`
	GenerationDateTime string           `xml:"sts:GenerationDateTime"`
	PeriodType         string           `xml:"sts:PeriodType"`
	Environment        string           `xml:"sts:Environment,omitempty"`
}

type SoftwareProvider struct {
	ProviderID string `xml:"sts:ProviderID"`
	SoftwareID string `xml:"sts:SoftwareID"`
}

type Sequence struct {
	Prefix string `xml:"Prefix,attr"`
	Number int64  `xml:"Number,attr"`
}

type UUID struct {
	SchemeName string `xml:"schemeName,attr"`
	Value      string `xml:",chardata"`
}

type Period struct {
	StartDate string `xml:"cbc:StartDate"`
	EndDate   string `xml:"cbc:EndDate"`
}

type SupplierParty struct {
	AdditionalAccountID string `xml:"cbc:AdditionalAccountID"`
	Party               Party  `xml:"cac:Party"`
}

type CustomerParty struct {
	AdditionalAccountID string `xml:"cbc:AdditionalAccountID"`
	Party               Party  `xml:"cac:Party"`
}

type Party struct {
	Name      PartyName      `xml:"cac:PartyName"`
	TaxScheme PartyTaxScheme `xml:"cac:PartyTaxScheme"`
	Contact   *Contact       `xml:"cac:Contact,omitempty"`
	JobTitle  string         `xml:"cbc:JobTitle,omitempty"`
}

type PartyName struct {
	Name string `xml:"cbc:Name"`
}

type PartyTaxScheme struct {
	RegistrationName string `xml:"cbc:RegistrationName"`
	CompanyID        string `xml:"cbc:CompanyID"`
}

type Contact struct {
	Name string `xml:"cbc:Name"`
}

type PaymentMeans struct {
	ID               string `xml:"cbc:ID"`
	PaymentMeansCode string `xml:"cbc:PaymentMeansCode"`
	PaymentDueDate   string `xml:"cbc:PaymentDueDate"`
}

type Amount struct {
	CurrencyID string `xml:"currencyID,attr"`
	Value      string `xml:",chardata"`
}

type TaxTotal struct {
	TaxAmount   Amount      `xml:"cbc:TaxAmount"`
	TaxSubtotal TaxSubtotal `xml:"cac:TaxSubtotal"`
}

type TaxSubtotal struct {
	TaxableAmount Amount      `xml:"cbc:TaxableAmount"`
	TaxAmount     Amount      `xml:"cbc:TaxAmount"`
	TaxCategory   TaxCategory `xml:"cac:TaxCategory"`
}

type TaxCategory struct {
	Percent   string    `xml:"cbc:Percent"`
	TaxScheme TaxScheme `xml:"cac:TaxScheme"`
}

type TaxScheme struct {
	ID   string `xml:"cbc:ID"`
	Name string `xml:"cbc:Name"`
}

type MonetaryTotal struct {
	LineExtensionAmount Amount `xml:"cbc:LineExtensionAmount"`
	TaxExclusiveAmount  Amount `xml:"cbc:TaxExclusiveAmount"`
	TaxInclusiveAmount  Amount `xml:"cbc:TaxInclusiveAmount"`
	PayableAmount       Amount `xml:"cbc:PayableAmount"`
}

type InvoiceLine struct {
	ID                  string   `xml:"cbc:ID"`
	InvoicedQuantity    Quantity `xml:"cbc:InvoicedQuantity"`
	LineExtensionAmount Amount   `xml:"cbc:LineExtensionAmount"`
	Item                Item     `xml:"cac:Item"`
	Price               Price    `xml:"cac:Price"`
}

type Quantity struct {
	UnitCode string `xml:"unitCode,attr"`
	Value    string `xml:",chardata"`
}

type Item struct {
	Description string `xml:"cbc:Description"`
}

type Price struct {
	PriceAmount Amount `xml:"cbc:PriceAmount"`
}

// New returns an invoice with the namespace declarations and fixed header
// values filled in.
func New() *Invoice {
	return &Invoice{
		Xmlns:           NamespaceInvoice,
		XmlnsCAC:        NamespaceCAC,
		XmlnsCBC:        NamespaceCBC,
		XmlnsEXT:        NamespaceEXT,
		XmlnsSTS:        NamespaceSTS,
		UBLVersionID:    Version,
		CustomizationID: CustomizationID,
	}
}

// Marshal serializes the invoice as an indented XML document with header.
func Marshal(inv *Invoice) ([]byte, error) {
	body, err := xml.MarshalIndent(inv, "", "  ")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(xml.Header) + len(body) + 1)
	buf.WriteString(xml.Header)
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
