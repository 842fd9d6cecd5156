package ledger

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/blyon/qbnx/internal/domain/sync"
)

// txnDateFormat is the transaction date layout used by the connector
const txnDateFormat = "2006-01-02"

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// qbxmlHeader is the processing instruction the connector requires before
// the document element
const qbxmlHeader = `<?xml version="1.0"?><?qbxml version="13.0"?>`

type qbxmlRequest struct {
	XMLName xml.Name    `xml:"QBXML"`
	Msgs    qbxmlMsgsRq `xml:"QBXMLMsgsRq"`
}

// qbxmlMsgsRq carries exactly one request per round trip
type qbxmlMsgsRq struct {
	OnError string `xml:"onError,attr"`

	HostQuery         *hostQueryRq         `xml:"HostQueryRq,omitempty"`
	SalesReceiptQuery *salesReceiptQueryRq `xml:"SalesReceiptQueryRq,omitempty"`
	SalesReceiptAdd   *salesReceiptAddRq   `xml:"SalesReceiptAddRq,omitempty"`
	InvoiceQuery      *invoiceQueryRq      `xml:"InvoiceQueryRq,omitempty"`
	CustomerQuery     *customerQueryRq     `xml:"CustomerQueryRq,omitempty"`
	CustomerAdd       *customerAddRq       `xml:"CustomerAddRq,omitempty"`
	ItemSalesTaxQuery *itemSalesTaxQueryRq `xml:"ItemSalesTaxQueryRq,omitempty"`
	ItemSalesTaxAdd   *itemSalesTaxAddRq   `xml:"ItemSalesTaxAddRq,omitempty"`
	ItemSitesQuery    *itemSitesQueryRq    `xml:"ItemSitesQueryRq,omitempty"`
	DataExtAdd        *dataExtRq           `xml:"DataExtAddRq,omitempty"`
	DataExtMod        *dataExtRq           `xml:"DataExtModRq,omitempty"`
}

type qbxmlResponse struct {
	XMLName xml.Name    `xml:"QBXML"`
	Msgs    qbxmlMsgsRs `xml:"QBXMLMsgsRs"`
}

type qbxmlMsgsRs struct {
	HostQuery         *hostQueryRs         `xml:"HostQueryRs"`
	SalesReceiptQuery *salesReceiptQueryRs `xml:"SalesReceiptQueryRs"`
	SalesReceiptAdd   *salesReceiptAddRs   `xml:"SalesReceiptAddRs"`
	InvoiceQuery      *invoiceQueryRs      `xml:"InvoiceQueryRs"`
	CustomerQuery     *customerQueryRs     `xml:"CustomerQueryRs"`
	CustomerAdd       *customerAddRs       `xml:"CustomerAddRs"`
	ItemSalesTaxQuery *itemSalesTaxQueryRs `xml:"ItemSalesTaxQueryRs"`
	ItemSalesTaxAdd   *itemSalesTaxAddRs   `xml:"ItemSalesTaxAddRs"`
	ItemSitesQuery    *itemSitesQueryRs    `xml:"ItemSitesQueryRs"`
	DataExtAdd        *dataExtRs           `xml:"DataExtAddRs"`
	DataExtMod        *dataExtRs           `xml:"DataExtModRs"`
}

// rsStatus is the status attribute triple on every response
type rsStatus struct {
	StatusCode     int    `xml:"statusCode,attr"`
	StatusSeverity string `xml:"statusSeverity,attr"`
	StatusMessage  string `xml:"statusMessage,attr"`
}

// Connector status codes: 0 is success, 1 is a query that matched nothing.
const (
	statusOK      = 0
	statusNoMatch = 1
)

// check translates a response status to sentinel errors
func (s rsStatus) check() error {
	switch s.StatusCode {
	case statusOK:
		return nil
	case statusNoMatch:
		return fmt.Errorf("%w: %s", sync.ErrNotFound, s.StatusMessage)
	default:
		return fmt.Errorf("%w: %d %s", sync.ErrValidation, s.StatusCode, s.StatusMessage)
	}
}

// ---------------------------------------------------------------------------
// Host Query (session check)
// ---------------------------------------------------------------------------

type hostQueryRq struct{}

type hostQueryRs struct {
	rsStatus
	HostRet *struct {
		ProductName string `xml:"ProductName"`
	} `xml:"HostRet"`
}

// ---------------------------------------------------------------------------
// References and Addresses
// ---------------------------------------------------------------------------

type qbRef struct {
	ListID   string `xml:"ListID,omitempty"`
	FullName string `xml:"FullName,omitempty"`
}

type qbAddress struct {
	Addr1      string `xml:"Addr1,omitempty"`
	Addr2      string `xml:"Addr2,omitempty"`
	Addr3      string `xml:"Addr3,omitempty"`
	City       string `xml:"City,omitempty"`
	State      string `xml:"State,omitempty"`
	PostalCode string `xml:"PostalCode,omitempty"`
	Country    string `xml:"Country,omitempty"`
}

type dataExtRet struct {
	DataExtName  string `xml:"DataExtName"`
	DataExtValue string `xml:"DataExtValue"`
}

// dataExtValue returns the value of the named custom field, if present
func dataExtValue(exts []dataExtRet, name string) string {
	for _, e := range exts {
		if e.DataExtName == name {
			return e.DataExtValue
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Sales Receipts
// ---------------------------------------------------------------------------

type txnDateRangeFilter struct {
	FromTxnDate string `xml:"FromTxnDate"`
	ToTxnDate   string `xml:"ToTxnDate"`
}

type salesReceiptQueryRq struct {
	// Iterator walks large result sets one page per round trip
	Iterator     string              `xml:"iterator,attr,omitempty"`
	IteratorID   string              `xml:"iteratorID,attr,omitempty"`
	MaxReturned  int                 `xml:"MaxReturned,omitempty"`
	RefNumber    string              `xml:"RefNumber,omitempty"`
	TxnDateRange *txnDateRangeFilter `xml:"TxnDateRangeFilter,omitempty"`
	IncludeLines bool                `xml:"IncludeLineItems,omitempty"`
	OwnerID      string              `xml:"OwnerID,omitempty"`
}

type salesReceiptQueryRs struct {
	rsStatus
	IteratorRemainingCount int               `xml:"iteratorRemainingCount,attr"`
	IteratorID             string            `xml:"iteratorID,attr"`
	Receipts               []salesReceiptRet `xml:"SalesReceiptRet"`
}

type salesReceiptLineRet struct {
	TxnLineID string  `xml:"TxnLineID"`
	ItemRef   *qbRef  `xml:"ItemRef"`
	Desc      string  `xml:"Desc"`
	Quantity  float64 `xml:"Quantity"`
	Rate      string  `xml:"Rate"`
	Amount    string  `xml:"Amount"`
}

type salesReceiptRet struct {
	TxnID           string                `xml:"TxnID"`
	RefNumber       string                `xml:"RefNumber"`
	TxnDate         string                `xml:"TxnDate"`
	CustomerRef     *qbRef                `xml:"CustomerRef"`
	BillAddress     *qbAddress            `xml:"BillAddress"`
	ShipAddress     *qbAddress            `xml:"ShipAddress"`
	ItemSalesTaxRef *qbRef                `xml:"ItemSalesTaxRef"`
	SalesTaxTotal   string                `xml:"SalesTaxTotal"`
	TotalAmount     string                `xml:"TotalAmount"`
	Memo            string                `xml:"Memo"`
	PaymentMethod   *qbRef                `xml:"PaymentMethodRef"`
	Lines           []salesReceiptLineRet `xml:"SalesReceiptLineRet"`
	DataExt         []dataExtRet          `xml:"DataExtRet"`
}

type salesReceiptLineAdd struct {
	ItemRef         *qbRef `xml:"ItemRef,omitempty"`
	Desc            string `xml:"Desc,omitempty"`
	Quantity        int    `xml:"Quantity,omitempty"`
	Rate            string `xml:"Rate,omitempty"`
	Amount          string `xml:"Amount,omitempty"`
	SalesTaxCodeRef *qbRef `xml:"SalesTaxCodeRef,omitempty"`
}

type salesReceiptAdd struct {
	CustomerRef     *qbRef                `xml:"CustomerRef"`
	TxnDate         string                `xml:"TxnDate,omitempty"`
	RefNumber       string                `xml:"RefNumber,omitempty"`
	BillAddress     *qbAddress            `xml:"BillAddress,omitempty"`
	ShipAddress     *qbAddress            `xml:"ShipAddress,omitempty"`
	ItemSalesTaxRef *qbRef                `xml:"ItemSalesTaxRef,omitempty"`
	Memo            string                `xml:"Memo,omitempty"`
	Lines           []salesReceiptLineAdd `xml:"SalesReceiptLineAdd"`
}

type salesReceiptAddRq struct {
	SalesReceiptAdd salesReceiptAdd `xml:"SalesReceiptAdd"`
}

type salesReceiptAddRs struct {
	rsStatus
	Receipt *salesReceiptRet `xml:"SalesReceiptRet"`
}

// ---------------------------------------------------------------------------
// Invoices
// ---------------------------------------------------------------------------

// Invoices are queried only as a duplicate guard: orders entered by hand
// sometimes land in the company file as invoices rather than receipts.

type invoiceQueryRq struct {
	RefNumber    string `xml:"RefNumber,omitempty"`
	IncludeLines bool   `xml:"IncludeLineItems,omitempty"`
	OwnerID      string `xml:"OwnerID,omitempty"`
}

type invoiceQueryRs struct {
	rsStatus
	Invoices []invoiceRet `xml:"InvoiceRet"`
}

type invoiceRet struct {
	TxnID           string                `xml:"TxnID"`
	RefNumber       string                `xml:"RefNumber"`
	TxnDate         string                `xml:"TxnDate"`
	CustomerRef     *qbRef                `xml:"CustomerRef"`
	BillAddress     *qbAddress            `xml:"BillAddress"`
	ShipAddress     *qbAddress            `xml:"ShipAddress"`
	ItemSalesTaxRef *qbRef                `xml:"ItemSalesTaxRef"`
	SalesTaxTotal   string                `xml:"SalesTaxTotal"`
	TotalAmount     string                `xml:"TotalAmount"`
	Memo            string                `xml:"Memo"`
	Lines           []salesReceiptLineRet `xml:"InvoiceLineRet"`
	DataExt         []dataExtRet          `xml:"DataExtRet"`
}

// ---------------------------------------------------------------------------
// Customers
// ---------------------------------------------------------------------------

type customerQueryRq struct {
	ListID   string `xml:"ListID,omitempty"`
	FullName string `xml:"FullName,omitempty"`
	OwnerID  string `xml:"OwnerID,omitempty"`
}

type customerQueryRs struct {
	rsStatus
	Customers []customerRet `xml:"CustomerRet"`
}

type customerRet struct {
	ListID      string       `xml:"ListID"`
	Name        string       `xml:"Name"`
	FullName    string       `xml:"FullName"`
	CompanyName string       `xml:"CompanyName"`
	FirstName   string       `xml:"FirstName"`
	LastName    string       `xml:"LastName"`
	BillAddress *qbAddress   `xml:"BillAddress"`
	ShipAddress *qbAddress   `xml:"ShipAddress"`
	Phone       string       `xml:"Phone"`
	Email       string       `xml:"Email"`
	DataExt     []dataExtRet `xml:"DataExtRet"`
}

type customerAdd struct {
	Name        string     `xml:"Name"`
	CompanyName string     `xml:"CompanyName,omitempty"`
	FirstName   string     `xml:"FirstName,omitempty"`
	LastName    string     `xml:"LastName,omitempty"`
	BillAddress *qbAddress `xml:"BillAddress,omitempty"`
	ShipAddress *qbAddress `xml:"ShipAddress,omitempty"`
	Phone       string     `xml:"Phone,omitempty"`
	Email       string     `xml:"Email,omitempty"`
}

type customerAddRq struct {
	CustomerAdd customerAdd `xml:"CustomerAdd"`
}

type customerAddRs struct {
	rsStatus
	Customer *customerRet `xml:"CustomerRet"`
}

// ---------------------------------------------------------------------------
// Sales Tax Items
// ---------------------------------------------------------------------------

type itemSalesTaxQueryRq struct {
	FullName string `xml:"FullName,omitempty"`
}

type itemSalesTaxQueryRs struct {
	rsStatus
	Items []itemSalesTaxRet `xml:"ItemSalesTaxRet"`
}

type itemSalesTaxRet struct {
	ListID  string `xml:"ListID"`
	Name    string `xml:"Name"`
	TaxRate string `xml:"TaxRate"`
}

type itemSalesTaxAdd struct {
	Name         string `xml:"Name"`
	TaxRate      string `xml:"TaxRate"`
	TaxVendorRef *qbRef `xml:"TaxVendorRef,omitempty"`
}

type itemSalesTaxAddRq struct {
	ItemSalesTaxAdd itemSalesTaxAdd `xml:"ItemSalesTaxAdd"`
}

type itemSalesTaxAddRs struct {
	rsStatus
	Item *itemSalesTaxRet `xml:"ItemSalesTaxRet"`
}

// ---------------------------------------------------------------------------
// Item Sites (inventory)
// ---------------------------------------------------------------------------

type itemSitesQueryRq struct {
	Active     string      `xml:"ActiveStatus,omitempty"`
	SiteFilter *siteFilter `xml:"SiteFilter,omitempty"`
}

type siteFilter struct {
	FullName string `xml:"FullName"`
}

type itemSitesQueryRs struct {
	rsStatus
	Sites []itemSiteRet `xml:"ItemSiteRet"`
}

type itemSiteRet struct {
	ItemRef        *qbRef  `xml:"ItemInventoryAssemblyRef"`
	InventoryRef   *qbRef  `xml:"ItemInventoryRef"`
	SiteRef        *qbRef  `xml:"SiteRef"`
	QuantityOnHand float64 `xml:"QuantityOnHand"`
}

// ---------------------------------------------------------------------------
// Data Extensions (cross-reference custom field)
// ---------------------------------------------------------------------------

type dataExt struct {
	OwnerID         string `xml:"OwnerID"`
	DataExtName     string `xml:"DataExtName"`
	ListDataExtType string `xml:"ListDataExtType,omitempty"`
	ListObjRef      *qbRef `xml:"ListObjRef,omitempty"`
	TxnDataExtType  string `xml:"TxnDataExtType,omitempty"`
	TxnID           string `xml:"TxnID,omitempty"`
	DataExtValue    string `xml:"DataExtValue"`
}

// dataExtRq serves both DataExtAddRq and DataExtModRq; the inner element
// name differs, so both are present and exactly one is set
type dataExtRq struct {
	DataExtAdd *dataExt `xml:"DataExtAdd,omitempty"`
	DataExtMod *dataExt `xml:"DataExtMod,omitempty"`
}

type dataExtRs struct {
	rsStatus
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// parseDecimal parses a wire amount, returning zero for empty or malformed
// values
func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func toDomainAddress(a *qbAddress) sync.Address {
	if a == nil {
		return sync.Address{}
	}
	return sync.Address{
		Company: a.Addr1,
		Street1: a.Addr2,
		Street2: a.Addr3,
		City:    a.City,
		State:   a.State,
		Zip:     a.PostalCode,
		Country: a.Country,
	}
}

func toAddAddress(a sync.AddressLines) *qbAddress {
	if (a == sync.AddressLines{}) {
		return nil
	}
	return &qbAddress{
		Addr1:      a.Line1,
		Addr2:      a.Line2,
		Addr3:      a.Line3,
		City:       a.City,
		State:      a.State,
		PostalCode: a.Zip,
		Country:    a.Country,
	}
}
