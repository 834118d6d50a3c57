package domain

import (
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/shopspring/decimal"
)

// Entity is the business unit every ingested row is tagged with.
type Entity string

const (
	EntityHQ         Entity = "HQ"
	EntityUSA        Entity = "USA"
	EntityBWA        Entity = "BWA"
	EntityVietnam    Entity = "Vietnam"
	EntityHealthcare Entity = "Healthcare"
	EntityKorot      Entity = "Korot"
)

var entities = []Entity{EntityHQ, EntityUSA, EntityBWA, EntityVietnam, EntityHealthcare, EntityKorot}

// Entities returns the closed set of accepted entities.
func Entities() []Entity {
	out := make([]Entity, len(entities))
	copy(out, entities)
	return out
}

// Valid reports whether e belongs to the enumeration.
func (e Entity) Valid() bool {
	for _, known := range entities {
		if e == known {
			return true
		}
	}
	return false
}

// ParseEntity trims s and checks it against the enumeration.
func ParseEntity(s string) (Entity, error) {
	e := Entity(strings.TrimSpace(s))
	if !e.Valid() {
		return "", fmt.Errorf("unknown entity %q", s)
	}
	return e, nil
}

// CanonicalRow is one fully coerced sales record as stored in the fact table.
//
// Every mapped column is independently nullable. Year and Quarter are either
// both set or both null.
type CanonicalRow struct {
	Entity        Entity              `db:"entity"`
	Year          bigquery.NullInt64  `db:"year"`
	Quarter       bigquery.NullString `db:"quarter"`
	UploadBatchID string              `db:"upload_batch_id"`

	// Dates.
	InvoiceDate       bigquery.NullDate `db:"invoice_date"`
	Date              bigquery.NullDate `db:"date"`
	OrderDate         bigquery.NullDate `db:"order_date"`
	PODate            bigquery.NullDate `db:"po_date"`
	ShipDate          bigquery.NullDate `db:"ship_date"`
	DeliveryDate      bigquery.NullDate `db:"delivery_date"`
	DueDate           bigquery.NullDate `db:"due_date"`
	PaymentDate       bigquery.NullDate `db:"payment_date"`
	ContractStartDate bigquery.NullDate `db:"contract_start_date"`
	ContractEndDate   bigquery.NullDate `db:"contract_end_date"`

	// Identifiers and descriptive text.
	InvoiceNo       bigquery.NullString `db:"invoice_no"`
	OrderNo         bigquery.NullString `db:"order_no"`
	PONumber        bigquery.NullString `db:"po_number"`
	DeliveryNote    bigquery.NullString `db:"delivery_note"`
	InvoiceStatus   bigquery.NullString `db:"invoice_status"`
	CustomerCode    bigquery.NullString `db:"customer_code"`
	CustomerName    bigquery.NullString `db:"customer_name"`
	CustomerGroup   bigquery.NullString `db:"customer_group"`
	CustomerType    bigquery.NullString `db:"customer_type"`
	BillTo          bigquery.NullString `db:"bill_to"`
	ShipTo          bigquery.NullString `db:"ship_to"`
	Country         bigquery.NullString `db:"country"`
	Region          bigquery.NullString `db:"region"`
	State           bigquery.NullString `db:"state"`
	City            bigquery.NullString `db:"city"`
	PostalCode      bigquery.NullString `db:"postal_code"`
	Channel         bigquery.NullString `db:"channel"`
	Segment         bigquery.NullString `db:"segment"`
	SalesRep        bigquery.NullString `db:"sales_rep"`
	SalesManager    bigquery.NullString `db:"sales_manager"`
	Territory       bigquery.NullString `db:"territory"`
	ProductCode     bigquery.NullString `db:"product_code"`
	ProductName     bigquery.NullString `db:"product_name"`
	ProductCategory bigquery.NullString `db:"product_category"`
	ProductLine     bigquery.NullString `db:"product_line"`
	Brand           bigquery.NullString `db:"brand"`
	SKU             bigquery.NullString `db:"sku"`
	LotNumber       bigquery.NullString `db:"lot_number"`
	UOM             bigquery.NullString `db:"uom"`
	Currency        bigquery.NullString `db:"currency"`
	Incoterm        bigquery.NullString `db:"incoterm"`
	PaymentTerms    bigquery.NullString `db:"payment_terms"`
	PaymentMethod   bigquery.NullString `db:"payment_method"`
	PaymentStatus   bigquery.NullString `db:"payment_status"`
	Warehouse       bigquery.NullString `db:"warehouse"`
	Carrier         bigquery.NullString `db:"carrier"`
	Project         bigquery.NullString `db:"project"`
	CostCenter      bigquery.NullString `db:"cost_center"`
	GLAccount       bigquery.NullString `db:"gl_account"`
	Remarks         bigquery.NullString `db:"remarks"`

	// Quantities and amounts.
	Quantity          decimal.NullDecimal `db:"quantity"`
	Cases             decimal.NullDecimal `db:"cases"`
	UnitsPerCase      decimal.NullDecimal `db:"units_per_case"`
	UnitPrice         decimal.NullDecimal `db:"unit_price"`
	ListPrice         decimal.NullDecimal `db:"list_price"`
	UnitCost          decimal.NullDecimal `db:"unit_cost"`
	Discount          decimal.NullDecimal `db:"discount"`
	DiscountPct       decimal.NullDecimal `db:"discount_pct"`
	GrossAmount       decimal.NullDecimal `db:"gross_amount"`
	NetAmount         decimal.NullDecimal `db:"net_amount"`
	TaxRate           decimal.NullDecimal `db:"tax_rate"`
	TaxAmount         decimal.NullDecimal `db:"tax_amount"`
	Freight           decimal.NullDecimal `db:"freight"`
	Insurance         decimal.NullDecimal `db:"insurance"`
	TotalAmount       decimal.NullDecimal `db:"total_amount"`
	AmountLocal       decimal.NullDecimal `db:"amount_local"`
	ExchangeRate      decimal.NullDecimal `db:"exchange_rate"`
	AmountUSD         decimal.NullDecimal `db:"amount_usd"`
	CostOfGoods       decimal.NullDecimal `db:"cost_of_goods"`
	GrossMargin       decimal.NullDecimal `db:"gross_margin"`
	GrossMarginPct    decimal.NullDecimal `db:"gross_margin_pct"`
	CommissionRate    decimal.NullDecimal `db:"commission_rate"`
	Commission        decimal.NullDecimal `db:"commission"`
	Rebate            decimal.NullDecimal `db:"rebate"`
	ReturnsAmount     decimal.NullDecimal `db:"returns_amount"`
	PaidAmount        decimal.NullDecimal `db:"paid_amount"`
	OutstandingAmount decimal.NullDecimal `db:"outstanding_amount"`
	PaymentTermsDays  decimal.NullDecimal `db:"payment_terms_days"`
	WeightKg          decimal.NullDecimal `db:"weight_kg"`
	VolumeM3          decimal.NullDecimal `db:"volume_m3"`
	BudgetAmount      decimal.NullDecimal `db:"budget_amount"`
	ForecastAmount    decimal.NullDecimal `db:"forecast_amount"`
}
