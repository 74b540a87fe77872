package model

// Schema описывает ожидаемый набор колонок таблицы хранилища.
// Порядок колонок важен только при создании заголовка с нуля.
type Schema struct {
	Table   string
	Version int
	Key     string
	Columns []string
}

// Названия колонок таблиц заказов и брифов.
const (
	ColCreatedAt      = "created_at"
	ColUpdatedAt      = "updated_at"
	ColOrderID        = "order_id"
	ColPlanID         = "plan_id"
	ColPlanName       = "plan_name"
	ColCustomerName   = "customer_name"
	ColPhone          = "phone"
	ColEmail          = "email"
	ColCity           = "city"
	ColPayMethod      = "pay_method"
	ColPayType        = "pay_type"
	ColAmount         = "amount"
	ColPaymentStatus  = "payment_status"
	ColProofURL       = "proof_url"
	ColStatus         = "status"
	ColNotes          = "notes"
	ColBusinessName   = "business_name"
	ColBusinessType   = "business_type"
	ColTargetAudience = "target_audience"
	ColColors         = "colors"
	ColPages          = "pages"
	ColMarket         = "market"
	ColFeatures       = "features"
	ColCompetitors    = "competitors"
	ColStyle          = "style"
	ColContentReady   = "content_ready"
)

const schemaVersion = 2

// OrdersSchema возвращает схему таблицы заказов с указанным именем листа.
func OrdersSchema(table string) Schema {
	return Schema{
		Table:   table,
		Version: schemaVersion,
		Key:     ColOrderID,
		Columns: []string{
			ColCreatedAt, ColOrderID, ColPlanID, ColPlanName, ColCustomerName,
			ColPhone, ColEmail, ColCity, ColPayMethod, ColPayType, ColAmount,
			ColPaymentStatus, ColProofURL, ColStatus, ColNotes, ColUpdatedAt,
		},
	}
}

// BriefsSchema возвращает схему таблицы брифов с указанным именем листа.
func BriefsSchema(table string) Schema {
	return Schema{
		Table:   table,
		Version: schemaVersion,
		Key:     ColOrderID,
		Columns: []string{
			ColCreatedAt, ColOrderID, ColPlanID, ColPlanName, ColBusinessName,
			ColBusinessType, ColTargetAudience, ColColors, ColPages, ColMarket,
			ColFeatures, ColCompetitors, ColStyle, ColContentReady, ColNotes,
			ColStatus, ColUpdatedAt,
		},
	}
}
