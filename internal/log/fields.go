package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldUserAgent  = "user_agent"
	FieldError      = "error"
	FieldOperation  = "operation"

	FieldUserID      = "user_id"
	FieldEmail       = "email"
	FieldTxCount     = "tx_count"
	FieldTxType      = "tx_type"
	FieldCategory    = "category"
	FieldAmountCents = "amount_cents"
	FieldLimitCents  = "limit_cents"
	FieldSpentCents  = "spent_cents"
	FieldPeriod      = "period"
	FieldMonth       = "month"
	FieldYear        = "year"
	FieldEMIID       = "emi_id"
	FieldBudgetID    = "budget_id"
	FieldAlertCount  = "alert_count"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentAuth      = "auth"
	ComponentLedger    = "ledger"
	ComponentAnalytics = "analytics"
	ComponentBudget    = "budget"
	ComponentEMI       = "emi"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentSheets    = "sheets"
	ComponentCache     = "cache"
)

// Operations defines standard operation names
const (
	OpRegister = "register"
	OpLogin    = "login"
	OpIngest   = "ingest"
	OpQuery    = "query"
	OpAlert    = "alert"
	OpCreate   = "create"
	OpUpdate   = "update"
	OpList     = "list"
	OpSync     = "sync"
	OpStartup  = "startup"
	OpShutdown = "shutdown"
)
