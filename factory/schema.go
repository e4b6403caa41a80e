package factory

// =============================================================================
// JSON SCHEMAS - Shape checks applied before decoding
// =============================================================================

// Amounts may arrive as JSON numbers or decimal strings. Dates are YYYY-MM-DD.
const definitions = `
  "$defs": {
    "amount": {
      "oneOf": [
        {"type": "number", "minimum": 0},
        {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?$"}
      ]
    },
    "signed_amount": {
      "oneOf": [
        {"type": "number"},
        {"type": "string", "pattern": "^-?[0-9]+(\\.[0-9]+)?$"}
      ]
    },
    "date": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"}
  }`

const policySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "principal_amount", "start_date"],
  "properties": {
    "id": {"type": "string", "minLength": 1},
    "policy_number": {"type": "string"},
    "investor_id": {"type": "string"},
    "investor_name": {"type": "string"},
    "principal_amount": {"$ref": "#/$defs/amount"},
    "current_balance": {"$ref": "#/$defs/amount"},
    "roi_balance": {"$ref": "#/$defs/amount"},
    "roi_rate": {"$ref": "#/$defs/amount"},
    "roi_frequency": {"enum": ["monthly", "on_demand"]},
    "start_date": {"$ref": "#/$defs/date"},
    "min_withdrawal_months": {"type": "integer", "minimum": 0},
    "status": {"enum": ["active", "suspended", "matured", "closed"]},
    "version": {"type": "integer", "minimum": 0}
  },` + definitions + `
}`

const entriesSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["policy_id", "entry_date", "type", "principal_balance", "roi_balance", "total_balance"],
    "properties": {
      "id": {"type": "string"},
      "policy_id": {"type": "string", "minLength": 1},
      "sequence": {"type": "integer", "minimum": 0},
      "entry_date": {"$ref": "#/$defs/date"},
      "description": {"type": "string"},
      "type": {"enum": ["top_up", "accrual", "withdrawal", "adjustment"]},
      "inflow": {"$ref": "#/$defs/amount"},
      "outflow": {"$ref": "#/$defs/amount"},
      "principal_change": {"$ref": "#/$defs/signed_amount"},
      "roi_change": {"$ref": "#/$defs/signed_amount"},
      "principal_balance": {"$ref": "#/$defs/amount"},
      "roi_balance": {"$ref": "#/$defs/amount"},
      "total_balance": {"$ref": "#/$defs/amount"},
      "withdrawal_type": {"enum": ["", "roi_only", "principal_only", "composite"]}
    }
  },` + definitions + `
}`

const requestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["policy_id", "type", "amount_requested"],
  "properties": {
    "id": {"type": "string"},
    "policy_id": {"type": "string", "minLength": 1},
    "type": {"enum": ["roi_only", "principal_only", "composite"]},
    "amount_requested": {"$ref": "#/$defs/amount"},
    "request_date": {"$ref": "#/$defs/date"},
    "status": {"enum": ["pending", "approved", "rejected", "processed"]},
    "bank": {
      "type": "object",
      "properties": {
        "bank_name": {"type": "string"},
        "account_name": {"type": "string"},
        "account_number": {"type": "string", "pattern": "^[0-9]{10}$"}
      }
    }
  },` + definitions + `
}`
