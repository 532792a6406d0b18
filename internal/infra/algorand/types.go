package algorand

import "errors"

var (
	// ErrNotFound is returned when the indexer has no record of the
	// requested resource. For transactions this usually means the indexer
	// has not caught up yet, so callers treat it as transient.
	ErrNotFound = errors.New("not found in indexer")

	// ErrNoProviders is returned when every configured provider failed.
	ErrNoProviders = errors.New("all indexer providers failed")
)

// Transaction is the subset of an indexer transaction record the backend
// reads. Field names follow the indexer's kebab-case JSON.
type Transaction struct {
	ID               string             `json:"id"`
	Sender           string             `json:"sender"`
	TxType           string             `json:"tx-type"`
	ConfirmedRound   uint64             `json:"confirmed-round"`
	RoundTime        uint64             `json:"round-time"`
	ApplicationCall  *ApplicationCall   `json:"application-transaction,omitempty"`
	Payment          *Payment           `json:"payment-transaction,omitempty"`
	GlobalStateDelta []StateDeltaEntry  `json:"global-state-delta,omitempty"`
	InnerTxns        []Transaction      `json:"inner-txns,omitempty"`
}

// ApplicationCall holds app-call specific fields.
type ApplicationCall struct {
	ApplicationID   uint64   `json:"application-id"`
	ApplicationArgs []string `json:"application-args"` // base64
	OnCompletion    string   `json:"on-completion"`
}

// Payment holds payment-specific fields.
type Payment struct {
	Amount   uint64 `json:"amount"`
	Receiver string `json:"receiver"`
}

// StateDeltaEntry is one key/value change in an application's global state.
type StateDeltaEntry struct {
	Key   string     `json:"key"` // base64
	Value StateValue `json:"value"`
}

// StateValue is a TEAL value in a state delta or global state.
type StateValue struct {
	Action uint64 `json:"action,omitempty"`
	Type   uint64 `json:"type,omitempty"`
	Uint   uint64 `json:"uint"`
	Bytes  string `json:"bytes"` // base64
}

// TealKeyValue is one entry of an application's global state.
type TealKeyValue struct {
	Key   string     `json:"key"` // base64
	Value StateValue `json:"value"`
}

// BoxDescriptor is a box name as listed by the indexer.
type BoxDescriptor struct {
	Name string `json:"name"` // base64
}

// transactionResponse wraps GET /v2/transactions/{txid}.
type transactionResponse struct {
	Transaction  Transaction `json:"transaction"`
	CurrentRound uint64      `json:"current-round"`
}

// transactionsResponse wraps GET /v2/transactions.
type transactionsResponse struct {
	Transactions []Transaction `json:"transactions"`
	CurrentRound uint64        `json:"current-round"`
	NextToken    string        `json:"next-token"`
}

// boxesResponse wraps GET /v2/applications/{id}/boxes.
type boxesResponse struct {
	ApplicationID uint64          `json:"application-id"`
	Boxes         []BoxDescriptor `json:"boxes"`
	NextToken     string          `json:"next-token"`
}

// boxResponse wraps GET /v2/applications/{id}/box.
type boxResponse struct {
	Name  string `json:"name"`  // base64
	Value string `json:"value"` // base64
}

// applicationResponse wraps GET /v2/applications/{id}.
type applicationResponse struct {
	Application struct {
		ID     uint64 `json:"id"`
		Params struct {
			GlobalState []TealKeyValue `json:"global-state"`
		} `json:"params"`
	} `json:"application"`
	CurrentRound uint64 `json:"current-round"`
}

// healthResponse wraps GET /health.
type healthResponse struct {
	Round   uint64 `json:"round"`
	Message string `json:"message"`
	Errors  []any  `json:"errors"`
}

// TxPage is one page of application transactions from a sweep.
type TxPage struct {
	Transactions []Transaction
	CurrentRound uint64
	NextToken    string
}
