package audit

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Event struct {
	Timestamp     time.Time       `json:"timestamp"`
	EventType     string          `json:"event_type"`
	TransactionID int64           `json:"transaction_id,omitempty"`
	AccountID     int64           `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
	Status        string          `json:"status"`
	Details       map[string]any  `json:"details,omitempty"`
}

// Logger writes ledger audit events as structured log entries.
type Logger struct {
	log logrus.FieldLogger
}

func NewLogger(log logrus.FieldLogger) *Logger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Logger{log: log}
}

func (a *Logger) LogPosting(transactionID, accountID int64, txType, source string, amount, balance decimal.Decimal) {
	a.write(Event{
		Timestamp:     time.Now(),
		EventType:     "POSTING",
		TransactionID: transactionID,
		AccountID:     accountID,
		Amount:        amount,
		Balance:       balance,
		Status:        "SUCCESS",
		Details:       map[string]any{"transaction_type": txType, "source": source},
	})
}

func (a *Logger) LogRejected(accountID int64, txType string, amount decimal.Decimal, err error) {
	a.write(Event{
		Timestamp: time.Now(),
		EventType: "POSTING",
		AccountID: accountID,
		Amount:    amount,
		Status:    "REJECTED",
		Details:   map[string]any{"transaction_type": txType, "error": err.Error()},
	})
}

func (a *Logger) write(e Event) {
	fields := logrus.Fields{
		"audit":      true,
		"event_type": e.EventType,
		"account_id": e.AccountID,
		"amount":     e.Amount.StringFixed(2),
		"status":     e.Status,
	}
	if e.TransactionID != 0 {
		fields["transaction_id"] = e.TransactionID
		fields["balance"] = e.Balance.StringFixed(2)
	}
	for k, v := range e.Details {
		fields[k] = v
	}
	a.log.WithFields(fields).WithTime(e.Timestamp).Info("ledger audit")
}
