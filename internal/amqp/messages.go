package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ImportJobMessage asks the worker to ingest CSV statements. With a
// CSVPath it targets one file; without, the worker sweeps the whole
// download directory. StartDate and EndDate are hints forwarded to the
// external scraper and do not constrain the import itself.
type ImportJobMessage struct {
	JobID       string    `json:"job_id"`
	CSVPath     string    `json:"csv_path,omitempty"`
	StartDate   string    `json:"start_date,omitempty"`
	EndDate     string    `json:"end_date,omitempty"`
	RequestedBy string    `json:"requested_by,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewImportJobMessage mints a job with a fresh id.
func NewImportJobMessage(csvPath, requestedBy string) *ImportJobMessage {
	return &ImportJobMessage{
		JobID:       uuid.NewString(),
		CSVPath:     csvPath,
		RequestedBy: requestedBy,
		Timestamp:   time.Now(),
	}
}

func (m *ImportJobMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ImportJobMessageFromJSON(data []byte) (*ImportJobMessage, error) {
	var msg ImportJobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
