package kafka

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Message headers read and written by fern
const (
	HeaderEventType     = "event_type"
	HeaderSchemaVersion = "schema_version"
	HeaderDocumentID    = "document_id"
)

// ErrPermanent marks a message that will never succeed. Such messages are committed and
// skipped instead of retried.
var ErrPermanent = errors.New("permanent message failure")

// Permanent wraps err as a permanent failure
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// IsPermanent reports whether err was marked permanent
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Parsed content
	Request *models.LinkDocumentRequest
}

// ParseLinkRequest decodes the message as a document to link. Two shapes are accepted: the
// API envelope {"document_id", "entity_bag"} or a bare entity bag whose document id travels
// in the document_id header or the message key.
func (m *IncomingMessage) ParseLinkRequest() (*models.LinkDocumentRequest, error) {
	value := bytes.TrimSpace(m.Value)
	if len(value) == 0 || value[0] != '{' {
		return nil, Permanent(errors.New("message value is not a JSON object"))
	}

	var envelope struct {
		DocumentID string          `json:"document_id"`
		EntityBag  json.RawMessage `json:"entity_bag"`
	}
	if err := json.Unmarshal(value, &envelope); err != nil {
		return nil, Permanent(fmt.Errorf("decode message: %w", err))
	}

	bagJSON := envelope.EntityBag
	if len(bagJSON) == 0 || string(bagJSON) == "null" {
		bagJSON = value
	}
	var bag models.EntityBag
	if err := json.Unmarshal(bagJSON, &bag); err != nil {
		return nil, Permanent(fmt.Errorf("decode entity bag: %w", err))
	}

	req := &models.LinkDocumentRequest{
		DocumentID: m.DocumentID(envelope.DocumentID),
		EntityBag:  &bag,
	}
	if req.DocumentID == "" {
		return nil, Permanent(errors.New("message carries no document id"))
	}
	m.Request = req
	return req, nil
}

// DocumentID returns fromBody, else the document_id header, else the message key
func (m *IncomingMessage) DocumentID(fromBody string) string {
	for _, v := range []string{fromBody, m.Headers[HeaderDocumentID], m.Key} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
