package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"

	"github.com/docvaulthq/docvault/internal/config"
)

// AnalysisService hands freshly uploaded documents to the analysis
// worker over a PGMQ queue. Enqueue happens after a successful
// tenant-scoped insert and is fire-and-forget: a queue failure never
// fails the upload.
type AnalysisService struct {
	DB *sql.DB
}

func NewAnalysisService(database *sql.DB) *AnalysisService {
	return &AnalysisService{DB: database}
}

// AnalysisRequest is the queue message. The organization id is captured
// from the verified security context at enqueue time so the worker can
// re-enter the tenant filter when it writes results back.
type AnalysisRequest struct {
	DocumentID     string `json:"document_id"`
	OrganizationID string `json:"organization_id"`
}

// QueuedAnalysis is one message read off the queue.
type QueuedAnalysis struct {
	MsgID   int64
	Request AnalysisRequest
}

// Enqueue publishes a document for analysis.
func (s *AnalysisService) Enqueue(documentID, organizationID string) error {
	if !config.App.Analysis.Enabled {
		return nil
	}

	payload, err := json.Marshal(AnalysisRequest{
		DocumentID:     documentID,
		OrganizationID: organizationID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal analysis request: %w", err)
	}

	var msgID int64
	err = s.DB.QueryRowContext(context.Background(),
		`SELECT pgmq.send($1, $2::jsonb);`, config.App.Analysis.QueueName, payload).Scan(&msgID)
	if err != nil {
		return fmt.Errorf("failed to send message to PGMQ: %w", err)
	}

	log.Printf("Queued document %s for analysis (PGMQ msg_id: %d)", documentID, msgID)
	return nil
}

// EnqueueAsync is the non-blocking form used on the upload path.
func (s *AnalysisService) EnqueueAsync(documentID, organizationID string) {
	go func() {
		if err := s.Enqueue(documentID, organizationID); err != nil {
			log.Printf("Failed to queue document %s for analysis: %v", documentID, err)
		}
	}()
}

// CreateQueueIfNotExists ensures the PGMQ queue exists. pgmq.create is
// idempotent, so errors here are logged and ignored.
func (s *AnalysisService) CreateQueueIfNotExists() error {
	_, err := s.DB.ExecContext(context.Background(),
		`SELECT pgmq.create($1);`, config.App.Analysis.QueueName)
	if err != nil {
		log.Printf("PGMQ queue %q setup (might already exist): %v", config.App.Analysis.QueueName, err)
		return nil
	}
	log.Printf("PGMQ queue %q ready", config.App.Analysis.QueueName)
	return nil
}

// Read pops up to limit messages with a visibility timeout, for the
// analysis worker.
func (s *AnalysisService) Read(ctx context.Context, limit int) ([]QueuedAnalysis, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT msg_id, message FROM pgmq.read($1, $2, $3);`,
		config.App.Analysis.QueueName, 30, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read from PGMQ: %w", err)
	}
	defer rows.Close()

	var messages []QueuedAnalysis
	for rows.Next() {
		var msg QueuedAnalysis
		var raw []byte
		if err := rows.Scan(&msg.MsgID, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan PGMQ message: %w", err)
		}
		if err := json.Unmarshal(raw, &msg.Request); err != nil {
			log.Printf("Warning: dropping malformed analysis message %d: %v", msg.MsgID, err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Delete acknowledges a processed message.
func (s *AnalysisService) Delete(ctx context.Context, msgID int64) error {
	var deleted bool
	err := s.DB.QueryRowContext(ctx,
		`SELECT pgmq.delete($1, $2::bigint);`, config.App.Analysis.QueueName, msgID).Scan(&deleted)
	if err != nil {
		return fmt.Errorf("failed to delete PGMQ message %d: %w", msgID, err)
	}
	return nil
}
