package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"costledger/internal/core/id"
	"costledger/internal/domain/audit"
)

// CompressionAlgo tells how an audit payload is stored.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// defaultCompressThreshold is the payload size above which zstd is used.
const defaultCompressThreshold = 4 * 1024

// AuditRecorder implements audit.Recorder over the posting_audit table.
// Payloads above the threshold are zstd-compressed into payload_compressed.
type AuditRecorder struct {
	txManager         *TxManager
	encoder           *zstd.Encoder
	decoder           *zstd.Decoder
	compressThreshold int
}

var _ audit.Recorder = (*AuditRecorder)(nil)

// NewAuditRecorder creates an audit recorder. A threshold <= 0 uses the default.
func NewAuditRecorder(txManager *TxManager, compressThreshold int) (*AuditRecorder, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	if compressThreshold <= 0 {
		compressThreshold = defaultCompressThreshold
	}
	return &AuditRecorder{
		txManager:         txManager,
		encoder:           encoder,
		decoder:           decoder,
		compressThreshold: compressThreshold,
	}, nil
}

// Record stores an audit event.
func (s *AuditRecorder) Record(ctx context.Context, ev audit.Event) error {
	if id.IsNil(ev.ID) {
		ev.ID = id.New()
	}

	payload := []byte(ev.Payload)
	var compressed []byte
	algo := CompressionNone
	if len(payload) > s.compressThreshold {
		compressed = s.encoder.EncodeAll(payload, nil)
		payload = nil
		algo = CompressionZstd
	}

	const sql = `
		INSERT INTO posting_audit (
			id, company_id, operation, reference_id, outcome, error_code,
			payload, payload_compressed, compression_algo, actor, request_id,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql,
		ev.ID, ev.CompanyID, ev.Operation, ev.ReferenceID, string(ev.Outcome), ev.ErrorCode,
		payload, compressed, string(algo), ev.Actor, ev.RequestID,
		ev.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// History returns the audit events of a reference, newest first.
func (s *AuditRecorder) History(ctx context.Context, companyID, referenceID id.ID, limit int) ([]audit.Event, error) {
	const sql = `
		SELECT id, company_id, operation, reference_id, outcome, error_code,
		       payload, payload_compressed, compression_algo, actor, request_id,
		       created_at
		FROM posting_audit
		WHERE company_id = $1 AND reference_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := s.txManager.GetQuerier(ctx).Query(ctx, sql, companyID, referenceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			ev         audit.Event
			outcome    string
			payload    []byte
			compressed []byte
			algo       string
		)
		err := rows.Scan(
			&ev.ID, &ev.CompanyID, &ev.Operation, &ev.ReferenceID, &outcome, &ev.ErrorCode,
			&payload, &compressed, &algo, &ev.Actor, &ev.RequestID,
			&ev.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		ev.Outcome = audit.Outcome(outcome)

		if CompressionAlgo(algo) == CompressionZstd && len(compressed) > 0 {
			payload, err = s.decoder.DecodeAll(compressed, nil)
			if err != nil {
				return nil, fmt.Errorf("decompress audit payload: %w", err)
			}
		}
		if len(payload) > 0 {
			ev.Payload = json.RawMessage(payload)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
