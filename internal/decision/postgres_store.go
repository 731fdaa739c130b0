package decision

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresStore persists decisions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed decision store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the decisions table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS decisions (
			id            VARCHAR(36) PRIMARY KEY,
			user_id       VARCHAR(64) NOT NULL,
			verdict       VARCHAR(10) NOT NULL CHECK (verdict IN ('APPROVE', 'REVIEW', 'BLOCK')),
			risk_score    INT NOT NULL CHECK (risk_score >= 0 AND risk_score <= 100),
			reasons       JSONB NOT NULL DEFAULT '[]',
			signals       JSONB NOT NULL DEFAULT '{}',
			device_id     VARCHAR(64) NOT NULL DEFAULT '',
			ip_address    VARCHAR(45) NOT NULL DEFAULT '',
			amount        NUMERIC(18,2) NOT NULL DEFAULT 0,
			lat           DOUBLE PRECISION NOT NULL DEFAULT 0,
			lon           DOUBLE PRECISION NOT NULL DEFAULT 0,
			tx_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			evaluated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_decisions_user_id
			ON decisions (user_id, evaluated_at DESC);

		CREATE INDEX IF NOT EXISTS idx_decisions_blocks
			ON decisions (evaluated_at DESC) WHERE verdict = 'BLOCK';
	`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, d *Decision) error {
	reasonsJSON, err := json.Marshal(d.Reasons)
	if err != nil {
		return fmt.Errorf("failed to marshal reasons: %w", err)
	}
	signalsJSON, err := json.Marshal(d.Signals)
	if err != nil {
		return fmt.Errorf("failed to marshal signals: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decisions
			(id, user_id, verdict, risk_score, reasons, signals,
			 device_id, ip_address, amount, lat, lon, tx_at, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		d.ID,
		d.UserID,
		string(d.Verdict),
		d.RiskScore,
		reasonsJSON,
		signalsJSON,
		d.Transaction.DeviceID,
		d.Transaction.IPAddress,
		d.Transaction.Amount,
		d.Transaction.Lat,
		d.Transaction.Lon,
		d.Transaction.Timestamp,
		d.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, verdict, risk_score, reasons, signals,
		       device_id, ip_address, amount, lat, lon, tx_at, evaluated_at
		FROM decisions
		WHERE user_id = $1
		ORDER BY evaluated_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanDecisions(rows)
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, verdict, risk_score, reasons, signals,
		       device_id, ip_address, amount, lat, lon, tx_at, evaluated_at
		FROM decisions
		ORDER BY evaluated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return scanDecisions(rows)
}

func scanDecisions(rows *sql.Rows) ([]*Decision, error) {
	var result []*Decision
	for rows.Next() {
		var d Decision
		var reasonsJSON, signalsJSON []byte
		var txAt, evaluatedAt time.Time

		if err := rows.Scan(
			&d.ID, &d.UserID, &d.Verdict, &d.RiskScore, &reasonsJSON, &signalsJSON,
			&d.Transaction.DeviceID, &d.Transaction.IPAddress, &d.Transaction.Amount,
			&d.Transaction.Lat, &d.Transaction.Lon, &txAt, &evaluatedAt,
		); err != nil {
			continue
		}
		d.Transaction.UserID = d.UserID
		d.Transaction.Timestamp = txAt
		d.EvaluatedAt = evaluatedAt
		_ = json.Unmarshal(reasonsJSON, &d.Reasons)
		d.Signals = make(map[string]float64)
		_ = json.Unmarshal(signalsJSON, &d.Signals)
		result = append(result, &d)
	}
	return result, rows.Err()
}
