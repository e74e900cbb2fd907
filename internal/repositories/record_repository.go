package repositories

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"certmill/internal/httpkit"
	"certmill/internal/models"
	"certmill/internal/pkg/errors"
)

// RecordRepository loads participant records. A record is a flat JSON object
// in fields_json; nested values are rejected since placeholder resolution
// only understands scalars.
type RecordRepository struct {
	db *pgxpool.Pool
}

func NewRecordRepository(db *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{db: db}
}

func (r *RecordRepository) RecordByID(ctx context.Context, recordID string) (models.Record, error) {
	var fields []byte
	err := r.db.QueryRow(ctx, `
		SELECT fields_json
		FROM participants
		WHERE id=$1
	`, recordID).Scan(&fields)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("record", recordID)
	}
	if httpkit.IsUndefinedTable(err) {
		return nil, errors.Wrap(err, "repositories.record", "participants table missing, run migrations")
	}
	if err != nil {
		return nil, errors.Wrap(err, "repositories.record", "record query failed")
	}

	var record models.Record
	if err := json.Unmarshal(fields, &record); err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "repositories.record", "record fields are not valid json")
	}
	for key, value := range record {
		switch value.(type) {
		case map[string]any, []any:
			return nil, errors.Validationf("record field %q is not a scalar", key)
		}
	}
	return record, nil
}
