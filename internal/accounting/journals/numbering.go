package journals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SequenceNumberGenerator issues journal numbers of the form
// JE-<year>-<seq>, sequential per company and fiscal year. The upsert
// increments under the row lock, so concurrent drafts never collide.
type SequenceNumberGenerator struct {
	db *pgxpool.Pool
}

func NewSequenceNumberGenerator(pool *pgxpool.Pool) *SequenceNumberGenerator {
	return &SequenceNumberGenerator{db: pool}
}

func (g *SequenceNumberGenerator) Next(ctx context.Context, companyID uuid.UUID, date time.Time) (string, error) {
	var next int64
	err := g.db.QueryRow(ctx, `INSERT INTO journal_number_seqs (company_id, fiscal_year, last_no)
VALUES ($1, $2, 1)
ON CONFLICT (company_id, fiscal_year) DO UPDATE SET last_no = journal_number_seqs.last_no + 1
RETURNING last_no`, companyID, date.Year()).Scan(&next)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("JE-%d-%06d", date.Year(), next), nil
}
