package reports

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const defaultLedgerPageSize = 200

// LedgerCursor walks an account's general ledger lazily, fetching one
// keyset page at a time. It is finite and restartable: Reset rewinds to
// the start of the range without re-running previous queries eagerly.
// Not safe for concurrent use.
type LedgerCursor struct {
	repo      Repository
	accountID uuid.UUID
	start     time.Time
	end       time.Time
	pageSize  int

	buf  []LedgerLine
	pos  int
	key  LedgerKey
	done bool
	err  error
}

func newLedgerCursor(repo Repository, accountID uuid.UUID, start, end time.Time) *LedgerCursor {
	return &LedgerCursor{
		repo:      repo,
		accountID: accountID,
		start:     start,
		end:       end,
		pageSize:  defaultLedgerPageSize,
	}
}

// Next advances to the next line. It returns false at the end of the
// range or on error; check Err afterwards.
func (c *LedgerCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if c.pos < len(c.buf)-1 {
		c.pos++
		return true
	}
	if c.done {
		return false
	}
	page, err := c.repo.LedgerPage(ctx, c.accountID, c.start, c.end, c.key, c.pageSize)
	if err != nil {
		c.err = err
		return false
	}
	if len(page) == 0 {
		c.done = true
		return false
	}
	if len(page) < c.pageSize {
		c.done = true
	}
	last := page[len(page)-1]
	c.key = LedgerKey{Date: last.EntryDate, Number: last.EntryNumber, LineOrder: last.LineOrder}
	c.buf = page
	c.pos = 0
	return true
}

// Line returns the current line. Valid only after Next reported true.
func (c *LedgerCursor) Line() LedgerLine {
	return c.buf[c.pos]
}

// Err reports the first error encountered while paging.
func (c *LedgerCursor) Err() error {
	return c.err
}

// Reset rewinds the cursor to the start of its date range.
func (c *LedgerCursor) Reset() {
	c.buf = nil
	c.pos = 0
	c.key = LedgerKey{}
	c.done = false
	c.err = nil
}
