// Package requestid produces the human-readable request codes used for leave
// and compensatory-work records: {TYPE}{YEAR}{SCOPE}{SEQ}, e.g. CL2026CSE0007.
// Sequences are partitioned by type+year+scope and never reused within a year.
package requestid

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	// MaxSeq is the design limit of the 4-digit sequence window. Hitting it
	// is surfaced as an error, never wrapped around.
	MaxSeq = 9999

	// MaxAttempts bounds the insert-retry loop a caller runs when a generated
	// id collides with an existing row.
	MaxAttempts = 10

	// ScopeNonTeaching is the fixed scope code for non-teaching staff, whose
	// requests are not partitioned by department.
	ScopeNonTeaching = "NT"
)

var ErrSequenceExhausted = errors.New("request id sequence exhausted for partition")

var trailingSeq = regexp.MustCompile(`(\d{4})$`)

// Format renders a request id from its parts.
func Format(typeCode string, year int, scope string, seq int) string {
	return fmt.Sprintf("%s%d%s%04d", typeCode, year, scope, seq)
}

// Prefix is the partition key: everything before the 4-digit sequence.
func Prefix(typeCode string, year int, scope string) string {
	return fmt.Sprintf("%s%d%s", typeCode, year, scope)
}

// ParseSeq extracts the trailing 4-digit sequence from an id. Returns false
// when the id does not end in exactly four digits.
func ParseSeq(id string) (int, bool) {
	match := trailingSeq.FindStringSubmatch(id)
	if match == nil {
		return 0, false
	}
	seq, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return seq, true
}

type Generator struct{}

func New() *Generator {
	return &Generator{}
}

// Next allocates the next id in the partition using an atomic counter row.
// It must run inside the same transaction as the insert consuming the id so
// that a rolled-back insert does not leave a gap in the issued sequence.
func (g *Generator) Next(ctx context.Context, tx pgx.Tx, typeCode string, year int, scope string) (string, error) {
	prefix := Prefix(typeCode, year, scope)
	var seq int
	err := tx.QueryRow(ctx, `
    INSERT INTO request_sequences (prefix, last_seq)
    VALUES ($1, 1)
    ON CONFLICT (prefix) DO UPDATE SET last_seq = request_sequences.last_seq + 1
    RETURNING last_seq
  `, prefix).Scan(&seq)
	if err != nil {
		return "", err
	}
	if seq > MaxSeq {
		return "", fmt.Errorf("%w: %s", ErrSequenceExhausted, prefix)
	}
	return Format(typeCode, year, scope, seq), nil
}

// Resync re-derives the counter from ids already present in idTable. It is
// the defensive fallback for counters that fell behind pre-existing data and
// runs only after an insert hit a uniqueness conflict.
func (g *Generator) Resync(ctx context.Context, tx pgx.Tx, typeCode string, year int, scope, idTable string) error {
	prefix := Prefix(typeCode, year, scope)
	rows, err := tx.Query(ctx, fmt.Sprintf("SELECT id FROM %s WHERE id LIKE $1", idTable), prefix+"%")
	if err != nil {
		return err
	}
	defer rows.Close()

	maxSeen := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return err
		}
		if seq, ok := ParseSeq(id); ok && seq > maxSeen {
			maxSeen = seq
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
    INSERT INTO request_sequences (prefix, last_seq)
    VALUES ($1, $2)
    ON CONFLICT (prefix) DO UPDATE SET last_seq = GREATEST(request_sequences.last_seq, EXCLUDED.last_seq)
  `, prefix, maxSeen)
	return err
}

// IsUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Backoff returns the sleep before retry attempt n (1-based); it grows
// linearly with the attempt number.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(attempt) * 20 * time.Millisecond
}
