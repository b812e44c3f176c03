package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/churn/pkg/core"
)

// insertChunk bounds the rows of one multi-row INSERT, keeping the bound
// parameters under every engine's limit.
const insertChunk = 500

const columns = `id, first_name, last_name, date, is_read, text, color`

// querier is the part of *sql.DB and *sql.Tx the queries need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds the statements of one dialect, rebound once.
type queries struct {
	dialect  Dialect
	count    string
	byOffset string
	first    string
	get      string
	page     string
	update   string
	delete   string
}

func newQueries(d Dialect) *queries {
	return &queries{
		dialect:  d,
		count:    d.rebind(`SELECT COUNT(*) FROM records`),
		byOffset: d.rebind(`SELECT ` + columns + ` FROM records ORDER BY id LIMIT 1 OFFSET ?`),
		first:    d.rebind(`SELECT ` + columns + ` FROM records ORDER BY id LIMIT 1`),
		get:      d.rebind(`SELECT ` + columns + ` FROM records WHERE id = ?`),
		page:     d.rebind(`SELECT ` + columns + ` FROM records ORDER BY id LIMIT ? OFFSET ?`),
		update: d.rebind(`UPDATE records
			SET first_name = ?, last_name = ?, date = ?, is_read = ?, text = ?, color = ?
			WHERE id = ?`),
		delete: d.rebind(`DELETE FROM records WHERE id = ?`),
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (core.Record, error) {
	var (
		r     core.Record
		date  int64
		color sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.FirstName, &r.LastName, &date, &r.IsRead, &r.Text, &color); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Record{}, core.ErrNotFound
		}
		return core.Record{}, err
	}
	r.Date = time.UnixMilli(date)
	if color.Valid {
		tag := int(color.Int64)
		r.Color = &tag
	}
	return r, nil
}

func colorArg(tag *int) any {
	if tag == nil {
		return nil
	}
	return int64(*tag)
}

func (q *queries) Count(ctx context.Context, db querier) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, q.count).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (q *queries) GetByOffset(ctx context.Context, db querier, i int) (core.Record, error) {
	if i < 0 {
		return core.Record{}, core.ErrNotFound
	}
	return scanRecord(db.QueryRowContext(ctx, q.byOffset, i))
}

func (q *queries) GetFirst(ctx context.Context, db querier) (core.Record, error) {
	return scanRecord(db.QueryRowContext(ctx, q.first))
}

func (q *queries) Get(ctx context.Context, db querier, id core.ID) (core.Record, error) {
	return scanRecord(db.QueryRowContext(ctx, q.get, int64(id)))
}

func (q *queries) Page(ctx context.Context, db querier, offset, limit int) ([]core.Record, error) {
	if offset < 0 || limit <= 0 {
		return []core.Record{}, nil
	}

	rows, err := db.QueryContext(ctx, q.page, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("select page: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]core.Record, 0, limit)
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (q *queries) InsertMany(ctx context.Context, db querier, records []core.Record) error {
	for start := 0; start < len(records); start += insertChunk {
		chunk := records[start:min(start+insertChunk, len(records))]

		var b strings.Builder
		b.WriteString(`INSERT INTO records (first_name, last_name, date, is_read, text, color) VALUES `)
		args := make([]any, 0, len(chunk)*6)
		for i, r := range chunk {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(`(?, ?, ?, ?, ?, ?)`)
			args = append(args, r.FirstName, r.LastName, r.Date.UnixMilli(), r.IsRead, r.Text, colorArg(r.Color))
		}

		if _, err := db.ExecContext(ctx, q.dialect.rebind(b.String()), args...); err != nil {
			return fmt.Errorf("insert records: %w", err)
		}
	}
	return nil
}

func (q *queries) Update(ctx context.Context, db querier, r core.Record) error {
	res, err := db.ExecContext(ctx, q.update,
		r.FirstName, r.LastName, r.Date.UnixMilli(), r.IsRead, r.Text, colorArg(r.Color), int64(r.ID))
	if err != nil {
		return fmt.Errorf("update record %d: %w", r.ID, err)
	}
	return affected(res)
}

func (q *queries) Delete(ctx context.Context, db querier, id core.ID) error {
	res, err := db.ExecContext(ctx, q.delete, int64(id))
	if err != nil {
		return fmt.Errorf("delete record %d: %w", id, err)
	}
	return affected(res)
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
