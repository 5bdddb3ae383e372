package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	duckdb "github.com/duckdb/duckdb-go/v2"

	"github.com/danmuck/busdecode/internal/table"
	"github.com/rs/zerolog/log"
)

// DuckDBStore moves tables through an in-process DuckDB database. Each
// write stages rows in a scratch table through the Appender API and copies
// it to Parquet.
type DuckDBStore struct {
	connector *duckdb.Connector
	db        *sql.DB
	seq       atomic.Uint64
}

func OpenDuckDB() (*DuckDBStore, error) {
	connector, err := duckdb.NewConnector("", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}
	return &DuckDBStore{connector: connector, db: sql.OpenDB(connector)}, nil
}

// Close closes the database; sql.DB closes the connector with it.
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}

func (s *DuckDBStore) Write(ctx context.Context, path string, t *table.Table) error {
	t = table.Sanitize(t)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("store.DuckDBStore.Write mkdir path=%s: %w", path, err)
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("store.DuckDBStore.Write conn: %w", err)
	}
	defer conn.Close()

	scratch := fmt.Sprintf("busdecode_write_%d", s.seq.Add(1))
	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		defs = append(defs, quoteIdent(c.Name)+" "+sqlType(c.Kind))
	}
	create := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", quoteIdent(scratch), strings.Join(defs, ", "))
	if _, err := conn.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("store.DuckDBStore.Write create path=%s: %w", path, err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), "DROP TABLE IF EXISTS "+quoteIdent(scratch)); err != nil {
			log.Warn().Msgf("store.DuckDBStore.Write drop scratch=%s err=%v", scratch, err)
		}
	}()

	if err := conn.Raw(func(driverConn any) error {
		duckConn, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("failed to cast to *duckdb.Conn")
		}
		return appendRows(duckConn, scratch, t)
	}); err != nil {
		return fmt.Errorf("store.DuckDBStore.Write append path=%s: %w", path, err)
	}

	copySQL := fmt.Sprintf(
		"COPY %s TO %s (FORMAT PARQUET, KV_METADATA {%s: %s})",
		quoteIdent(scratch), quoteLiteral(path), SourceKey, quoteLiteral(t.Source),
	)
	if _, err := conn.ExecContext(ctx, copySQL); err != nil {
		return fmt.Errorf("store.DuckDBStore.Write copy path=%s: %w", path, err)
	}
	log.Debug().Msgf("store.DuckDBStore.Write path=%s rows=%d cols=%d", path, t.Len(), len(t.Columns))
	return nil
}

func appendRows(conn *duckdb.Conn, name string, t *table.Table) error {
	appender, err := duckdb.NewAppenderFromConn(conn, "", name)
	if err != nil {
		return fmt.Errorf("failed to create appender: %w", err)
	}
	row := make([]driver.Value, len(t.Columns))
	for i := 0; i < t.Len(); i++ {
		for j, c := range t.Columns {
			row[j] = c.Values[i]
		}
		if err := appender.AppendRow(row...); err != nil {
			appender.Close()
			return err
		}
	}
	return appender.Close()
}

func (s *DuckDBStore) Read(ctx context.Context, path string) (*table.Table, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM read_parquet("+quoteLiteral(path)+")")
	if err != nil {
		return nil, fmt.Errorf("store.DuckDBStore.Read path=%s: %w", path, err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	kinds := make([]table.Kind, len(types))
	values := make([][]any, len(types))
	for i, ct := range types {
		kinds[i] = kindFor(ct.DatabaseTypeName())
	}
	scan := make([]any, len(types))
	ptrs := make([]any, len(types))
	for i := range scan {
		ptrs[i] = &scan[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("store.DuckDBStore.Read scan path=%s: %w", path, err)
		}
		for i, v := range scan {
			values[i] = append(values[i], fromSQL(v, kinds[i]))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	source, err := s.source(ctx, path)
	if err != nil {
		return nil, err
	}
	out := table.New(Stem(path), source)
	for i, ct := range types {
		vals := values[i]
		if vals == nil {
			vals = []any{}
		}
		if err := out.AddColumn(&table.Column{Name: ct.Name(), Kind: kinds[i], Values: vals}); err != nil {
			return nil, fmt.Errorf("store.DuckDBStore.Read path=%s: %w", path, err)
		}
	}
	return table.Normalize(out)
}

// source reads the persisted source tag, falling back to the file stem.
func (s *DuckDBStore) source(ctx context.Context, path string) (string, error) {
	q := fmt.Sprintf(
		"SELECT decode(value) FROM parquet_kv_metadata(%s) WHERE decode(key) = %s",
		quoteLiteral(path), quoteLiteral(SourceKey),
	)
	var source sql.NullString
	err := s.db.QueryRowContext(ctx, q).Scan(&source)
	switch {
	case errors.Is(err, sql.ErrNoRows), err == nil && !source.Valid:
		return Stem(path), nil
	case err != nil:
		return "", fmt.Errorf("store.DuckDBStore.Read metadata path=%s: %w", path, err)
	}
	return source.String, nil
}

func (s *DuckDBStore) Columns(ctx context.Context, path string) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM read_parquet("+quoteLiteral(path)+") LIMIT 0")
	if err != nil {
		return nil, fmt.Errorf("store.DuckDBStore.Columns path=%s: %w", path, err)
	}
	defer rows.Close()
	return rows.Columns()
}

func (s *DuckDBStore) List(_ context.Context, dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+Ext))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

func sqlType(k table.Kind) string {
	switch k {
	case table.KindTime:
		return "TIMESTAMPTZ"
	case table.KindFloat:
		return "DOUBLE"
	default:
		return "VARCHAR"
	}
}

func kindFor(dbType string) table.Kind {
	t := strings.ToUpper(dbType)
	switch {
	case strings.HasPrefix(t, "TIMESTAMP"), t == "DATE":
		return table.KindTime
	case t == "VARCHAR", t == "BLOB", t == "UUID", strings.HasPrefix(t, "ENUM"):
		return table.KindText
	case t == "BOOLEAN":
		return table.KindFloat
	case strings.Contains(t, "INT"), t == "DOUBLE", t == "FLOAT", t == "REAL", strings.HasPrefix(t, "DECIMAL"):
		return table.KindFloat
	default:
		return table.KindMixed
	}
}

func fromSQL(v any, kind table.Kind) any {
	if v == nil {
		return nil
	}
	switch kind {
	case table.KindTime:
		if ts, ok := v.(time.Time); ok {
			return ts.UTC()
		}
		return nil
	case table.KindFloat:
		if f, ok := table.ToFloat(v); ok {
			return f
		}
		return nil
	case table.KindText:
		if b, ok := v.([]byte); ok {
			return string(b)
		}
		return table.FormatValue(v)
	}
	return v
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
