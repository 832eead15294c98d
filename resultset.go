package cqldriver

import (
	"context"
	"fmt"

	"github.com/lirium-labs/cqldriver/internal/protocol"
)

// Row is one decoded result row, indexed by column name; the moral
// equivalent of the teacher's client/rows.go Rows{columns, rows} pair,
// except each Row carries its own column lookup since a ResultSet's rows
// all share one ColumnSpec slice rather than one per row.
type Row struct {
	columns []protocol.ColumnSpec
	values  [][]byte
}

// Column returns the raw, still-encoded bytes for a named column, or
// (nil, false) if the name isn't present. Decoding the bytes into a Go
// value is an external value-codec concern (spec §1 "Out of scope").
func (r Row) Column(name string) ([]byte, bool) {
	for i, c := range r.columns {
		if c.Name == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// At returns the raw bytes of the i'th column in result order.
func (r Row) At(i int) []byte { return r.values[i] }

// Len reports the number of columns in this row.
func (r Row) Len() int { return len(r.values) }

// ResultSet is the decoded outcome of Execute/Batch: the column metadata,
// every row fetched in this page, and an opaque paging cursor for the
// next page, if any.
type ResultSet struct {
	Columns      []protocol.ColumnSpec
	rows         [][][]byte
	PagingState  []byte
	HasMorePages bool
	QueriedHost  string
}

// Rows returns every row decoded in this page.
func (rs *ResultSet) Rows() []Row {
	out := make([]Row, len(rs.rows))
	for i, v := range rs.rows {
		out[i] = Row{columns: rs.Columns, values: v}
	}
	return out
}

func resultSetFromFrame(frame *protocol.Frame, queriedHost string) (*ResultSet, error) {
	kind, err := protocol.DecodeResultKind(frame.Body)
	if err != nil {
		return nil, fmt.Errorf("cqldriver: decode RESULT kind: %w", err)
	}
	switch kind {
	case protocol.ResultRows:
		decoded, err := protocol.DecodeRows(frame.Body)
		if err != nil {
			return nil, fmt.Errorf("cqldriver: decode RESULT rows: %w", err)
		}
		return &ResultSet{
			Columns:      decoded.Columns,
			rows:         decoded.Rows,
			PagingState:  decoded.PagingState,
			HasMorePages: decoded.HasMorePages,
			QueriedHost:  queriedHost,
		}, nil
	case protocol.ResultSetKeyspace, protocol.ResultSchemaChange, protocol.ResultVoid:
		return &ResultSet{QueriedHost: queriedHost}, nil
	case protocol.ResultPrepared:
		return nil, fmt.Errorf("cqldriver: unexpected RESULT/Prepared for a non-PREPARE request")
	default:
		return nil, fmt.Errorf("cqldriver: unknown RESULT kind %#x", kind)
	}
}

// PreparedStatement is a server-side handle returned by Session.Prepare;
// it carries the original text so re-preparation on a fresh connection
// (or on a rejoined host) can reissue PREPARE transparently.
type PreparedStatement struct {
	Query    string
	Keyspace string
	Metadata []protocol.ColumnSpec

	// id is the query id Prepare obtained on whichever host served the
	// PREPARE; it seeds the first EXECUTE attempt for this statement, and
	// the handler transparently re-PREPAREs on any host where it doesn't
	// resolve (spec §4.2's per-connection binding semantics).
	id []byte
}

// RowIterator streams a query's result pages one row at a time, issuing a
// follow-up EXECUTE/QUERY with the previous page's PagingState each time
// the current page is exhausted, until HasMorePages is false.
type RowIterator struct {
	session *Session
	query   string
	prepID  []byte
	opts    ExecutionOptions

	ctx context.Context

	current *ResultSet
	pos     int
	done    bool
	err     error
}

// Next advances to the next row, fetching a new page transparently when
// the current one is exhausted. It reports false at end of stream or on
// error; check Err() to distinguish the two.
func (it *RowIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	for it.current == nil || it.pos >= len(it.current.rows) {
		if it.current != nil && !it.current.HasMorePages {
			it.done = true
			return false
		}
		opts := it.opts
		if it.current != nil {
			opts.PageState = it.current.PagingState
		}
		rs, err := it.session.execute(it.ctx, it.query, it.prepID, opts)
		if err != nil {
			it.err = err
			return false
		}
		it.current = rs
		it.pos = 0
	}
	it.pos++
	return true
}

// Row returns the row Next most recently advanced to.
func (it *RowIterator) Row() Row {
	return Row{columns: it.current.Columns, values: it.current.rows[it.pos-1]}
}

// Err returns the first error encountered while streaming, if any.
func (it *RowIterator) Err() error { return it.err }
