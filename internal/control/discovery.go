package control

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lirium-labs/cqldriver/internal/conn"
	"github.com/lirium-labs/cqldriver/internal/host"
	"github.com/lirium-labs/cqldriver/internal/protocol"
	"github.com/lirium-labs/cqldriver/policies/addresstranslator"
)

const (
	queryLocal = "SELECT host_id, data_center, rack, release_version, partitioner, tokens FROM system.local"
	queryPeers = "SELECT peer, host_id, data_center, rack, release_version, rpc_address, tokens FROM system.peers"
)

// discover queries system.local and system.peers on c and builds the
// full host list, translating peer addresses (never the contact point
// itself) through translator.
func discover(ctx context.Context, c *conn.Connection, contactEndpoint string, translator addresstranslator.Translator) ([]*host.Host, error) {
	var hosts []*host.Host

	localRow, err := queryOne(ctx, c, queryLocal)
	if err != nil {
		return nil, fmt.Errorf("control: query system.local: %w", err)
	}
	if localRow != nil {
		h := host.New(hostID(localRow), contactEndpoint)
		h.Datacenter = col(localRow, "data_center")
		h.Rack = col(localRow, "rack")
		h.ReleaseVersion = col(localRow, "release_version")
		h.Partitioner = col(localRow, "partitioner")
		h.IsContactPoint = true
		hosts = append(hosts, h)
	}

	peerRows, err := queryAll(ctx, c, queryPeers)
	if err != nil {
		return nil, fmt.Errorf("control: query system.peers: %w", err)
	}
	for _, row := range peerRows {
		addr := col(row, "rpc_address")
		if addr == "" {
			addr = col(row, "peer")
		}
		translated, port := translator.Translate(addr, 9042)
		endpoint := fmt.Sprintf("%s:%d", translated, port)

		h := host.New(hostID(row), endpoint)
		h.RawEndpoint = fmt.Sprintf("%s:9042", addr)
		h.Datacenter = col(row, "data_center")
		h.Rack = col(row, "rack")
		h.ReleaseVersion = col(row, "release_version")
		hosts = append(hosts, h)
	}

	return hosts, nil
}

// row is a single decoded result row, column name -> raw bytes.
type row map[string][]byte

func col(r row, name string) string {
	if r == nil {
		return ""
	}
	return string(r[name])
}

// hostID decodes the raw 16-byte uuid column "host_id" into its canonical
// string form. A malformed/absent value falls back to the raw bytes so a
// single misbehaving peer row never aborts discovery entirely.
func hostID(r row) string {
	raw := r["host_id"]
	if len(raw) != 16 {
		return string(raw)
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return string(raw)
	}
	return id.String()
}

func queryOne(ctx context.Context, c *conn.Connection, query string) (row, error) {
	rows, err := queryAll(ctx, c, query)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func queryAll(ctx context.Context, c *conn.Connection, query string) ([]row, error) {
	resp, err := c.Send(ctx, protocol.OpQuery, protocol.EncodeQuery(query, protocol.QueryParameters{
		Consistency: protocol.ConsistencyOne,
	}), 0)
	if err != nil {
		return nil, err
	}
	kind, err := protocol.DecodeResultKind(resp.Body)
	if err != nil {
		return nil, err
	}
	if kind != protocol.ResultRows {
		return nil, nil
	}
	decoded, err := protocol.DecodeRows(resp.Body)
	if err != nil {
		return nil, err
	}

	out := make([]row, len(decoded.Rows))
	for i, r := range decoded.Rows {
		rw := make(row, len(decoded.Columns))
		for c, colSpec := range decoded.Columns {
			rw[colSpec.Name] = r[c]
		}
		out[i] = rw
	}
	return out, nil
}
