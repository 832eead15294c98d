package cqldriver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// SNIMetadata is the decoded body of the optional SNI proxy metadata
// endpoint: the proxy address a cloud-hosted cluster expects clients to
// dial plus the contact points it fronts, grounded on the teacher's own
// encoding/json use for its RPC envelope (client/rpc.go's RPCResponse).
type SNIMetadata struct {
	ContactInfo struct {
		SNIProxyAddress string   `json:"sni_proxy_address"`
		LocalDC         string   `json:"local_dc"`
		ContactPoints   []string `json:"contact_points"`
	} `json:"contact_info"`
}

// FetchSNIProxyMetadata retrieves and decodes the SNI metadata document
// published at url, the only piece of persisted/external state this
// driver reads (spec §6 "Persisted state: None on disk").
func FetchSNIProxyMetadata(ctx context.Context, url string) (*SNIMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("cqldriver: build SNI metadata request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cqldriver: fetch SNI metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cqldriver: SNI metadata endpoint returned %s", resp.Status)
	}

	var meta SNIMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("cqldriver: decode SNI metadata: %w", err)
	}
	return &meta, nil
}
