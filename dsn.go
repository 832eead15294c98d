package cqldriver

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ContactPointsConfig is what a DSN resolves to: contact points plus the
// handshake/session-level options a URL-query-parameter DSN can carry,
// grounded on the teacher's parseDSN (client/driver.go) — DSN as URL
// query parameters over a comma-separated host list instead of a single
// AMQP URI.
//
// DSN format:
//
//	host1,host2:9043?keyspace=ks&username=u&password=p&datacenter=dc1&timeout=10s&debug=true&consistency=quorum
type ContactPointsConfig struct {
	ContactPoints []string
	DefaultPort   int
	Keyspace      string
	Username      string
	Password      string
	Datacenter    string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Debug          bool
	Consistency    string // left as string; ParseConsistency (options.go) maps it to protocol.Consistency
}

// ParseDSN parses a "hosts?options" DSN into a ContactPointsConfig.
func ParseDSN(dsn string) (*ContactPointsConfig, error) {
	hostPart := dsn
	queryPart := ""
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		hostPart, queryPart = dsn[:i], dsn[i+1:]
	}
	if hostPart == "" {
		return nil, fmt.Errorf("cqldriver: DSN missing contact points")
	}

	values, err := url.ParseQuery(queryPart)
	if err != nil {
		return nil, fmt.Errorf("cqldriver: invalid DSN options: %w", err)
	}

	cfg := &ContactPointsConfig{
		ContactPoints:  strings.Split(hostPart, ","),
		DefaultPort:    9042,
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    10 * time.Second,
		Consistency:    "quorum",
	}

	if port := values.Get("port"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("cqldriver: invalid port %q: %w", port, err)
		}
		cfg.DefaultPort = p
	}
	cfg.Keyspace = values.Get("keyspace")
	cfg.Username = values.Get("username")
	cfg.Password = values.Get("password")
	cfg.Datacenter = values.Get("datacenter")

	if t := values.Get("timeout"); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return nil, fmt.Errorf("cqldriver: invalid timeout %q: %w", t, err)
		}
		cfg.ConnectTimeout = d
	}
	if t := values.Get("read_timeout"); t != "" {
		d, err := time.ParseDuration(t)
		if err != nil {
			return nil, fmt.Errorf("cqldriver: invalid read_timeout %q: %w", t, err)
		}
		cfg.ReadTimeout = d
	}
	if dbg := strings.ToLower(values.Get("debug")); dbg != "" {
		cfg.Debug = dbg == "true" || dbg == "1"
	}
	if c := values.Get("consistency"); c != "" {
		cfg.Consistency = c
	}

	for i, hp := range cfg.ContactPoints {
		if !strings.Contains(hp, ":") {
			cfg.ContactPoints[i] = fmt.Sprintf("%s:%d", hp, cfg.DefaultPort)
		}
	}

	return cfg, nil
}
