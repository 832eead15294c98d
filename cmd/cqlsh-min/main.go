// Command cqlsh-min is a minimal interactive client over cqldriver: it
// connects to a cluster, runs one query passed on the command line (or
// reads one line at a time from stdin when none is given), and prints
// the result with cells separated by " | " (columns are not padded to a
// common width).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lirium-labs/cqldriver"
)

func main() {
	var (
		contactPoints = flag.String("hosts", "127.0.0.1", "comma-separated contact points")
		port          = flag.Int("port", 9042, "native protocol port")
		keyspace      = flag.String("keyspace", "", "keyspace to USE on connect")
		username      = flag.String("username", "", "plaintext auth username")
		password      = flag.String("password", "", "plaintext auth password")
		datacenter    = flag.String("datacenter", "", "local datacenter, for DC-aware load balancing")
		consistency   = flag.String("consistency", "quorum", "consistency level for every query")
		debug         = flag.Bool("debug", false, "forward driver log entries to stderr")
	)
	flag.Parse()

	cfg := cqldriver.DefaultClusterConfig(strings.Split(*contactPoints, ",")...)
	cfg.Port = *port
	cfg.Keyspace = *keyspace
	cfg.Username = *username
	cfg.Password = *password
	cfg.LocalDatacenter = *datacenter
	cfg.Debug = *debug

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session, err := cqldriver.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer session.Shutdown()

	if *debug {
		go func() {
			for entry := range session.Logs() {
				fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", entry.Level, entry.Source, entry.Message)
			}
		}()
	}

	opts := cqldriver.ExecutionOptions{Consistency: cqldriver.ParseConsistency(*consistency)}

	if query := strings.Join(flag.Args(), " "); query != "" {
		runQuery(session, query, opts)
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("cqlsh-min> ")
	for scanner.Scan() {
		query := strings.TrimSpace(scanner.Text())
		if query != "" {
			runQuery(session, query, opts)
		}
		fmt.Print("cqlsh-min> ")
	}
}

func runQuery(session *cqldriver.Session, query string, opts cqldriver.ExecutionOptions) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rs, err := session.Execute(ctx, query, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	printResultSet(rs)
}

func printResultSet(rs *cqldriver.ResultSet) {
	if len(rs.Columns) == 0 {
		fmt.Println("OK")
		return
	}

	names := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		names[i] = c.Name
	}
	fmt.Println(strings.Join(names, " | "))

	for _, row := range rs.Rows() {
		cells := make([]string, row.Len())
		for i := 0; i < row.Len(); i++ {
			cells[i] = formatCell(row.At(i))
		}
		fmt.Println(strings.Join(cells, " | "))
	}

	if rs.HasMorePages {
		fmt.Printf("-- more pages available (paging_state = %d bytes) --\n", len(rs.PagingState))
	}
}

func formatCell(raw []byte) string {
	if raw == nil {
		return "null"
	}
	return strconv.Quote(string(raw))
}
