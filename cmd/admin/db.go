package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// dbCmd reads the run index directly, so it works offline and on runs whose
// server is gone. Queries: snapshots (default), ticks, intents, meta.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run_id", "", "run id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	tick := fs.Uint64("tick", 0, "tick filter for intents (defaults to latest indexed)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "snapshots"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*runID) == "" {
			fmt.Fprintln(os.Stderr, "missing -run_id or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "runs", *runID, "index.db")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}

	switch q {
	case "snapshots":
		rows, err := db.Query(`SELECT tick,path,entities,checksum,recorded_at FROM snapshots ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick       uint64 `json:"tick"`
				Path       string `json:"path"`
				Entities   int    `json:"entities"`
				Checksum   string `json:"checksum"`
				RecordedAt string `json:"recorded_at"`
			}
			if err := rows.Scan(&r.Tick, &r.Path, &r.Entities, &r.Checksum, &r.RecordedAt); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "ticks":
		rows, err := db.Query(`SELECT tick,checksum,intents FROM ticks ORDER BY tick DESC LIMIT ?`, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick     uint64 `json:"tick"`
				Checksum string `json:"checksum"`
				Intents  int    `json:"intents"`
			}
			if err := rows.Scan(&r.Tick, &r.Checksum, &r.Intents); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "intents":
		if *tick == 0 {
			lt, err := latestIndexedTick(db)
			if err != nil {
				fmt.Fprintln(os.Stderr, "latest tick:", err)
				os.Exit(1)
			}
			if lt == 0 {
				fmt.Fprintln(os.Stderr, "no ticks indexed")
				os.Exit(2)
			}
			*tick = lt
		}
		rows, err := db.Query(`SELECT tick,seq,verb,target,body_json FROM intents WHERE tick=? ORDER BY seq LIMIT ?`, *tick, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Tick   uint64          `json:"tick"`
				Seq    int             `json:"seq"`
				Verb   string          `json:"verb"`
				Target uint64          `json:"target"`
				Body   json.RawMessage `json:"body"`
			}
			var body string
			if err := rows.Scan(&r.Tick, &r.Seq, &r.Verb, &r.Target, &body); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			r.Body = json.RawMessage(body)
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	case "meta":
		rows, err := db.Query(`SELECT key,value FROM meta ORDER BY key`)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		defer rows.Close()
		for rows.Next() {
			var k, v string
			if err := rows.Scan(&k, &v); err != nil {
				fmt.Fprintln(os.Stderr, "scan:", err)
				os.Exit(1)
			}
			fmt.Printf("%s\t%s\n", k, v)
		}
		if err := rows.Err(); err != nil {
			fmt.Fprintln(os.Stderr, "rows:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown query %q (want snapshots, ticks, intents or meta)\n", q)
		os.Exit(2)
	}
}

func latestIndexedTick(db *sql.DB) (uint64, error) {
	var tick sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(tick) FROM ticks`).Scan(&tick); err != nil {
		return 0, err
	}
	if !tick.Valid {
		return 0, nil
	}
	return uint64(tick.Int64), nil
}

func printJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintln(os.Stderr, "marshal:", err)
		os.Exit(1)
	}
	fmt.Println(string(b))
}
