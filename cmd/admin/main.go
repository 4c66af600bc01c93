package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	persistlog "beltline.dev/internal/persistence/log"
	"beltline.dev/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "rollback":
			rollbackCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "snapshot":
			snapshotCmd(os.Args[2:])
			return
		case "ops":
			opsCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "blueprints"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

// rollbackCmd rewinds the selected entities of a snapshot to their state
// before a given op log index and writes the result as a new snapshot.
func rollbackCmd(args []string) {
	flags := flag.NewFlagSet("rollback", flag.ExitOnError)
	dataDir := flags.String("data", "./data", "runtime data directory")
	blueprintID := flags.String("blueprint", "", "blueprint id")
	snapPath := flags.String("snapshot", "", "snapshot path to rollback from (optional; defaults to latest)")
	entities := flags.String("entities", "", "comma separated entity numbers (optional; empty selects all)")
	sinceIndex := flags.Uint64("since_index", 0, "rollback op log entries from this index (inclusive, required)")
	outPath := flags.String("out", "", "output snapshot path (optional)")
	_ = flags.Parse(args)

	if strings.TrimSpace(*blueprintID) == "" {
		fmt.Fprintln(os.Stderr, "missing -blueprint")
		os.Exit(2)
	}
	if *sinceIndex == 0 {
		fmt.Fprintln(os.Stderr, "missing -since_index")
		os.Exit(2)
	}
	filter, err := parseEntities(*entities)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -entities:", err)
		os.Exit(2)
	}

	bpDir := filepath.Join(*dataDir, "blueprints", *blueprintID)
	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" {
		snapshotToLoad = snapshot.Latest(filepath.Join(bpDir, "snapshots"))
	}
	if snapshotToLoad == "" {
		fmt.Fprintln(os.Stderr, "no snapshot found; provide -snapshot or run server until it writes one")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(snapshotToLoad)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	ops, err := persistlog.ReadOps(persistlog.OpsDir(bpDir))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "read ops:", err)
		os.Exit(1)
	}
	recs := selectOps(ops, *sinceIndex, snap.Header.LogIndex, filter)
	if len(recs) == 0 {
		fmt.Println("no matching op log entries; nothing to rollback")
		return
	}

	applied, skipped := applyRollback(&snap, recs, filter)

	if strings.TrimSpace(*outPath) == "" {
		*outPath = filepath.Join(bpDir, "snapshots", fmt.Sprintf("%d.rollback.snap.zst", snap.Header.Seq))
	}
	if err := snapshot.WriteSnapshot(*outPath, snap); err != nil {
		fmt.Fprintln(os.Stderr, "write snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("rollback ok: snapshot=%s seq=%d since=%d to=%d entries=%d applied=%d skipped=%d out=%s\n",
		filepath.Base(snapshotToLoad), snap.Header.Seq, *sinceIndex, snap.Header.LogIndex, len(recs), applied, skipped, *outPath)
}

// selectOps keeps records in [since, to] that touch the filter, newest
// first. An empty filter keeps every record.
func selectOps(ops []persistlog.OpRecord, since, to uint64, filter map[int]bool) []persistlog.OpRecord {
	out := make([]persistlog.OpRecord, 0, len(ops))
	for _, r := range ops {
		if r.Index < since || r.Index > to {
			continue
		}
		if len(filter) > 0 && !touches(r, filter) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index > out[j].Index })
	return out
}

func touches(r persistlog.OpRecord, filter map[int]bool) bool {
	for _, ch := range r.Changes {
		if filter[ch.EntityNumber] {
			return true
		}
	}
	return false
}

// applyRollback restores the Before side of every selected change, newest
// record first. A change whose After no longer matches the snapshot was
// overwritten later by an unselected record and is skipped.
func applyRollback(snap *snapshot.SnapshotV1, recs []persistlog.OpRecord, filter map[int]bool) (applied, skipped int) {
	if snap == nil || len(recs) == 0 {
		return 0, 0
	}
	c := snap.Collection()
	for _, r := range recs {
		for _, ch := range r.Changes {
			if len(filter) > 0 && !filter[ch.EntityNumber] {
				continue
			}
			cur, ok := c.Get(ch.EntityNumber)
			if ok != (ch.After != nil) || (ok && cur.Name != ch.After.Name) {
				skipped++
				continue
			}
			if ch.Before == nil {
				c = c.Delete(ch.EntityNumber)
			} else {
				c = c.Set(*ch.Before)
			}
			applied++
		}
	}
	snap.Entities = c.Slice()
	for _, e := range snap.Entities {
		if e.EntityNumber >= snap.NextEntityNumber {
			snap.NextEntityNumber = e.EntityNumber + 1
		}
	}
	return applied, skipped
}

func parseEntities(s string) (map[int]bool, error) {
	out := map[int]bool{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			return nil, fmt.Errorf("entity number must be positive: %d", n)
		}
		out[n] = true
	}
	return out, nil
}
