package main

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"beltline.dev/internal/editor/blueprint"
	"beltline.dev/internal/editor/catalogs"
	"beltline.dev/internal/editor/model"
	persistlog "beltline.dev/internal/persistence/log"
	"beltline.dev/internal/persistence/snapshot"
)

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst (optional; empty starts from an empty blueprint)")
		bpDir     = flag.String("blueprint_dir", "", "blueprint data dir containing ops/ (optional)")
		configDir = flag.String("configs", "", "config directory; when set the result is loaded against the catalogs")
		strict    = flag.Bool("strict", false, "fail when a change's before state does not match the replayed state")
		outPath   = flag.String("out", "", "write the replayed state as a new snapshot")
	)
	flag.Parse()

	if *snapPath == "" && *bpDir == "" {
		fmt.Fprintln(os.Stderr, "need -snapshot and/or -blueprint_dir")
		os.Exit(2)
	}

	var snap snapshot.SnapshotV1
	if *snapPath != "" {
		var err error
		snap, err = snapshot.ReadSnapshot(*snapPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("snapshot v%d blueprint=%s seq=%d log_index=%d size=%dx%d entities=%d next_entity=%d\n",
			snap.Header.Version, snap.Header.BlueprintID, snap.Header.Seq, snap.Header.LogIndex,
			snap.Width, snap.Height, len(snap.Entities), snap.NextEntityNumber)
	}

	var ops []persistlog.OpRecord
	if *bpDir != "" {
		var err error
		ops, err = persistlog.ReadOps(persistlog.OpsDir(*bpDir))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintln(os.Stderr, "read ops:", err)
			os.Exit(1)
		}
		for _, r := range ops {
			if snap.Header.BlueprintID != "" && r.BlueprintID != snap.Header.BlueprintID {
				fmt.Fprintf(os.Stderr, "op %d belongs to blueprint %s, snapshot is %s\n", r.Index, r.BlueprintID, snap.Header.BlueprintID)
				os.Exit(1)
			}
		}
	}

	res, err := persistlog.Replay(snap.Collection(), snap.Header.LogIndex, snap.Header.Seq, ops, *strict)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: applied=%d skipped=%d last_index=%d last_seq=%d entities=%d\n",
		res.Applied, len(ops)-res.Applied, res.LastIndex, res.LastSeq, res.Entities.Len())

	next := nextEntityNumber(snap.NextEntityNumber, res.Entities.Slice())

	if *configDir != "" {
		cats, err := catalogs.Load(*configDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load catalogs:", err)
			os.Exit(1)
		}
		if d := snap.Catalogs.Entities; d != "" && d != cats.Entities.Digest {
			fmt.Printf("warning: entity catalog digest differs: snap=%s current=%s\n", d, cats.Entities.Digest)
		}
		w, h := snap.Width, snap.Height
		if w <= 0 || h <= 0 {
			w, h = 400, 400
		}
		bp := blueprint.New(cats, w, h, 0)
		if err := bp.Load(res.Entities.Slice(), next); err != nil {
			fmt.Fprintln(os.Stderr, "load replayed state:", err)
			os.Exit(1)
		}
		fmt.Printf("catalog check ok: entities=%d\n", bp.Current().Entities.Len())
	}

	if *outPath != "" {
		out := snap
		out.Header.Version = snapshot.Version
		out.Header.Seq = res.LastSeq
		out.Header.LogIndex = res.LastIndex
		out.NextEntityNumber = next
		out.Entities = res.Entities.Slice()
		if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
			fmt.Fprintln(os.Stderr, "mkdir:", err)
			os.Exit(1)
		}
		if err := snapshot.WriteSnapshot(*outPath, out); err != nil {
			fmt.Fprintln(os.Stderr, "write snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", *outPath)
	}
}

func nextEntityNumber(hint int, ents []model.Entity) int {
	next := hint
	for _, e := range ents {
		if e.EntityNumber >= next {
			next = e.EntityNumber + 1
		}
	}
	if next < 1 {
		next = 1
	}
	return next
}
