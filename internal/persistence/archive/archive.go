package archive

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"beltline.dev/internal/persistence/snapshot"
)

type MilestoneMeta struct {
	Milestone   uint64 `json:"milestone"`
	BlueprintID string `json:"blueprint_id"`
	Seq         uint64 `json:"seq"`
	LogIndex    uint64 `json:"log_index"`
	Entities    int    `json:"entities"`
	Snapshot    string `json:"snapshot"`
	CreatedAt   string `json:"created_at"`
}

// ArchiveMilestone copies the first snapshot past every multiple of every
// seq into `blueprintDir/archives/milestone_<NNNNNN>/`. It returns
// archived=false when the milestone of snap is already archived.
func ArchiveMilestone(blueprintDir, snapshotPath string, snap snapshot.SnapshotV1, every uint64) (milestone uint64, archivedPath string, archived bool, err error) {
	if every == 0 {
		return 0, "", false, nil
	}
	milestone = snap.Header.Seq / every
	if milestone == 0 {
		return 0, "", false, nil
	}

	archiveDir := filepath.Join(blueprintDir, "archives", fmt.Sprintf("milestone_%06d", milestone))
	if _, err := os.Stat(archiveDir); err == nil {
		return milestone, "", false, nil
	}
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return 0, "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return 0, "", false, err
	}

	meta := MilestoneMeta{
		Milestone:   milestone,
		BlueprintID: snap.Header.BlueprintID,
		Seq:         snap.Header.Seq,
		LogIndex:    snap.Header.LogIndex,
		Entities:    len(snap.Entities),
		Snapshot:    filepath.Base(dst),
		CreatedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}
	return milestone, dst, true, nil
}

// Prune deletes all but the keep newest `<seq>.snap.zst` files in dir and
// returns the removed paths. Other files are left alone.
func Prune(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	ents, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	type snapFile struct {
		seq  uint64
		path string
	}
	var files []snapFile
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".snap.zst") {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimSuffix(e.Name(), ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		files = append(files, snapFile{seq: seq, path: filepath.Join(dir, e.Name())})
	}
	if len(files) <= keep {
		return nil, nil
	}
	sort.Slice(files, func(i, j int) bool { return files[i].seq > files[j].seq })
	var removed []string
	for _, f := range files[keep:] {
		if err := os.Remove(f.path); err != nil {
			return removed, err
		}
		removed = append(removed, f.path)
	}
	return removed, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
