package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"beltline.dev/internal/editor/model"
	"beltline.dev/internal/editor/store"
)

const opPrefix = "ops"

// OpRecord is one line of the operation log.
type OpRecord struct {
	BlueprintID string         `json:"blueprint_id"`
	Index       uint64         `json:"index"`
	Seq         uint64         `json:"seq"`
	Label       string         `json:"label"`
	Tag         string         `json:"tag,omitempty"`
	Affected    []int          `json:"affected"`
	Changes     []store.Change `json:"changes"`
	At          string         `json:"at"`
}

// OpLogger writes committed log entries of one blueprint. It is a
// store.HistorySink.
type OpLogger struct {
	id  string
	w   *JSONLZstdWriter
	now func() time.Time

	// OnRecord sees every record after it is written.
	OnRecord func(OpRecord)
}

func NewOpLogger(blueprintDir, blueprintID string, opts WriterOptions) *OpLogger {
	l := &OpLogger{
		id:  blueprintID,
		w:   NewJSONLZstdWriter(OpsDir(blueprintDir), opPrefix, opts),
		now: opts.Now,
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// OpsDir is where the op log segments of a blueprint live.
func OpsDir(blueprintDir string) string { return filepath.Join(blueprintDir, "ops") }

func (l *OpLogger) Record(e store.LogEntry) error {
	r := OpRecord{
		BlueprintID: l.id,
		Index:       e.Index,
		Seq:         e.Seq,
		Label:       e.Label,
		Tag:         e.Tag,
		Affected:    e.Affected,
		Changes:     e.Changes,
		At:          l.now().UTC().Format(time.RFC3339Nano),
	}
	if err := l.w.Write(r); err != nil {
		return err
	}
	if l.OnRecord != nil {
		l.OnRecord(r)
	}
	return nil
}

func (l *OpLogger) Close() error { return l.w.Close() }

var _ store.HistorySink = (*OpLogger)(nil)

// ListSegments returns the op log segments in dir, oldest first.
func ListSegments(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, opPrefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadOps decodes every segment in dir. A collapsed entry appears once per
// re-send; only the last copy of each Index is kept.
func ReadOps(dir string) ([]OpRecord, error) {
	files, err := ListSegments(dir)
	if err != nil {
		return nil, err
	}
	var out []OpRecord
	pos := map[uint64]int{}
	for _, path := range files {
		err := readSegment(path, func(r OpRecord) {
			if i, ok := pos[r.Index]; ok {
				out[i] = r
				return
			}
			pos[r.Index] = len(out)
			out = append(out, r)
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func readSegment(path string, fn func(OpRecord)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var r OpRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		fn(r)
	}
	return sc.Err()
}

// Apply replays one record onto c. The After side of every change is
// authoritative. With strict set, a Before that does not match c is an
// error; entries committed without history make that possible.
func Apply(c model.Collection, r OpRecord, strict bool) (model.Collection, error) {
	for _, ch := range r.Changes {
		if strict {
			cur, ok := c.Get(ch.EntityNumber)
			switch {
			case ch.Before == nil && ok:
				return c, fmt.Errorf("op %d: entity %d already present", r.Index, ch.EntityNumber)
			case ch.Before != nil && (!ok || !reflect.DeepEqual(cur, *ch.Before)):
				return c, fmt.Errorf("op %d: entity %d diverged from log", r.Index, ch.EntityNumber)
			}
		}
		if ch.After == nil {
			c = c.Delete(ch.EntityNumber)
			continue
		}
		c = c.Set(*ch.After)
	}
	return c, nil
}

// ReplayResult is the state reached by Replay.
type ReplayResult struct {
	Entities  model.Collection
	LastIndex uint64
	LastSeq   uint64
	Applied   int
}

// Replay applies every record with an Index above afterIndex, in order.
// recs must be sorted by Index, as ReadOps returns them.
func Replay(base model.Collection, afterIndex, baseSeq uint64, recs []OpRecord, strict bool) (ReplayResult, error) {
	res := ReplayResult{Entities: base, LastIndex: afterIndex, LastSeq: baseSeq}
	for _, r := range recs {
		if r.Index <= afterIndex {
			continue
		}
		next, err := Apply(res.Entities, r, strict)
		if err != nil {
			return res, err
		}
		res.Entities = next
		res.LastIndex = r.Index
		if r.Seq > res.LastSeq {
			res.LastSeq = r.Seq
		}
		res.Applied++
	}
	return res, nil
}
