package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/google/uuid"

	"beltline.dev/internal/editor/blueprint"
	"beltline.dev/internal/editor/catalogs"
	"beltline.dev/internal/editor/mirror"
	"beltline.dev/internal/editor/model"
	"beltline.dev/internal/editor/placement"
	"beltline.dev/internal/editor/store"
	"beltline.dev/internal/editor/tuning"
	persistlog "beltline.dev/internal/persistence/log"
	"beltline.dev/internal/persistence/snapshot"
	"beltline.dev/internal/protocol"
)

type Config struct {
	BlueprintID string
	Catalogs    *catalogs.Catalogs
	Tuning      tuning.Tuning
	// TuningDigest is reported to clients in WELCOME.
	TuningDigest string

	Renderer  mirror.Renderer
	Metrics   placement.Metrics
	Observers []store.Observer
	Logger    *log.Logger
}

// Envelope carries one gesture from a connected client.
type Envelope struct {
	ClientID string
	Gesture  protocol.GestureMsg
}

type JoinRequest struct {
	Name string
	Out  chan []byte
	Resp chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	// Frame is the full FRAME the client starts from.
	Frame []byte
}

type snapshotReq struct {
	Resp chan snapshotResp
}

type snapshotResp struct {
	Seq uint64
	Err error
}

type client struct {
	id     string
	name   string
	out    chan []byte
	resync bool
}

// Session owns one blueprint and every editor component attached to it.
// All of them are touched only from the Run goroutine.
type Session struct {
	id  string
	cfg Config
	log *log.Logger

	bp      *blueprint.Blueprint
	reg     *mirror.Registry
	ctl     *placement.Controller
	overlay *remoteOverlay
	editor  *remoteEditor
	wires   *remoteWires

	clients    map[string]*client
	nextClient int
	sent       map[int]protocol.MirrorState
	lastMode   placement.Mode
	lastHover  int
	lastMoving int

	inbox   chan Envelope
	join    chan JoinRequest
	leave   chan string
	snapReq chan snapshotReq
	stop    chan struct{}

	snapSink     chan<- snapshot.SnapshotV1
	opsSinceSnap int

	seq        atomic.Uint64
	entities   atomic.Int64
	clientsN   atomic.Int64
	gestures   atomic.Uint64
	snapDrops  atomic.Uint64
	sinkErrors atomic.Uint64
}

func New(cfg Config) (*Session, error) {
	if cfg.Catalogs == nil {
		return nil, errors.New("session: catalogs required")
	}
	if cfg.BlueprintID == "" {
		return nil, errors.New("session: blueprint id required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[session] ", log.LstdFlags)
	}
	if cfg.Renderer == nil {
		cfg.Renderer = catalogRenderer{cat: cfg.Catalogs}
	}
	tune := cfg.Tuning

	s := &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		log:     logger,
		overlay: newRemoteOverlay(),
		editor:  &remoteEditor{},
		wires:   &remoteWires{},
		clients: map[string]*client{},
		sent:    map[int]protocol.MirrorState{},
		inbox:   make(chan Envelope, tune.Session.InboxQueue),
		join:    make(chan JoinRequest, 16),
		leave:   make(chan string, 16),
		snapReq: make(chan snapshotReq, 4),
		stop:    make(chan struct{}),
	}
	s.bp = blueprint.New(cfg.Catalogs, tune.Area.Width, tune.Area.Height, tune.HistoryLimit)
	st := s.bp.Store()
	s.reg = mirror.NewRegistry(s.bp, cfg.Catalogs, cfg.Renderer, float64(tune.TileSize))
	st.Subscribe(s.reg)
	for _, o := range cfg.Observers {
		st.Subscribe(o)
	}
	st.Subscribe(store.ObserverFunc(func(ev store.Event) {
		s.seq.Store(ev.After.Seq)
		s.entities.Store(int64(ev.After.Entities.Len()))
	}))
	st.AddSink(opCounter{s: s})
	st.OnSinkError = func(err error) {
		s.sinkErrors.Add(1)
		s.log.Printf("history sink: %v", err)
	}
	s.ctl = placement.New(s.bp, s.reg, placement.Options{
		Overlay:    s.overlay,
		Wires:      s.wires,
		Editor:     s.editor,
		Metrics:    cfg.Metrics,
		TileSize:   float64(tune.TileSize),
		RailOffset: model.Position{X: tune.RailMoveOffset[0], Y: tune.RailMoveOffset[1]},
	})
	return s, nil
}

func (s *Session) ID() string                        { return s.id }
func (s *Session) BlueprintID() string               { return s.cfg.BlueprintID }
func (s *Session) Blueprint() *blueprint.Blueprint   { return s.bp }
func (s *Session) Controller() *placement.Controller { return s.ctl }
func (s *Session) Registry() *mirror.Registry        { return s.reg }
func (s *Session) Inbox() chan<- Envelope            { return s.inbox }
func (s *Session) Join() chan<- JoinRequest          { return s.join }
func (s *Session) Leave() chan<- string              { return s.leave }

// SetSnapshotSink receives periodic and requested snapshots. Sends never
// block; a full sink drops the snapshot.
func (s *Session) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { s.snapSink = ch }

// AddSink attaches an operation-log consumer. Call before Run.
func (s *Session) AddSink(h store.HistorySink) { s.bp.Store().AddSink(h) }

// Restore loads a snapshot and replays the op log records written after it.
// Call before Run.
func (s *Session) Restore(snap snapshot.SnapshotV1, ops []persistlog.OpRecord) error {
	if snap.Header.BlueprintID != "" && snap.Header.BlueprintID != s.cfg.BlueprintID {
		return fmt.Errorf("snapshot blueprint id mismatch: want=%s snap=%s", s.cfg.BlueprintID, snap.Header.BlueprintID)
	}
	if d := s.cfg.Catalogs.Entities.Digest; snap.Catalogs.Entities != "" && snap.Catalogs.Entities != d {
		s.log.Printf("snapshot entity catalog digest differs: snap=%s current=%s", snap.Catalogs.Entities, d)
	}
	res, err := persistlog.Replay(snap.Collection(), snap.Header.LogIndex, snap.Header.Seq, ops, false)
	if err != nil {
		return err
	}
	if err := s.bp.Load(res.Entities.Slice(), snap.NextEntityNumber); err != nil {
		return err
	}
	s.bp.Store().Rebase(res.LastSeq, res.LastIndex)
	s.seq.Store(res.LastSeq)
	if res.Applied > 0 {
		s.log.Printf("replayed %d ops after snapshot seq=%d", res.Applied, snap.Header.Seq)
	}
	return nil
}

// Run drains the session channels until ctx is done or Stop is called.
// Gestures are applied as they arrive.
func (s *Session) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case req := <-s.join:
			s.handleJoin(req)
		case id := <-s.leave:
			s.handleLeave(id)
		case req := <-s.snapReq:
			seq, err := s.exportSnapshot()
			req.Resp <- snapshotResp{Seq: seq, Err: err}
		case env := <-s.inbox:
			s.handleGesture(env)
			if every := s.cfg.Tuning.Session.SnapshotEveryOps; every > 0 && s.opsSinceSnap >= every {
				if _, err := s.exportSnapshot(); err != nil {
					s.log.Printf("snapshot: %v", err)
				}
			}
		}
	}
}

func (s *Session) Stop() { close(s.stop) }

// RequestSnapshot asks the loop to export a snapshot now.
func (s *Session) RequestSnapshot(ctx context.Context) (uint64, error) {
	resp := make(chan snapshotResp, 1)
	select {
	case s.snapReq <- snapshotReq{Resp: resp}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case r := <-resp:
		return r.Seq, r.Err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (s *Session) handleJoin(req JoinRequest) {
	// Existing clients catch up first so the full frame below is the
	// baseline every later delta builds on.
	s.flush()

	s.nextClient++
	c := &client{id: fmt.Sprintf("C%d", s.nextClient), name: req.Name, out: req.Out}
	if c.name == "" {
		c.name = "editor"
	}
	s.clients[c.id] = c
	s.clientsN.Store(int64(len(s.clients)))

	cats := s.cfg.Catalogs
	tune := s.cfg.Tuning
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       s.id,
		ClientID:        c.id,
		BlueprintID:     s.cfg.BlueprintID,
		Seq:             s.bp.Current().Seq,
		Editor: protocol.EditorParams{
			TileSize:       tune.TileSize,
			Width:          tune.Area.Width,
			Height:         tune.Area.Height,
			RailMoveOffset: tune.RailMoveOffset,
		},
		Catalogs: protocol.CatalogDigests{
			Entities:     cats.Entities.Digest,
			Recipes:      cats.Recipes.Digest,
			Items:        cats.Items.Digest,
			UpdateGroups: cats.UpdateGroups.Digest,
			Tuning:       s.cfg.TuningDigest,
		},
	}
	frame, err := json.Marshal(s.fullFrame())
	if err != nil {
		s.log.Printf("encode frame: %v", err)
	}
	if req.Resp != nil {
		req.Resp <- JoinResponse{Welcome: welcome, Frame: frame}
	}
}

func (s *Session) handleLeave(id string) {
	if _, ok := s.clients[id]; !ok {
		return
	}
	delete(s.clients, id)
	s.clientsN.Store(int64(len(s.clients)))
}

// exportSnapshot hands the current state to the snapshot sink.
func (s *Session) exportSnapshot() (uint64, error) {
	snap := s.Snapshot()
	s.opsSinceSnap = 0
	if s.snapSink == nil {
		return snap.Header.Seq, nil
	}
	select {
	case s.snapSink <- snap:
		return snap.Header.Seq, nil
	default:
		s.snapDrops.Add(1)
		return snap.Header.Seq, errors.New("snapshot sink full")
	}
}

// Snapshot captures the blueprint and seals the op log at that point.
func (s *Session) Snapshot() snapshot.SnapshotV1 {
	st := s.bp.Store()
	seq, idx := st.Checkpoint()
	cats := s.cfg.Catalogs
	return snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:     snapshot.Version,
			BlueprintID: s.cfg.BlueprintID,
			Seq:         seq,
			LogIndex:    idx,
		},
		Width:            s.cfg.Tuning.Area.Width,
		Height:           s.cfg.Tuning.Area.Height,
		HistoryLimit:     s.cfg.Tuning.HistoryLimit,
		NextEntityNumber: st.PeekEntityNumber(),
		Catalogs: snapshot.CatalogDigests{
			Entities:     cats.Entities.Digest,
			Recipes:      cats.Recipes.Digest,
			Items:        cats.Items.Digest,
			UpdateGroups: cats.UpdateGroups.Digest,
		},
		Entities: st.Current().Entities.Slice(),
	}
}

type Stats struct {
	Seq            uint64 `json:"seq"`
	Entities       int64  `json:"entities"`
	Clients        int64  `json:"clients"`
	Gestures       uint64 `json:"gestures"`
	InboxDepth     int    `json:"inbox_depth"`
	InboxCapacity  int    `json:"inbox_capacity"`
	SnapshotDrops  uint64 `json:"snapshot_drops"`
	SinkErrorTotal uint64 `json:"sink_error_total"`
}

// Stats is safe to call from any goroutine.
func (s *Session) Stats() Stats {
	return Stats{
		Seq:            s.seq.Load(),
		Entities:       s.entities.Load(),
		Clients:        s.clientsN.Load(),
		Gestures:       s.gestures.Load(),
		InboxDepth:     len(s.inbox),
		InboxCapacity:  cap(s.inbox),
		SnapshotDrops:  s.snapDrops.Load(),
		SinkErrorTotal: s.sinkErrors.Load(),
	}
}

// opCounter counts log entries toward the next periodic snapshot.
type opCounter struct{ s *Session }

func (o opCounter) Record(store.LogEntry) error {
	o.s.opsSinceSnap++
	return nil
}
