package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TileSize       int        `yaml:"tile_size"`
	Area           Area       `yaml:"area"`
	HistoryLimit   int        `yaml:"history_limit"`
	RailMoveOffset [2]float64 `yaml:"rail_move_offset"`

	Session Session `yaml:"session"`
}

type Area struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

type Session struct {
	InboxQueue       int `yaml:"inbox_queue"`
	OutQueue         int `yaml:"out_queue"`
	SnapshotEveryOps int `yaml:"snapshot_every_ops"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		TileSize:        32,
		Area:            Area{Width: 400, Height: 400},
		HistoryLimit:    10000,
		Session: Session{
			InboxQueue:       256,
			OutQueue:         64,
			SnapshotEveryOps: 500,
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.normalize()
	return t, nil
}

func (t *Tuning) normalize() {
	d := Defaults()
	if t.TileSize <= 0 {
		t.TileSize = d.TileSize
	}
	if t.Area.Width <= 0 {
		t.Area.Width = d.Area.Width
	}
	if t.Area.Height <= 0 {
		t.Area.Height = d.Area.Height
	}
	if t.HistoryLimit < 0 {
		t.HistoryLimit = 0
	}
	if t.Session.InboxQueue <= 0 {
		t.Session.InboxQueue = d.Session.InboxQueue
	}
	if t.Session.OutQueue <= 0 {
		t.Session.OutQueue = d.Session.OutQueue
	}
	if t.Session.OutQueue > 1024 {
		t.Session.OutQueue = 1024
	}
}

// Digest is the sha256 of the normalized tuning, hex encoded.
func (t Tuning) Digest() string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
