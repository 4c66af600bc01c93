package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"beltline.dev/internal/protocol"
)

// The bot is a scripted editor client: it lays belts at random free spots and
// deletes some of what it placed. Useful as load for a running server.
func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name      = flag.String("name", "bot", "client name")
		every     = flag.Duration("every", 500*time.Millisecond, "gesture interval")
		area      = flag.Int("area", 32, "side of the square (in tiles) the bot builds in")
		deletePct = flag.Int("delete_pct", 20, "percent of gestures that delete an owned entity")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		MaxQueue:        8,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	acks := make(chan protocol.AckMsg, 16)
	go func() {
		defer close(acks)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			switch base.Type {
			case protocol.TypeWelcome:
				var w protocol.WelcomeMsg
				if err := json.Unmarshal(msg, &w); err != nil {
					continue
				}
				logger.Printf("WELCOME client_id=%s blueprint=%s seq=%d tile=%d", w.ClientID, w.BlueprintID, w.Seq, w.Editor.TileSize)
			case protocol.TypeAck:
				var a protocol.AckMsg
				if err := json.Unmarshal(msg, &a); err != nil {
					continue
				}
				acks <- a
			}
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	tick := time.NewTicker(*every)
	defer tick.Stop()

	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	var owned []int
	var n int
	for {
		select {
		case <-stop:
			return
		case a, ok := <-acks:
			if !ok {
				return
			}
			if !a.Accepted {
				logger.Printf("ACK %s rejected code=%s msg=%s", a.AckFor, a.Code, a.Message)
				continue
			}
			if a.Entity > 0 && len(a.AckFor) > 0 && a.AckFor[0] == 'P' {
				owned = append(owned, a.Entity)
			}
		case <-tick.C:
			n++
			g := protocol.GestureMsg{
				Type:            protocol.TypeGesture,
				ProtocolVersion: protocol.Version,
			}
			if len(owned) > 0 && r.Intn(100) < *deletePct {
				i := r.Intn(len(owned))
				g.ID = fmt.Sprintf("D%d", n)
				g.Kind = protocol.GestureDelete
				g.Entity = owned[i]
				owned = append(owned[:i], owned[i+1:]...)
			} else {
				g.ID = fmt.Sprintf("P%d", n)
				g.Kind = protocol.GesturePlace
				g.Name = "transport-belt"
				g.X = float64(r.Intn(*area)) + 0.5
				g.Y = float64(r.Intn(*area)) + 0.5
				g.Direction = 2 * r.Intn(4)
			}
			if err := conn.WriteJSON(g); err != nil {
				logger.Printf("send: %v", err)
				return
			}
		}
	}
}
