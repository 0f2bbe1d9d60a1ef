// wsprobe is a tiny interactive client for poking a running chatcore
// server: it mints an identity token, joins a room over /ws, prints events
// and sends stdin lines as messages.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/pixelgrid/chatcore/internal/core"
	"github.com/pixelgrid/chatcore/internal/identity"
	"github.com/pixelgrid/chatcore/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("wsprobe: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	secret := flag.String("secret", "", "identity secret shared with the server")
	user := flag.String("user", "probe", "user id")
	name := flag.String("name", "Probe", "display name")
	room := flag.String("room", "", "room id to join")
	flag.Parse()

	if *secret == "" || *room == "" {
		return fmt.Errorf("-secret and -room are required")
	}

	codec := &identity.Codec{Secret: []byte(*secret), Issuer: "pixelgrid"}
	token, err := codec.Encode(core.Identity{ID: *user, Name: *name})
	if err != nil {
		return fmt.Errorf("mint token: %w", err)
	}

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	target := *addr + "?room=" + url.QueryEscape(*room) + "&token=" + url.QueryEscape(token)
	conn, _, err := websocket.Dial(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	go func() {
		for {
			var outbound proto.Outbound
			if err := wsjson.Read(ctx, conn, &outbound); err != nil {
				cancel()
				return
			}
			raw, _ := json.Marshal(outbound)
			fmt.Println(string(raw))
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		payload, err := json.Marshal(proto.MsgData{Content: scanner.Text()})
		if err != nil {
			return fmt.Errorf("marshal message: %w", err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeMsg, Data: payload}); err != nil {
			return fmt.Errorf("send: %w", err)
		}
	}
	return scanner.Err()
}
