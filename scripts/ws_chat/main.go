// Interactive terminal client for manual testing against a running server.
// Lines are sent as chat; /pm, /reply, /focus and /move are understood.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/werchat/werchat/internal/colortext"
	transporthttp "github.com/werchat/werchat/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	name := flag.String("name", "cli-user", "player name")
	id := flag.String("id", "", "player id to resume a previous session")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	hello := transporthttp.Inbound{Type: "hello", Name: *name, ID: *id}
	if err := wsjson.Write(ctx, conn, hello); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	var welcome transporthttp.Outbound
	if err := wsjson.Read(ctx, conn, &welcome); err != nil {
		return fmt.Errorf("read welcome: %w", err)
	}
	fmt.Printf("Connected to %s as %s (id %s), default channel %s\n",
		*addr, welcome.Name, welcome.ID, welcome.Channel)
	fmt.Println("Type to chat. /pm <name> <text>, /reply <text>, /focus <channel>, /move <world> <x> <y> <z>. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound transporthttp.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch outbound.Type {
		case "message":
			fmt.Println(renderANSI(outbound.Runs))
		case "error":
			fmt.Printf("error: %s\n", outbound.Error)
		default:
			fmt.Printf("type=%s %+v\n", outbound.Type, outbound)
		}
	}
}

// renderANSI converts styled runs to truecolor escape sequences.
func renderANSI(runs colortext.Text) string {
	var b strings.Builder
	for _, r := range runs {
		if len(r.Color) == 7 && r.Color[0] == '#' {
			red, _ := strconv.ParseUint(r.Color[1:3], 16, 8)
			green, _ := strconv.ParseUint(r.Color[3:5], 16, 8)
			blue, _ := strconv.ParseUint(r.Color[5:7], 16, 8)
			fmt.Fprintf(&b, "\x1b[38;2;%d;%d;%dm", red, green, blue)
		}
		if r.Bold {
			b.WriteString("\x1b[1m")
		}
		if r.Italic {
			b.WriteString("\x1b[3m")
		}
		if r.Underline {
			b.WriteString("\x1b[4m")
		}
		if r.Strikethrough {
			b.WriteString("\x1b[9m")
		}
		b.WriteString(r.Text)
		b.WriteString("\x1b[0m")
	}
	return b.String()
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			frame, err := parseCommand(text)
			if err != nil {
				fmt.Println(err)
				continue
			}
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}

func parseCommand(text string) (transporthttp.Inbound, error) {
	if !strings.HasPrefix(text, "/") {
		return transporthttp.Inbound{Type: "chat", Text: text}, nil
	}

	fields := strings.Fields(text)
	switch fields[0] {
	case "/pm":
		if len(fields) < 3 {
			return transporthttp.Inbound{}, errors.New("usage: /pm <name> <text>")
		}
		return transporthttp.Inbound{
			Type: "pm",
			To:   fields[1],
			Text: strings.Join(fields[2:], " "),
		}, nil
	case "/reply":
		if len(fields) < 2 {
			return transporthttp.Inbound{}, errors.New("usage: /reply <text>")
		}
		return transporthttp.Inbound{Type: "reply", Text: strings.Join(fields[1:], " ")}, nil
	case "/focus":
		if len(fields) != 2 {
			return transporthttp.Inbound{}, errors.New("usage: /focus <channel>")
		}
		return transporthttp.Inbound{Type: "focus", Channel: fields[1]}, nil
	case "/move":
		if len(fields) != 5 {
			return transporthttp.Inbound{}, errors.New("usage: /move <world> <x> <y> <z>")
		}
		x, errX := strconv.ParseFloat(fields[2], 64)
		y, errY := strconv.ParseFloat(fields[3], 64)
		z, errZ := strconv.ParseFloat(fields[4], 64)
		if errX != nil || errY != nil || errZ != nil {
			return transporthttp.Inbound{}, errors.New("usage: /move <world> <x> <y> <z>")
		}
		return transporthttp.Inbound{Type: "move", World: fields[1], X: x, Y: y, Z: z}, nil
	default:
		return transporthttp.Inbound{}, fmt.Errorf("unknown command %s", fields[0])
	}
}
