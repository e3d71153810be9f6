package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zeusync/worldsync/internal/capture"
	"github.com/zeusync/worldsync/internal/core/protocol/packet"
)

func main() {
	var (
		path   = flag.String("file", "", "path to a .cap.zst capture")
		player = flag.Int64("player", 0, "only show records tagged with this player id (inbound records carry 0)")
		only   = flag.String("type", "", "comma separated packet type names to show (optional)")
		raw    = flag.Bool("raw", false, "print payload bytes instead of decoded messages")
	)
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "missing -file")
		os.Exit(2)
	}

	types := make(map[string]bool)
	for _, t := range strings.Split(*only, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types[strings.ToUpper(t)] = true
		}
	}

	r, err := capture.Open(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open capture:", err)
		os.Exit(1)
	}
	defer r.Close()

	var shown, total int
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "read capture:", err)
			os.Exit(1)
		}
		total++

		if *player != 0 && rec.PlayerID != *player {
			continue
		}
		if len(rec.Packet) == 0 {
			continue
		}
		typ := packet.Type(rec.Packet[0])
		if len(types) > 0 && !types[typ.String()] {
			continue
		}
		shown++

		body := fmt.Sprintf("% x", rec.Packet[1:])
		if !*raw {
			if m, err := packet.Decode(rec.Packet); err == nil {
				body = fmt.Sprintf("%+v", m)
			} else {
				body = "undecodable: " + err.Error()
			}
		}
		fmt.Printf("%s %-3s ch=%d player=%d %s %s\n",
			rec.Time.Format("15:04:05.000000"), rec.Direction, rec.Channel, rec.PlayerID, typ, body)
	}
	fmt.Fprintf(os.Stderr, "%d of %d records\n", shown, total)
}
