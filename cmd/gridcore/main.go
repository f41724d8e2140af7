// Command gridcore runs the spreadsheet engine either as an interactive
// shell or as a websocket-backed server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/vimeh/gridcore/eventbus"
	"github.com/vimeh/gridcore/replcli"
	"github.com/vimeh/gridcore/server"
	"github.com/vimeh/gridcore/workbook"
)

const (
	defaultRows, defaultCols = 1000, 256
)

func main() {
	if len(os.Args) < 2 {
		os.Exit(replCommand(nil))
	}

	switch sub := os.Args[1]; sub {
	case "-h", "--help", "help":
		usage()
	case "repl":
		os.Exit(replCommand(os.Args[2:]))
	case "serve":
		os.Exit(serveCommand(os.Args[2:]))
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n", sub)
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  gridcore <command> [arguments]\n")
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	fmt.Fprintf(os.Stderr, "  repl                 start the interactive shell (default)\n")
	fmt.Fprintf(os.Stderr, "  serve [addr]         start the websocket server (default :8080)\n")
	fmt.Fprintf(os.Stderr, "  serve --events addr  also publish every change over a ZeroMQ PUB socket\n")
	fmt.Fprintf(os.Stderr, "  help                 show this help message\n")
}

func replCommand(args []string) int {
	if len(args) > 0 {
		fmt.Fprintln(os.Stderr, "repl takes no arguments")
		return 2
	}
	wb := workbook.New(defaultRows, defaultCols)
	wb.AddSheet("Sheet1")
	replcli.Start(os.Stdin, os.Stdout, wb)
	return 0
}

func serveCommand(args []string) int {
	addr := ":8080"
	eventsAddr := ""

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--events":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--events requires an address")
				return 2
			}
			i++
			eventsAddr = args[i]
		default:
			addr = normalizeAddr(args[i])
		}
	}

	wb := workbook.New(defaultRows, defaultCols)
	wb.AddSheet("Sheet1")

	srv := server.New(wb)

	if eventsAddr != "" {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pub, err := eventbus.NewPublisher(ctx, eventsAddr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "events bus error: %v\n", err)
			return 1
		}
		defer pub.Close()
		for _, sheet := range wb.Sheets() {
			pub.Attach(sheet.Name, sheet.Engine)
		}
		fmt.Printf("publishing cell events on %s\n", eventsAddr)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.HandleWebSocket)

	fmt.Printf("gridcore serving on http://%s\n", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		return 1
	}
	return 0
}

// normalizeAddr applies the same "bind all interfaces, port-only is fine"
// treatment a raw ":addr" flag needs before being handed to
// http.ListenAndServe.
func normalizeAddr(addr string) string {
	addr = strings.Replace(addr, "localhost", "", 1)
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	return addr
}
