// Command ws_bridge exposes a Cobalt subprocess (typically `cobalt --acp`)
// over a WebSocket, so browser-based clients can speak the stdio protocol.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/exec"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// bridgeMessage is one line of subprocess output tagged with its stream.
type bridgeMessage struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()
	if flag.NArg() == 0 {
		log.Fatal("usage: ws_bridge [-addr :8080] <command> [args...]")
	}

	http.HandleFunc("/ws", handleWS(flag.Args()))

	fmt.Printf("WebSocket bridge running on ws://localhost%s/ws\n", *addr)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

func handleWS(cmdArgs []string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("Upgrade error:", err)
			return
		}
		defer conn.Close()

		// Each connection gets its own agent subprocess.
		cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			log.Println("Error getting stdin:", err)
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			log.Println("Error getting stdout:", err)
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			log.Println("Error getting stderr:", err)
			return
		}

		if err := cmd.Start(); err != nil {
			log.Println("Error starting agent:", err)
			return
		}
		defer func() {
			stdin.Close()
			cmd.Wait()
		}()

		// conn.WriteJSON is not safe for concurrent writers, so both
		// output streams funnel through one channel.
		outCh := make(chan bridgeMessage, 16)
		pipe := func(name string, rd *bufio.Scanner) {
			for rd.Scan() {
				outCh <- bridgeMessage{Type: name, Data: rd.Text()}
			}
		}
		go pipe("stdout", bufio.NewScanner(stdout))
		go pipe("stderr", bufio.NewScanner(stderr))
		go func() {
			for msg := range outCh {
				if err := conn.WriteJSON(msg); err != nil {
					log.Println("WS write error:", err)
					return
				}
			}
		}()

		// WebSocket messages → agent stdin
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Println("WS read error:", err)
				return
			}
			if _, err := stdin.Write(append(msg, '\n')); err != nil {
				log.Println("Stdin write error:", err)
				return
			}
		}
	}
}
