// fakedaemon stands in for the sync daemon in the integration tests. It
// listens on a random port, advertises the port and an API token the same
// way the real daemon does, and publishes a fixed batch of events to every
// subscriber.
package main

import (
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// ReadyMessage is printed once the daemon is accepting connections.
const ReadyMessage = "fakedaemon: ready"

const statusMessage = `{"events": [
	{"kind": "folder-added", "folder": "Docs"},
	{"kind": "connection-changed", "connected": 3, "desired": 3, "happy": true},
	{"kind": "upload-queued", "folder": "Docs", "relpath": "a.txt"},
	{"kind": "upload-started", "folder": "Docs", "relpath": "a.txt"},
	{"kind": "scan-completed", "folder": "Docs"},
	{"kind": "poll-completed", "folder": "Docs"},
	{"kind": "upload-finished", "folder": "Docs", "relpath": "a.txt"}
]}`

func main() {
	dir := flag.String("dir", "", "directory to write the endpoint and token to")
	flag.Parse()

	if err := run(*dir); err != nil {
		log.WithError(err).Fatal("fakedaemon failed")
	}
}

func run(dir string) error {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}

	token := uuid.New().String()
	if err := os.WriteFile(filepath.Join(dir, "api_token"), []byte(token), 0600); err != nil {
		return err
	}

	endpoint := fmt.Sprintf("tcp:%s", lis.Addr().String())
	if err := os.WriteFile(filepath.Join(dir, "api_endpoint"), []byte(endpoint), 0644); err != nil {
		return err
	}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/status", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			log.WithError(err).Warn("Failed to upgrade")
			return
		}
		defer conn.Close()

		if err := conn.WriteMessage(websocket.TextMessage, []byte(statusMessage)); err != nil {
			log.WithError(err).Warn("Failed to write status")
			return
		}

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	fmt.Println(ReadyMessage)
	return http.Serve(lis, mux)
}
