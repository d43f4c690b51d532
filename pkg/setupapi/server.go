// Package setupapi is the JSON provisioning API a phone or laptop talks
// to while the device is in access-point mode. Wifi credentials are
// submitted through an encrypted session (see pkg/secure) because the
// setup network may be open; mutating endpoints additionally require
// the access point secret as a bearer token.
package setupapi

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"outpost-firmware/pkg/config"
	"outpost-firmware/pkg/globals"
	"outpost-firmware/pkg/logger"
	"outpost-firmware/pkg/netman"
	"outpost-firmware/pkg/secure"
	"outpost-firmware/pkg/sysinfo"

	"github.com/gorilla/websocket"
)

// restartDelay gives the HTTP response time to reach the client before
// the device reboots into client mode. Variable so tests can shrink it.
var restartDelay = 2 * time.Second

type Server struct {
	mu          sync.Mutex
	provisioner *netman.Provisioner
	cfg         *config.Config
	restart     func()
	server      *http.Server
	session     *secure.Session
	upgrader    websocket.Upgrader
	streams     map[*websocket.Conn]struct{}
}

func New(provisioner *netman.Provisioner, cfg *config.Config, restart func()) *Server {
	s := &Server{
		provisioner: provisioner,
		cfg:         cfg,
		restart:     restart,
		streams:     make(map[*websocket.Conn]struct{}),
	}
	// The client is on our own AP (or LAN); origin checks add nothing
	s.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	provisioner.Subscribe(s.broadcastEvent)
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /networks", s.handleNetworks)
	mux.HandleFunc("GET /logs", s.requireSecret(s.handleLogs))
	mux.HandleFunc("POST /handshake", s.requireSecret(s.handleHandshake))
	mux.HandleFunc("POST /configure", s.requireSecret(s.handleConfigure))
	mux.HandleFunc("GET /events", s.handleEvents)
	return mux
}

// Start serves the API in the background.
func (s *Server) Start(port string) {
	s.server = &http.Server{Addr: ":" + port, Handler: s.routes()}
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Setup API stopped: %v", err)
		}
	}()
	log.Printf("Setup API listening on :%s", port)
}

func (s *Server) Stop() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

// requireSecret gates a handler behind the access point secret. The
// secret is re-read per request so a regenerated secret applies
// immediately.
func (s *Server) requireSecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secretValue := s.cfg.GetString(config.KeyAccessPointSecret)
		if secretValue == "" {
			writeError(w, http.StatusServiceUnavailable, "device has no setup secret")
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(secretValue)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid setup secret")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"deviceName":      s.cfg.GetString(config.KeyDeviceName),
		"deviceId":        s.cfg.GetString(config.KeyDeviceID),
		"firmwareVersion": globals.FirmwareVersion,
		"mode":            s.provisioner.OperationMode().String(),
		"connected":       s.provisioner.IsConnected(),
		"localIp":         s.provisioner.LocalIP(),
		"accessPointIp":   s.provisioner.AccessPointIP(),
		"hardwareMac":     s.provisioner.HardwareMACAddress(":"),
		"softwareMac":     s.provisioner.SoftwareMACAddress(":"),
		"system":          sysinfo.Collect(),
	})
}

func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	networks, err := s.provisioner.Scan()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "networks": networks})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "logs": logger.Recent(200)})
}

// handleHandshake exchanges public keys and installs the session used
// by /configure. A new handshake replaces the previous session.
func (s *Server) handleHandshake(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicKey string `json:"publicKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	peerKey, err := secure.ParsePublicKey(req.PublicKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	keypair, err := secure.NewKeyPair()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate keys")
		return
	}

	session, err := secure.NewSession(keypair.Private, peerKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"publicKey": keypair.PublicKeyString(),
	})
}

// handleConfigure accepts encrypted wifi credentials, persists them,
// marks the device configured and schedules a restart into client mode.
func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Payload string `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	session := s.session
	s.mu.Unlock()
	if session == nil {
		writeError(w, http.StatusConflict, "no handshake session")
		return
	}

	plaintext, err := session.Open(req.Payload)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "failed to decrypt payload")
		return
	}

	var creds struct {
		SSID       string `json:"ssid"`
		Password   string `json:"password"`
		DeviceName string `json:"deviceName"`
	}
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if creds.SSID == "" {
		writeError(w, http.StatusBadRequest, "ssid must not be empty")
		return
	}

	s.cfg.Set(config.KeyWifiEssid, creds.SSID)
	s.cfg.Set(config.KeyWifiPassword, creds.Password)
	s.cfg.Set(config.KeyWifiConfigured, "true")
	if creds.DeviceName != "" {
		s.cfg.Set(config.KeyDeviceName, creds.DeviceName)
	}
	if err := s.cfg.Save(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Printf("Network configured for '%s', restarting into client mode", creds.SSID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})

	if s.restart != nil {
		go func() {
			time.Sleep(restartDelay)
			s.restart()
		}()
	}
}

// handleEvents upgrades to a websocket and streams link events. The
// secret rides in a query parameter because browsers cannot set headers
// on websocket dials.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	secretValue := s.cfg.GetString(config.KeyAccessPointSecret)
	if secretValue == "" || subtle.ConstantTimeCompare(
		[]byte(r.URL.Query().Get("secret")), []byte(secretValue)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid setup secret")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.streams[conn] = struct{}{}
	s.mu.Unlock()

	// Reader loop only exists to notice the close
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.streams, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// broadcastEvent pushes a link event to every connected stream. Runs on
// the provisioner's event goroutine, so it must not block on a slow
// client; writes get a short deadline instead.
func (s *Server) broadcastEvent(ev netman.Event) {
	msg := map[string]any{
		"event":     ev.String(),
		"connected": s.provisioner.IsConnected(),
		"localIp":   s.provisioner.LocalIP(),
		"time":      time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.streams {
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			delete(s.streams, conn)
		}
	}
}
