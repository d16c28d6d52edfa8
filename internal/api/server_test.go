package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ferrolink/otacore/internal/device"
	"github.com/ferrolink/otacore/internal/firmware"
	"github.com/ferrolink/otacore/internal/hub"
	"github.com/ferrolink/otacore/internal/infrastructure/config"
	"github.com/ferrolink/otacore/internal/infrastructure/logging"
	"github.com/ferrolink/otacore/internal/orchestrator"
)

const (
	testAdminUser = "admin"
	testAdminPass = "test-password"
	testJWTSecret = "test-secret-key-at-least-32-characters-long"
)

// testServer creates a Server with real registries backed by in-memory
// SQLite and a temp artifact directory.
func testServer(t *testing.T) (*Server, *device.Registry, *firmware.Registry) {
	t.Helper()

	db := setupTestDB(t)
	devices := device.NewRegistry(device.NewSQLiteRepository(db))

	store, err := firmware.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	firmwares := firmware.NewRegistry(firmware.NewSQLiteRepository(db), store)

	h := hub.New()
	engine := orchestrator.New(devices, firmwares, h, "http://127.0.0.1:8080")

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.ServerTimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		WebSocket: config.WebSocketConfig{
			Path:           "/ws/device",
			MaxMessageSize: 65536,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Auth: config.AuthConfig{
			AdminUsername: testAdminUser,
			AdminPassword: testAdminPass,
			JWTSecret:     testJWTSecret,
			TokenTTL:      15,
		},
	}

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config:    cfg,
		Logger:    log,
		Devices:   devices,
		Firmwares: firmwares,
		Hub:       h,
		Engine:    engine,
		Version:   "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return srv, devices, firmwares
}

// setupTestDB creates an in-memory SQLite database with the full schema.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE devices (
			device_id       TEXT PRIMARY KEY,
			last_ip         TEXT NOT NULL,
			current_version TEXT,
			status          TEXT NOT NULL DEFAULT 'connected',
			last_seen       TEXT NOT NULL
		) STRICT;
		CREATE TABLE firmwares (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			file_name TEXT NOT NULL UNIQUE,
			version   TEXT NOT NULL UNIQUE,
			hash      TEXT NOT NULL,
			size      INTEGER NOT NULL DEFAULT 0,
			added_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`

	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// loginToken performs a login and returns the bearer token.
func loginToken(t *testing.T, router http.Handler) string {
	t.Helper()

	body := fmt.Sprintf(`{"username":%q,"password":%q}`, testAdminUser, testAdminPass)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp loginResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}
	return resp.AccessToken
}

// uploadFirmware performs an authenticated multipart upload.
func uploadFirmware(t *testing.T, router http.Handler, token, fileName, version, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("writing part: %v", err)
	}
	if err := mw.WriteField("version", version); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/firmwares", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

// ─── Auth Tests ────────────────────────────────────────────────────

func TestLogin_BadCredentials(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	body := `{"username":"admin","password":"wrong"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("login status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestProtectedRoute_RequiresToken(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestProtectedRoute_RejectsGarbageToken(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestProtectedRoute_AcceptsValidToken(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
}

// ─── Device Endpoint Tests ─────────────────────────────────────────

func TestListDevices(t *testing.T) {
	srv, devices, _ := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)

	if _, err := devices.Connect(context.Background(), "dev-1", "10.0.0.5", "1.0.0"); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp struct {
		Count   int `json:"count"`
		Devices []struct {
			DeviceID string `json:"device_id"`
			Status   string `json:"status"`
			Online   bool   `json:"online"`
		} `json:"devices"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	if resp.Devices[0].DeviceID != "dev-1" || resp.Devices[0].Status != "connected" {
		t.Errorf("device = %+v, want dev-1/connected", resp.Devices[0])
	}
	if resp.Devices[0].Online {
		t.Error("device reported online without a live connection")
	}
}

func TestGetDevice_NotFound(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/devices/ghost", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Firmware Endpoint Tests ───────────────────────────────────────

func TestUploadFirmware(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)

	w := uploadFirmware(t, router, token, "esp32-1.2.0.bin", "1.2.0", "image bytes")
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp struct {
		Firmware firmware.Firmware `json:"firmware"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Firmware.Version != "1.2.0" || resp.Firmware.Size != int64(len("image bytes")) {
		t.Errorf("firmware = %+v", resp.Firmware)
	}
	if resp.Firmware.Hash == "" {
		t.Error("hash missing from upload response")
	}
}

func TestUploadFirmware_DuplicateVersion(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)

	if w := uploadFirmware(t, router, token, "a.bin", "1.0.0", "a"); w.Code != http.StatusCreated {
		t.Fatalf("first upload status = %d; body: %s", w.Code, w.Body.String())
	}
	w := uploadFirmware(t, router, token, "b.bin", "1.0.0", "b")
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate upload status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestUploadFirmware_MissingVersion(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "a.bin") //nolint:errcheck // test setup
	part.Write([]byte("a"))                      //nolint:errcheck // test setup
	mw.Close()                                   //nolint:errcheck // test setup

	req := httptest.NewRequest(http.MethodPost, "/api/v1/firmwares", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDeleteFirmware(t *testing.T) {
	srv, _, firmwares := testServer(t)
	router := srv.buildRouter()
	token := loginToken(t, router)

	fw, err := firmwares.Add(context.Background(), "doomed.bin", "0.9.0", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/v1/firmwares/%d", fw.ID), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	// Second delete finds nothing.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req.Clone(context.Background()))
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Artifact Download Tests ───────────────────────────────────────

func TestDownloadFirmware(t *testing.T) {
	srv, _, firmwares := testServer(t)
	router := srv.buildRouter()

	fw, err := firmwares.Add(context.Background(), "dl.bin", "2.0.0", strings.NewReader("binary payload"))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	// No Authorization header: devices download anonymously.
	req := httptest.NewRequest(http.MethodGet, "/firmware/dl.bin", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("download status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "binary payload" {
		t.Errorf("body = %q, want original content", w.Body.String())
	}
	if got := w.Header().Get("X-Checksum-SHA256"); got != fw.Hash {
		t.Errorf("checksum header = %q, want %q", got, fw.Hash)
	}
	if got := w.Header().Get("Content-Length"); got != fmt.Sprint(fw.Size) {
		t.Errorf("Content-Length = %q, want %d", got, fw.Size)
	}
}

func TestDownloadFirmware_Unknown(t *testing.T) {
	srv, _, _ := testServer(t)
	router := srv.buildRouter()

	req := httptest.NewRequest(http.MethodGet, "/firmware/nope.bin", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

// ─── Device WebSocket Tests ────────────────────────────────────────

// dialDevice opens a device WebSocket session against a live test server.
func dialDevice(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/device"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	if resp != nil {
		resp.Body.Close() //nolint:errcheck // handshake response
	}
	t.Cleanup(func() {
		conn.Close() //nolint:errcheck // test teardown
	})
	return conn
}

func TestDeviceSession_OfferOnConnect(t *testing.T) {
	srv, _, firmwares := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	fw, err := firmwares.Add(context.Background(), "fw-2.bin", "2.0.0", strings.NewReader("image"))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	conn := dialDevice(t, ts)
	hello := `{"device_id":"dev-ws","version":"1.0.0"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(hello)); err != nil {
		t.Fatalf("writing hello: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck // test deadline
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading offer: %v", err)
	}

	var offer orchestrator.Offer
	if err := json.Unmarshal(frame, &offer); err != nil {
		t.Fatalf("decoding offer: %v", err)
	}
	if offer.Command != orchestrator.OfferCommand || offer.Version != "2.0.0" {
		t.Errorf("offer = %+v, want update to 2.0.0", offer)
	}
	if offer.Hash != fw.Hash {
		t.Errorf("offer hash = %q, want %q", offer.Hash, fw.Hash)
	}
}

func TestDeviceSession_ReportAndDisconnect(t *testing.T) {
	srv, devices, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	conn := dialDevice(t, ts)
	hello := `{"device_id":"dev-rep","version":"1.0.0"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(hello)); err != nil {
		t.Fatalf("writing hello: %v", err)
	}

	report := `{"status":"failed","code":103}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(report)); err != nil {
		t.Fatalf("writing report: %v", err)
	}

	// The report is handled asynchronously; poll for the recorded status.
	waitForStatus(t, devices, "dev-rep", "failed:install_code_103")

	conn.Close() //nolint:errcheck // simulate device dropping
	waitForStatus(t, devices, "dev-rep", "disconnected")
}

func TestDeviceSession_HelloWithoutIDClosedAsPolicyViolation(t *testing.T) {
	srv, _, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	conn := dialDevice(t, ts)
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"version":"1.0.0"}`)); err != nil {
		t.Fatalf("writing hello: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck // test deadline
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected the connection to be closed")
	}

	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		t.Fatalf("ReadMessage() error = %v, want close frame", err)
	}
	if closeErr.Code != websocket.ClosePolicyViolation {
		t.Errorf("close code = %d, want %d", closeErr.Code, websocket.ClosePolicyViolation)
	}
}

// waitForStatus polls until the device's stored status matches want.
func waitForStatus(t *testing.T, devices *device.Registry, id, want string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		d, err := devices.Get(context.Background(), id)
		if err == nil && d.Status.String() == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	d, err := devices.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("device %s never appeared: %v", id, err)
	}
	t.Fatalf("status = %q, want %q", d.Status.String(), want)
}
