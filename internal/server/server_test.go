package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/user/lcgrsa/internal/benchmark"
	"github.com/user/lcgrsa/internal/config"
	"github.com/user/lcgrsa/internal/interchange"
	"github.com/user/lcgrsa/internal/lcg"
	"github.com/user/lcgrsa/internal/modmath"
	"github.com/user/lcgrsa/internal/prime"
	"github.com/user/lcgrsa/internal/rsakey"
	"github.com/user/lcgrsa/internal/storage"
)

func newTestServer(t *testing.T, start bool) *Server {
	t.Helper()

	fs, err := storage.NewFileStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	srv, err := New(config.Default(), storage.NewKeyStore(), fs)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	if start {
		srv.workerPool.Start()
		t.Cleanup(srv.workerPool.Stop)
	}
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		buf = bytes.NewBuffer(b)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func createKey(t *testing.T, srv *Server, seed uint64) storage.StoredKey {
	t.Helper()
	w := do(t, srv, "POST", "/api/v1/keys", map[string]any{"seed": seed})
	if w.Code != http.StatusCreated {
		t.Fatalf("POST /keys: status %d: %s", w.Code, w.Body.String())
	}
	var key storage.StoredKey
	if err := json.NewDecoder(w.Body).Decode(&key); err != nil {
		t.Fatal(err)
	}
	return key
}

func TestSystemInfo(t *testing.T) {
	srv := newTestServer(t, false)
	w := do(t, srv, "GET", "/api/v1/system-info", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var info map[string]any
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatal(err)
	}
	if info["go_version"] == "" {
		t.Error("missing go_version")
	}
}

func TestCreateKeyIsDeterministic(t *testing.T) {
	srv := newTestServer(t, false)
	key := createKey(t, srv, 42)

	if key.Seed != 42 || key.ID == "" || key.Bits == 0 {
		t.Errorf("unexpected key %+v", key)
	}

	keys, err := rsakey.Generate(context.Background(), prime.NewGenerator(lcg.New(42)))
	if err != nil {
		t.Fatal(err)
	}
	pair, err := interchange.NewBridge(nil).Export(keys)
	if err != nil {
		t.Fatal(err)
	}
	if key.PublicKey != pair.PublicPEM || key.PrivateKey != pair.PrivatePEM {
		t.Error("server key differs from a local derivation with the same seed")
	}
}

func TestKeyLifecycle(t *testing.T) {
	srv := newTestServer(t, false)
	key := createKey(t, srv, 1)
	createKey(t, srv, 2)

	w := do(t, srv, "GET", "/api/v1/keys", nil)
	var list []storage.StoredKey
	json.NewDecoder(w.Body).Decode(&list)
	if len(list) != 2 {
		t.Errorf("Expected 2 keys, got %d", len(list))
	}

	w = do(t, srv, "GET", "/api/v1/keys/"+key.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("GET key: status %d", w.Code)
	}

	for _, kind := range []string{"public", "private"} {
		w = do(t, srv, "GET", "/api/v1/keys/"+key.ID+"/download?type="+kind, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("download %s: status %d", kind, w.Code)
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/x-pem-file" {
			t.Errorf("Content-Type = %s", ct)
		}
		if !strings.Contains(w.Header().Get("Content-Disposition"), "_"+kind+".pem") {
			t.Errorf("Content-Disposition = %s", w.Header().Get("Content-Disposition"))
		}
		label := interchange.LabelPublic
		if kind == "private" {
			label = interchange.LabelPrivate
		}
		if !strings.HasPrefix(w.Body.String(), "-----BEGIN "+label+"-----") {
			t.Errorf("%s download body:\n%s", kind, w.Body.String())
		}
	}

	w = do(t, srv, "GET", "/api/v1/keys/"+key.ID+"/download?type=secret", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad type: status %d", w.Code)
	}

	w = do(t, srv, "DELETE", "/api/v1/keys/"+key.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("DELETE: status %d", w.Code)
	}
	w = do(t, srv, "GET", "/api/v1/keys/"+key.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("GET after DELETE: status %d", w.Code)
	}
	w = do(t, srv, "DELETE", "/api/v1/keys/"+key.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second DELETE: status %d", w.Code)
	}

	w = do(t, srv, "POST", "/api/v1/keys/cleanup-all", nil)
	var cleanup map[string]any
	json.NewDecoder(w.Body).Decode(&cleanup)
	if cleanup["keys_cleared"] != float64(1) {
		t.Errorf("cleanup = %v", cleanup)
	}
}

func TestDownloadFromFileStorage(t *testing.T) {
	srv := newTestServer(t, false)
	w := do(t, srv, "POST", "/api/v1/keys", map[string]any{"seed": 5, "write_files": true})
	var key storage.StoredKey
	json.NewDecoder(w.Body).Decode(&key)
	if !key.FileStored {
		t.Fatal("key was not written to files")
	}

	w = do(t, srv, "GET", "/api/v1/keys/"+key.ID+"/download?type=public", nil)
	if strings.TrimSpace(w.Body.String()) != key.PublicKey {
		t.Errorf("file download differs from stored PEM")
	}

	w = do(t, srv, "GET", "/api/v1/storage-stats", nil)
	var stats map[string]any
	json.NewDecoder(w.Body).Decode(&stats)
	files, _ := stats["files"].(map[string]any)
	if stats["keys"] != float64(1) || stats["file_stored"] != float64(1) || files["total_pairs"] != float64(1) {
		t.Errorf("stats = %v", stats)
	}
}

func TestEncryptDecrypt(t *testing.T) {
	srv := newTestServer(t, false)
	key := createKey(t, srv, 42)

	w := do(t, srv, "POST", "/api/v1/encrypt", map[string]string{"message": "hi", "public_key": key.PublicKey})
	if w.Code != http.StatusOK {
		t.Fatalf("encrypt: status %d: %s", w.Code, w.Body.String())
	}
	var enc map[string]string
	json.NewDecoder(w.Body).Decode(&enc)
	if enc["ciphertext"] == "" || enc["warning"] != "" {
		t.Fatalf("encrypt response %v", enc)
	}

	w = do(t, srv, "POST", "/api/v1/decrypt", map[string]string{
		"ciphertext":  enc["ciphertext"],
		"public_key":  key.PublicKey,
		"private_key": key.PrivateKey,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("decrypt: status %d: %s", w.Code, w.Body.String())
	}
	var dec map[string]string
	json.NewDecoder(w.Body).Decode(&dec)
	if dec["message"] != "hi" {
		t.Errorf("decrypted %q", dec["message"])
	}

	// by stored key
	w = do(t, srv, "POST", "/api/v1/encrypt", map[string]string{"message": "A", "key_id": key.ID})
	json.NewDecoder(w.Body).Decode(&enc)
	w = do(t, srv, "POST", "/api/v1/decrypt", map[string]string{"ciphertext": enc["ciphertext"], "key_id": key.ID})
	json.NewDecoder(w.Body).Decode(&dec)
	if dec["message"] != "A" {
		t.Errorf("decrypted %q via key_id", dec["message"])
	}
}

func TestEncryptWarnsOnOversizedMessage(t *testing.T) {
	srv := newTestServer(t, false)
	key := createKey(t, srv, 42)

	long := strings.Repeat("x", 64)
	w := do(t, srv, "POST", "/api/v1/encrypt", map[string]string{"message": long, "key_id": key.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var enc map[string]string
	json.NewDecoder(w.Body).Decode(&enc)
	if enc["warning"] == "" {
		t.Error("expected a warning for a message larger than n")
	}
}

func TestEncryptDecryptErrors(t *testing.T) {
	srv := newTestServer(t, false)
	key := createKey(t, srv, 42)

	tests := []struct {
		name string
		path string
		body map[string]string
		want int
	}{
		{"encrypt without key", "/api/v1/encrypt", map[string]string{"message": "hi"}, http.StatusBadRequest},
		{"encrypt unknown key id", "/api/v1/encrypt", map[string]string{"message": "hi", "key_id": "nope"}, http.StatusNotFound},
		{"encrypt malformed PEM", "/api/v1/encrypt", map[string]string{"message": "hi", "public_key": "garbage"}, http.StatusBadRequest},
		{"decrypt without keys", "/api/v1/decrypt", map[string]string{"ciphertext": "AA=="}, http.StatusBadRequest},
		{"decrypt bad ciphertext", "/api/v1/decrypt", map[string]string{"ciphertext": "***", "key_id": key.ID}, http.StatusBadRequest},
		{"decrypt mismatched pair", "/api/v1/decrypt", map[string]string{
			"ciphertext":  "AA==",
			"public_key":  createKey(t, srv, 43).PublicKey,
			"private_key": key.PrivateKey,
		}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, srv, "POST", tt.path, tt.body)
			if w.Code != tt.want {
				t.Errorf("status %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	req := httptest.NewRequest("POST", "/api/v1/encrypt", strings.NewReader("{"))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid JSON: status %d", w.Code)
	}
}

func waitForJob(t *testing.T, srv *Server, id string) Job {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		w := do(t, srv, "GET", "/api/v1/jobs/"+id, nil)
		var job Job
		json.NewDecoder(w.Body).Decode(&job)
		if isFinal(job.Status) {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return Job{}
}

func TestJobFlow(t *testing.T) {
	srv := newTestServer(t, true)

	w := do(t, srv, "POST", "/api/v1/jobs", benchmark.JobConfig{Count: 3, Seed: 7})
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var response map[string]string
	json.NewDecoder(w.Body).Decode(&response)
	jobID, ok := response["job_id"]
	if !ok {
		t.Fatal("No job_id in response")
	}

	job := waitForJob(t, srv, jobID)
	if job.Status != StatusCompleted {
		t.Fatalf("Expected status 'completed', got '%s' (%s)", job.Status, job.Error)
	}
	if job.Result == nil || len(job.Result.KeyIDs) != 3 {
		t.Fatalf("result = %+v", job.Result)
	}
	if job.Config.MaxAttempts != prime.DefaultMaxAttempts {
		t.Errorf("job did not inherit the configured attempt bound: %d", job.Config.MaxAttempts)
	}

	w = do(t, srv, "GET", "/api/v1/keys?job_id="+jobID, nil)
	var keys []storage.StoredKey
	json.NewDecoder(w.Body).Decode(&keys)
	if len(keys) != 3 {
		t.Errorf("Expected 3 keys, got %d", len(keys))
	}

	w = do(t, srv, "GET", "/api/v1/jobs", nil)
	var jobs []Job
	json.NewDecoder(w.Body).Decode(&jobs)
	if len(jobs) != 1 {
		t.Errorf("Expected 1 job, got %d", len(jobs))
	}
}

func TestJobValidation(t *testing.T) {
	srv := newTestServer(t, false)

	for _, body := range []any{
		map[string]int{"count": -1},
		map[string]int{"count": MaxJobKeys + 1},
		map[string]int{"count": 1, "max_attempts": -5},
	} {
		w := do(t, srv, "POST", "/api/v1/jobs", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%v: status %d", body, w.Code)
		}
	}

	if w := do(t, srv, "GET", "/api/v1/jobs/nope", nil); w.Code != http.StatusNotFound {
		t.Errorf("unknown job: status %d", w.Code)
	}
}

func TestJobQueueFull(t *testing.T) {
	srv := newTestServer(t, false) // no workers draining the queue
	capacity := cap(srv.workerPool.jobQueue)

	for i := 0; i < capacity; i++ {
		if w := do(t, srv, "POST", "/api/v1/jobs", map[string]int{"count": 1}); w.Code != http.StatusAccepted {
			t.Fatalf("job %d: status %d", i, w.Code)
		}
	}
	if w := do(t, srv, "POST", "/api/v1/jobs", map[string]int{"count": 1}); w.Code != http.StatusServiceUnavailable {
		t.Errorf("full queue: status %d, want 503", w.Code)
	}
}

func TestTerminateQueuedJob(t *testing.T) {
	srv := newTestServer(t, false)

	w := do(t, srv, "POST", "/api/v1/jobs", map[string]int{"count": 5})
	var response map[string]string
	json.NewDecoder(w.Body).Decode(&response)
	id := response["job_id"]

	w = do(t, srv, "POST", "/api/v1/jobs/"+id+"/terminate", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("terminate: status %d", w.Code)
	}
	w = do(t, srv, "POST", "/api/v1/jobs/"+id+"/terminate", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("second terminate: status %d, want 409", w.Code)
	}

	// once a worker picks it up the job is skipped
	srv.workerPool.Start()
	t.Cleanup(srv.workerPool.Stop)
	job := waitForJob(t, srv, id)
	if job.Status != StatusTerminated {
		t.Errorf("status = %s", job.Status)
	}
	if n, _ := srv.store.Count(); n != 0 {
		t.Errorf("terminated job stored %d keys", n)
	}
}

func TestJobProgressWebSocket(t *testing.T) {
	srv := newTestServer(t, true)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	w := do(t, srv, "POST", "/api/v1/jobs", benchmark.JobConfig{Count: 4, Seed: 3})
	var response map[string]string
	json.NewDecoder(w.Body).Decode(&response)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/jobs/" + response["job_id"] + "/progress"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	var last benchmark.ProgressUpdate
	for {
		var update benchmark.ProgressUpdate
		if err := conn.ReadJSON(&update); err != nil {
			t.Fatalf("read: %v", err)
		}
		if update.Current > update.Total {
			t.Errorf("current %d exceeds total %d", update.Current, update.Total)
		}
		last = update
		if update.Completed {
			break
		}
	}

	if last.Status != StatusCompleted || last.Current != 4 || last.Percentage != 100 {
		t.Errorf("final update %+v", last)
	}
	if last.Attempts < 8 {
		t.Errorf("four key pairs need at least eight draws, got %d", last.Attempts)
	}
}

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", interchange.ErrKeyFormat), http.StatusBadRequest},
		{modmath.ErrInvalidArgument, http.StatusBadRequest},
		{fmt.Errorf("%w: x", storage.ErrKeyNotFound), http.StatusNotFound},
		{fmt.Errorf("p: %w", prime.ErrSearchExhausted), http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		writeError(w, tt.err)
		if w.Code != tt.want {
			t.Errorf("%v: status %d, want %d", tt.err, w.Code, tt.want)
		}
	}
}
