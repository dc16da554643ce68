package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/user/lcgrsa/internal/benchmark"
	"github.com/user/lcgrsa/internal/config"
	"github.com/user/lcgrsa/internal/interchange"
	"github.com/user/lcgrsa/internal/lcg"
	"github.com/user/lcgrsa/internal/modmath"
	"github.com/user/lcgrsa/internal/prime"
	"github.com/user/lcgrsa/internal/rsakey"
	"github.com/user/lcgrsa/internal/storage"
	"github.com/user/lcgrsa/pkg/sysinfo"
)

// MaxJobKeys bounds the number of key pairs one job may request.
const MaxJobKeys = 10000

type Server struct {
	router      *mux.Router
	cfg         *config.Config
	store       storage.Store
	fileStorage *storage.FileStorage
	bridge      *interchange.Bridge
	jobStore    *JobStore
	workerPool  *WorkerPool
	sysInfo     *sysinfo.SystemInfo
	upgrader    websocket.Upgrader
	httpServer  *http.Server
	stop        chan struct{}
}

type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

type Job struct {
	ID          string                   `json:"id"`
	Config      benchmark.JobConfig      `json:"config"`
	Status      string                   `json:"status"`
	StartedAt   time.Time                `json:"started_at"`
	UpdatedAt   time.Time                `json:"updated_at"`
	CompletedAt *time.Time               `json:"completed_at,omitempty"`
	Progress    benchmark.ProgressUpdate `json:"progress"`
	Result      *benchmark.WebResult     `json:"result,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

// New builds a server over store. fileStorage may be nil, in which case keys
// are only kept in the store.
func New(cfg *config.Config, store storage.Store, fileStorage *storage.FileStorage) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bridge, err := cfg.NewBridge()
	if err != nil {
		return nil, err
	}

	sysInfo, err := sysinfo.Collect(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to collect system info: %w", err)
	}

	jobStore := &JobStore{
		jobs: make(map[string]*Job),
	}

	s := &Server{
		router:      mux.NewRouter(),
		cfg:         cfg,
		store:       store,
		fileStorage: fileStorage,
		bridge:      bridge,
		jobStore:    jobStore,
		sysInfo:     sysInfo,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		stop: make(chan struct{}),
	}

	s.workerPool = NewWorkerPool(cfg.Server.Workers, cfg.Server.QueueSize, jobStore, store, fileStorage, bridge)

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/system-info", s.handleSystemInfo).Methods("GET")
	api.HandleFunc("/keys", s.handleCreateKey).Methods("POST")
	api.HandleFunc("/keys", s.handleListKeys).Methods("GET")
	api.HandleFunc("/keys/cleanup-all", s.handleCleanupAllKeys).Methods("POST")
	api.HandleFunc("/keys/{id}", s.handleGetKey).Methods("GET")
	api.HandleFunc("/keys/{id}/download", s.handleDownloadKey).Methods("GET")
	api.HandleFunc("/keys/{id}", s.handleDeleteKey).Methods("DELETE")
	api.HandleFunc("/encrypt", s.handleEncrypt).Methods("POST")
	api.HandleFunc("/decrypt", s.handleDecrypt).Methods("POST")
	api.HandleFunc("/jobs", s.handleCreateJob).Methods("POST")
	api.HandleFunc("/jobs", s.handleListJobs).Methods("GET")
	api.HandleFunc("/jobs/{id}", s.handleGetJob).Methods("GET")
	api.HandleFunc("/jobs/{id}/progress", s.handleJobProgress).Methods("GET")
	api.HandleFunc("/jobs/{id}/terminate", s.handleTerminateJob).Methods("POST")
	api.HandleFunc("/storage-stats", s.handleStorageStats).Methods("GET")
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the worker pool and serves HTTP until Shutdown.
func (s *Server) Start() error {
	s.workerPool.Start()

	if s.fileStorage != nil {
		s.fileStorage.StartCleanupRoutine(s.cfg.Storage.CleanupInterval, s.cfg.Storage.MaxAge, s.stop)
	}

	s.httpServer = &http.Server{
		Addr:              ":" + s.cfg.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("lcgrsa server starting on http://localhost:%s", s.cfg.Server.Port)
	log.Printf("Worker pool started with %d workers", s.workerPool.workers)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stop)
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.workerPool.Stop()
	return err
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, interchange.ErrKeyFormat),
		errors.Is(err, modmath.ErrInvalidArgument),
		errors.Is(err, modmath.ErrInverseDoesNotExist):
		status = http.StatusBadRequest
	case errors.Is(err, storage.ErrKeyNotFound):
		status = http.StatusNotFound
	case errors.Is(err, prime.ErrSearchExhausted):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sysInfo)
}

type createKeyRequest struct {
	Seed       uint64 `json:"seed"`
	WriteFiles bool   `json:"write_files"`
}

func (s *Server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	seed := req.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixMilli())
	}

	g := prime.NewGenerator(lcg.New(seed), s.cfg.PrimeOptions()...)
	keys, err := rsakey.Generate(r.Context(), g)
	if err != nil {
		writeError(w, err)
		return
	}

	pair, err := s.bridge.Export(keys)
	if err != nil {
		writeError(w, err)
		return
	}

	stored := storage.NewStoredKey(pair, seed, keys.Bits(), "")
	if req.WriteFiles && s.fileStorage != nil {
		if _, err := s.fileStorage.SavePair(stored); err != nil {
			writeError(w, err)
			return
		}
	}
	if err := s.store.Save(stored); err != nil {
		writeError(w, err)
		return
	}

	log.Printf("Generated %d-bit key %s from seed %d", stored.Bits, stored.ID, seed)
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")

	var (
		keys []*storage.StoredKey
		err  error
	)
	if jobID != "" {
		keys, err = s.store.ListByJob(jobID)
	} else {
		keys, err = s.store.List()
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if keys == nil {
		keys = []*storage.StoredKey{}
	}

	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleGetKey(w http.ResponseWriter, r *http.Request) {
	key, err := s.store.Get(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, key)
}

func (s *Server) handleDownloadKey(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	kind := r.URL.Query().Get("type")
	if kind == "" {
		kind = storage.KindPrivate
	}
	if kind != storage.KindPublic && kind != storage.KindPrivate {
		http.Error(w, "type must be public or private", http.StatusBadRequest)
		return
	}

	key, err := s.store.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	short := key.ID
	if len(short) > 8 {
		short = short[:8]
	}
	filename := fmt.Sprintf("lcgrsa_%s_%d_%s.pem", short, key.Bits, kind)

	w.Header().Set("Content-Type", "application/x-pem-file")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if key.FileStored && s.fileStorage != nil {
		if rc, err := s.fileStorage.GetReader(key.ID, kind); err == nil {
			defer rc.Close()
			io.Copy(w, rc)
			return
		}
	}

	content := key.PrivateKey
	if kind == storage.KindPublic {
		content = key.PublicKey
	}
	io.WriteString(w, content+"\n")
}

func (s *Server) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if s.fileStorage != nil {
		s.fileStorage.Remove(id)
	}
	if err := s.store.Delete(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCleanupAllKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.store.List()
	if err != nil {
		writeError(w, err)
		return
	}

	failures := 0
	for _, key := range keys {
		if s.fileStorage != nil {
			s.fileStorage.Remove(key.ID)
		}
		if err := s.store.Delete(key.ID); err != nil {
			log.Printf("Failed to delete key %s: %v", key.ID, err)
			failures++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"keys_cleared": len(keys) - failures,
		"errors":       failures,
		"message":      fmt.Sprintf("Cleaned up %d keys", len(keys)-failures),
	})
}

func (s *Server) handleStorageStats(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count()
	if err != nil {
		writeError(w, err)
		return
	}

	stats := map[string]interface{}{
		"driver":           s.cfg.Storage.Driver,
		"keys":             count,
		"cleanup_interval": s.cfg.Storage.CleanupInterval.String(),
		"max_age":          s.cfg.Storage.MaxAge.String(),
	}
	if fc, ok := s.store.(interface{ CountFileStored() int }); ok {
		stats["file_stored"] = fc.CountFileStored()
	}
	if s.fileStorage != nil {
		stats["files"] = s.fileStorage.GetStats()
	}
	writeJSON(w, http.StatusOK, stats)
}

type encryptRequest struct {
	Message   string `json:"message"`
	PublicKey string `json:"public_key"`
	KeyID     string `json:"key_id"`
}

type encryptResponse struct {
	Ciphertext string `json:"ciphertext"`
	Warning    string `json:"warning,omitempty"`
}

func (s *Server) handleEncrypt(w http.ResponseWriter, r *http.Request) {
	var req encryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	publicPEM := req.PublicKey
	if publicPEM == "" && req.KeyID != "" {
		key, err := s.store.Get(req.KeyID)
		if err != nil {
			writeError(w, err)
			return
		}
		publicPEM = key.Pair().PublicPEM
	}
	if publicPEM == "" {
		http.Error(w, "public key required", http.StatusBadRequest)
		return
	}

	pub, err := s.bridge.ImportPublic(publicPEM)
	if err != nil {
		writeError(w, err)
		return
	}

	msg := []byte(req.Message)
	c, err := rsakey.Encrypt(msg, pub)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := encryptResponse{Ciphertext: rsakey.CiphertextToBase64(c)}
	if !rsakey.Fits(msg, pub) {
		resp.Warning = fmt.Sprintf("message is not smaller than the %d-bit modulus and will not decrypt to the original", pub.N.BitLen())
	}
	writeJSON(w, http.StatusOK, resp)
}

type decryptRequest struct {
	Ciphertext string `json:"ciphertext"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	KeyID      string `json:"key_id"`
}

func (s *Server) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	var req decryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	publicPEM, privatePEM := req.PublicKey, req.PrivateKey
	if req.KeyID != "" && (publicPEM == "" || privatePEM == "") {
		key, err := s.store.Get(req.KeyID)
		if err != nil {
			writeError(w, err)
			return
		}
		pair := key.Pair()
		publicPEM, privatePEM = pair.PublicPEM, pair.PrivatePEM
	}
	if publicPEM == "" || privatePEM == "" {
		http.Error(w, "public and private key required", http.StatusBadRequest)
		return
	}

	keys, err := s.bridge.Import(publicPEM, privatePEM)
	if err != nil {
		writeError(w, err)
		return
	}

	c, err := rsakey.CiphertextFromBase64(req.Ciphertext)
	if err != nil {
		writeError(w, err)
		return
	}

	msg, err := rsakey.DecryptString(c, keys.PrivateKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var jc benchmark.JobConfig
	if err := json.NewDecoder(r.Body).Decode(&jc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if jc.Count == 0 {
		jc.Count = 1
	}
	if jc.Count < 0 || jc.Count > MaxJobKeys {
		http.Error(w, fmt.Sprintf("count must be between 1 and %d", MaxJobKeys), http.StatusBadRequest)
		return
	}
	if jc.MaxAttempts < 0 {
		http.Error(w, "max_attempts must not be negative", http.StatusBadRequest)
		return
	}
	if jc.MaxAttempts == 0 {
		jc.MaxAttempts = s.cfg.MaxAttempts
	}
	if jc.Rounds == 0 {
		jc.Rounds = s.cfg.Rounds
	}
	if jc.Seed == 0 {
		jc.Seed = uint64(time.Now().UnixMilli())
	}

	log.Printf("Creating key job: count %d, seed %d, max attempts %d", jc.Count, jc.Seed, jc.MaxAttempts)

	now := time.Now()
	job := &Job{
		ID:        uuid.New().String(),
		Config:    jc,
		Status:    StatusQueued,
		StartedAt: now,
		UpdatedAt: now,
		Progress:  benchmark.ProgressUpdate{Total: jc.Count, Status: StatusQueued},
	}

	s.jobStore.Add(job)

	if err := s.workerPool.Submit(job); err != nil {
		s.jobStore.CompleteJob(job.ID, nil, err)
		http.Error(w, "Server is busy, please try again later", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": StatusQueued,
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobStore.List())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.jobStore.Get(mux.Vars(r)["id"])
	if !ok {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleTerminateJob(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	job, ok := s.jobStore.Get(id)
	if !ok {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}
	if isFinal(job.Status) {
		http.Error(w, fmt.Sprintf("Job already %s", job.Status), http.StatusConflict)
		return
	}

	s.jobStore.UpdateStatus(id, StatusTerminated)
	s.workerPool.TerminateJob(id)

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  StatusTerminated,
		"message": "Job termination initiated",
	})
}

// handleJobProgress streams the job's progress over a websocket until the
// job reaches a final state.
func (s *Server) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, ok := s.jobStore.Get(id); !ok {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var last benchmark.ProgressUpdate
	first := true

	for {
		job, ok := s.jobStore.Get(id)
		if !ok {
			return
		}

		update := job.Progress
		update.Status = job.Status
		update.Completed = isFinal(job.Status)

		if first || update != last {
			if err := conn.WriteJSON(update); err != nil {
				return
			}
			first = false
			last = update
		}
		if update.Completed {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, job.Status))
			return
		}

		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}
