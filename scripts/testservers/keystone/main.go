package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	mathrand "math/rand/v2"
	"net/http"
	"sync"
	"time"
)

type keystone struct {
	latency  time.Duration
	jitter   time.Duration
	failRate float64
	ttl      time.Duration

	mu     sync.RWMutex
	tokens map[string]time.Time
}

func main() {
	port := flag.Int("port", 35357, "Listening port")
	latency := flag.Duration("latency", 5*time.Millisecond, "Base latency added to every response")
	jitter := flag.Duration("jitter", 2*time.Millisecond, "Random extra latency up to this value")
	failRate := flag.Float64("fail-rate", 0, "Fraction of requests answered with 503")
	ttl := flag.Duration("ttl", time.Hour, "Lifetime of issued tokens")
	flag.Parse()

	if *port <= 0 {
		log.Fatalf("port must be > 0")
	}

	ks := &keystone{
		latency:  *latency,
		jitter:   *jitter,
		failRate: *failRate,
		ttl:      *ttl,
		tokens:   make(map[string]time.Time),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v3/auth/tokens", ks.handleIssue)
	mux.HandleFunc("GET /v3/auth/tokens", ks.handleValidate)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("fake keystone listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, mux))
}

func (k *keystone) delay() bool {
	d := k.latency
	if k.jitter > 0 {
		d += time.Duration(mathrand.Int64N(int64(k.jitter)))
	}
	time.Sleep(d)
	return k.failRate > 0 && mathrand.Float64() < k.failRate
}

func (k *keystone) handleIssue(w http.ResponseWriter, r *http.Request) {
	if k.delay() {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	var body struct {
		Auth struct {
			Identity struct {
				Methods  []string `json:"methods"`
				Password struct {
					User struct {
						Name     string `json:"name"`
						Password string `json:"password"`
					} `json:"user"`
				} `json:"password"`
			} `json:"identity"`
		} `json:"auth"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondJSON(w, http.StatusBadRequest, errorBody(http.StatusBadRequest, "malformed request body"))
		return
	}
	user := body.Auth.Identity.Password.User
	if user.Name == "" || user.Password == "" {
		respondJSON(w, http.StatusUnauthorized, errorBody(http.StatusUnauthorized, "The request you have made requires authentication."))
		return
	}

	token := newToken()
	expires := time.Now().Add(k.ttl).UTC()
	k.mu.Lock()
	k.tokens[token] = expires
	k.mu.Unlock()

	w.Header().Set("X-Subject-Token", token)
	respondJSON(w, http.StatusCreated, map[string]any{
		"token": map[string]any{
			"methods":    []string{"password"},
			"user":       map[string]any{"name": user.Name},
			"issued_at":  time.Now().UTC().Format(time.RFC3339Nano),
			"expires_at": expires.Format(time.RFC3339Nano),
		},
	})
}

func (k *keystone) handleValidate(w http.ResponseWriter, r *http.Request) {
	if k.delay() {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	if !k.valid(r.Header.Get("X-Auth-Token")) {
		respondJSON(w, http.StatusUnauthorized, errorBody(http.StatusUnauthorized, "The request you have made requires authentication."))
		return
	}
	subject := r.Header.Get("X-Subject-Token")
	if !k.valid(subject) {
		respondJSON(w, http.StatusNotFound, errorBody(http.StatusNotFound, "Could not find token."))
		return
	}
	k.mu.RLock()
	expires := k.tokens[subject]
	k.mu.RUnlock()

	w.Header().Set("X-Subject-Token", subject)
	respondJSON(w, http.StatusOK, map[string]any{
		"token": map[string]any{"expires_at": expires.Format(time.RFC3339Nano)},
	})
}

func (k *keystone) valid(token string) bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	expires, ok := k.tokens[token]
	return ok && time.Now().Before(expires)
}

func newToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func errorBody(code int, message string) map[string]any {
	return map[string]any{"error": map[string]any{"code": code, "message": message}}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode response: %v", err)
	}
}
