package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultPort      = "8080"
	defaultLatencyMs = "50"
	sessionCookie    = "JSESSIONID"
)

type Account struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role"`
	password string
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message     string   `json:"message"`
	Success     bool     `json:"success"`
	RedirectURL string   `json:"redirectUrl,omitempty"`
	User        *Account `json:"user,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// testAccounts are the fixed credentials e2e runs sign in with.
// The Google account is what the fake OAuth round trip signs in as.
var testAccounts = map[string]*Account{
	"admin@totaro.kr":  {ID: 1, Email: "admin@totaro.kr", Name: "Admin", Role: "ADMIN", password: "admin1234"},
	"kim@totaro.kr":    {ID: 2, Email: "kim@totaro.kr", Name: "Kim Minjun", Role: "USER", password: "user1234"},
	"google@totaro.kr": {ID: 3, Email: "google@totaro.kr", Role: "USER"},
}

var (
	latencyMs = getEnvInt("LATENCY_MS", defaultLatencyMs)

	mu       sync.Mutex
	sessions = map[string]*Account{}
)

func main() {
	port := getEnv("PORT", defaultPort)

	http.HandleFunc("/health", handleHealth)
	http.HandleFunc("/api/auth/login", withLatency(handleLogin))
	http.HandleFunc("/api/auth/me", withLatency(handleMe))
	http.HandleFunc("/api/auth/logout", withLatency(handleLogout))
	http.HandleFunc("/oauth2/authorization/google", withLatency(handleGoogle))

	log.Printf("Mock certificate backend starting on port %s", port)
	log.Printf("Simulated latency: %dms", latencyMs)
	for _, a := range testAccounts {
		if a.password != "" {
			log.Printf("Test account: %s / %s (%s)", a.Email, a.password, a.Role)
		}
	}

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "cert-backend",
		"version": "1.0.0",
	})
}

// handleLogin accepts JSON from API clients and form posts from the portal
// login page. Browsers are sent back to the portal with 303.
func handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST is allowed")
		return
	}

	form := isForm(r)
	var req LoginRequest
	if form {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "Invalid form body")
			return
		}
		req.Email = r.PostFormValue("email")
		req.Password = r.PostFormValue("password")
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}

	acct, ok := testAccounts[strings.ToLower(strings.TrimSpace(req.Email))]
	if !ok || acct.password == "" || acct.password != req.Password {
		if form {
			http.Redirect(w, r, "/login?error=bad_credentials", http.StatusSeeOther)
			return
		}
		writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid email or password.")
		return
	}

	startSession(w, acct)
	if form {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Message: "ok", Success: true, RedirectURL: "/", User: acct})
}

func handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET is allowed")
		return
	}
	acct := lookupSession(r)
	if acct == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Not signed in")
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST is allowed")
		return
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		mu.Lock()
		delete(sessions, c.Value)
		mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	w.WriteHeader(http.StatusNoContent)
}

// handleGoogle skips the provider round trip and signs the Google test
// account in directly, landing on the success marker the portal expects.
// ?fail=1 simulates a provider error instead.
func handleGoogle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("fail") != "" {
		http.Redirect(w, r, "/?error=access_denied", http.StatusFound)
		return
	}
	startSession(w, testAccounts["google@totaro.kr"])
	http.Redirect(w, r, "/?success=true", http.StatusFound)
}

func startSession(w http.ResponseWriter, acct *Account) {
	id := newSessionID()
	mu.Lock()
	sessions[id] = acct
	mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: id, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
}

func lookupSession(r *http.Request) *Account {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()
	return sessions[c.Value]
}

func newSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("failed to generate session id: %v", err)
	}
	return hex.EncodeToString(b)
}

func isForm(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}

func withLatency(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if latencyMs > 0 {
			time.Sleep(time.Duration(latencyMs) * time.Millisecond)
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message, Code: status})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key, defaultValue string) int {
	n, err := strconv.Atoi(getEnv(key, defaultValue))
	if err != nil {
		return 0
	}
	return n
}
