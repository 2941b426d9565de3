package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/phatch9/drcrypt/cmd/server/internal/repository"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Handler serves register and login. Passwords are stored as bcrypt
// hashes; a successful call returns a signed bearer token.
type Handler struct {
	users  repository.UserStore
	tokens *TokenIssuer
	logger *zap.Logger
}

func NewHandler(users repository.UserStore, tokens *TokenIssuer, logger *zap.Logger) *Handler {
	return &Handler{users: users, tokens: tokens, logger: logger}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Username == "" || creds.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Username and password are required"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.Password), bcrypt.DefaultCost)
	if err != nil {
		h.logger.Error("Password hash failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Server Error"})
		return
	}

	user, err := h.users.CreateUser(r.Context(), creds.Username, string(hash))
	if errors.Is(err, repository.ErrDuplicate) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "User already exists"})
		return
	}
	if err != nil {
		h.logger.Error("User create failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Server Error"})
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Username, time.Now())
	if err != nil {
		h.logger.Error("Token issue failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Server Error"})
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{ID: user.ID, Username: user.Username, Token: token})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Username == "" || creds.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Username and password are required"})
		return
	}

	user, err := h.users.FindUserByUsername(r.Context(), creds.Username)
	if err == nil {
		err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password))
	}
	if err != nil {
		// Unknown user and wrong password are indistinguishable on purpose.
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Invalid username or password"})
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Username, time.Now())
	if err != nil {
		h.logger.Error("Token issue failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "Server Error"})
		return
	}

	writeJSON(w, http.StatusOK, authResponse{ID: user.ID, Username: user.Username, Token: token})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
