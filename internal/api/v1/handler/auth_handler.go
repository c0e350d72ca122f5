package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"shardz/internal/api/v1/dto"
	"shardz/internal/middleware"
	"shardz/internal/model"
	"shardz/internal/service"
	"shardz/internal/util"
)

// OAuthProfile is a provider-neutral view of the external identity.
type OAuthProfile struct {
	Subject  string
	Email    string
	Username string
}

// profileFetcher retrieves the profile behind an exchanged token. One per
// provider, because every provider shapes its userinfo endpoint differently.
type profileFetcher func(ctx context.Context, client *http.Client) (*OAuthProfile, error)

type oauthProvider struct {
	config *oauth2.Config
	fetch  profileFetcher
}

type AuthHandler struct {
	userService service.UserService
	validate    *validator.Validate
	jwtSecret   string
	providers   map[string]oauthProvider
}

func NewAuthHandler(userService service.UserService, v *validator.Validate, jwtSecret string, github, google *oauth2.Config) *AuthHandler {
	providers := make(map[string]oauthProvider)
	if github != nil {
		providers["github"] = oauthProvider{config: github, fetch: fetchGitHubProfile}
	}
	if google != nil {
		providers["google"] = oauthProvider{config: google, fetch: fetchGoogleProfile}
	}
	return &AuthHandler{
		userService: userService,
		validate:    v,
		jwtSecret:   jwtSecret,
		providers:   providers,
	}
}

// RegisterRoutes mounts v1 auth routes. Registration, login, and the OAuth
// dance are unauthenticated; /users/me requires a session.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.HandleFunc("/auth/register", h.register)
	mux.HandleFunc("/auth/login", h.login)
	mux.HandleFunc("/auth/oauth/", h.oauthStart)
	mux.HandleFunc("/auth/callback/", h.oauthCallback)
	mux.Handle("/users/me", authMw(http.HandlerFunc(h.getMe)))
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req dto.RegisterDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.userService.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeToken(w, http.StatusCreated, user)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req dto.LoginDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}

	user, err := h.userService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeToken(w, http.StatusOK, user)
}

// oauthStateCookie binds the state echoed back by the provider to the
// browser that started the dance.
const oauthStateCookie = "oauth_state"

// oauthStart redirects the browser to the provider consent page.
func (h *AuthHandler) oauthStart(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path[len("/auth/oauth/"):]
	provider, ok := h.providers[name]
	if !ok {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, provider.config.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

func (h *AuthHandler) oauthCallback(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Path[len("/auth/callback/"):]
	provider, ok := h.providers[name]
	if !ok {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || cookie.Value != state {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Path: "/", MaxAge: -1, HttpOnly: true})

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}

	token, err := provider.config.Exchange(r.Context(), code)
	if err != nil {
		http.Error(w, "code exchange failed: "+err.Error(), http.StatusUnauthorized)
		return
	}

	profile, err := provider.fetch(r.Context(), provider.config.Client(r.Context(), token))
	if err != nil {
		http.Error(w, "profile fetch failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	user, err := h.userService.OAuthLogin(r.Context(), name, profile.Subject, profile.Email, profile.Username)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.writeToken(w, http.StatusOK, user)
}

func (h *AuthHandler) getMe(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	if userID == "" {
		http.Error(w, "Unauthorized: user ID not found in context", http.StatusUnauthorized)
		return
	}

	user, err := h.userService.Get(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(userToDTO(user))
}

func (h *AuthHandler) writeToken(w http.ResponseWriter, status int, user *model.User) {
	token, err := util.MintJWT(user.ID, user.Email, h.jwtSecret)
	if err != nil {
		http.Error(w, "Failed to mint session token: "+err.Error(), http.StatusInternalServerError)
		return
	}

	resp := dto.TokenResponseDTO{Token: token, User: userToDTO(user)}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func userToDTO(u *model.User) dto.UserResponseDTO {
	return dto.UserResponseDTO{
		UserID:        u.ID,
		Email:         u.Email,
		Username:      u.Username,
		DatabaseLimit: u.DatabaseLimit,
		CreatedAt:     u.CreatedAt,
	}
}

func fetchGitHubProfile(ctx context.Context, client *http.Client) (*OAuthProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://api.github.com/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github userinfo returned status %d", resp.StatusCode)
	}

	var body struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return &OAuthProfile{
		Subject:  fmt.Sprintf("%d", body.ID),
		Email:    body.Email,
		Username: body.Login,
	}, nil
}

func fetchGoogleProfile(ctx context.Context, client *http.Client) (*OAuthProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.googleapis.com/oauth2/v2/userinfo", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google userinfo returned status %d", resp.StatusCode)
	}

	var body struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return &OAuthProfile{
		Subject:  body.ID,
		Email:    body.Email,
		Username: body.Name,
	}, nil
}
