package authcore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"
)

// AuthServer exposes the auth operations over HTTP.
//
//	POST /auth/local                 {identifier, password}
//	POST /auth/local/register        {username, email, password, ...}
//	GET  /auth/{provider}/callback   ?access_token=...
//	POST /auth/forgot-password       {email, url}
//	POST /auth/reset-password        {code, password, passwordConfirmation}
//	POST /auth/logout
//	GET  /auth/me
type AuthServer struct {
	Local        *LocalAuth
	Provider     *ProviderAuth
	Registration *Registration
	Reset        *PasswordReset
	Store        Store

	Session    *scs.SessionManager
	Middleware Middleware
	Logger     *slog.Logger

	// Path prefix for every route. Defaults to /auth.
	Prefix string

	router *mux.Router
}

// NewAuthServer builds every component from cfg around a single store.
// exchange may be nil when no provider logins are configured.
func NewAuthServer(cfg *Config, store Store, sender EmailSender, exchange ProviderExchange) *AuthServer {
	cfg.EnsureDefaults()
	hasher := NewBcryptHasher(cfg.BcryptCost)
	tokens := NewJWTIssuer(cfg.JWTSecretKey, cfg.JWTIssuer, cfg.TokenTTL)

	local := NewLocalAuth(store, hasher, tokens)

	reg := NewRegistration(store, hasher, tokens)
	reg.DefaultLocale = cfg.DefaultLocale
	reg.DefaultTemplate = cfg.DefaultTemplate

	reset := NewPasswordReset(store, hasher, tokens, sender, cfg.ResetURL)
	reset.CodeTTL = cfg.ResetCodeTTL
	reset.EmailTimeout = cfg.EmailTimeout

	var provider *ProviderAuth
	if exchange != nil {
		provider = NewProviderAuth(exchange, tokens, cfg.FrontendURL)
		provider.Timeout = cfg.ProviderTimeout
	}

	session := scs.New()
	session.Lifetime = cfg.SessionLifetime
	session.Cookie.Name = fmt.Sprintf("%s_session", cfg.AppName)
	session.Cookie.Secure = cfg.CookieSecure
	session.Cookie.HttpOnly = true

	return &AuthServer{
		Local:        local,
		Provider:     provider,
		Registration: reg,
		Reset:        reset,
		Store:        store,
		Session:      session,
		Middleware:   Middleware{Verifier: tokens, Session: session},
	}
}

// Handler returns the routes wrapped in session loading.
func (a *AuthServer) Handler() http.Handler {
	return a.Session.LoadAndSave(a.setupRoutes().router)
}

func (a *AuthServer) getPrefix() string {
	if a.Prefix != "" {
		return strings.TrimSuffix(a.Prefix, "/")
	}
	return "/auth"
}

func (a *AuthServer) setupRoutes() *AuthServer {
	if a.router != nil {
		return a
	}
	a.Middleware.Session = a.Session
	a.Middleware.EnsureReasonableDefaults()

	a.router = mux.NewRouter()
	r := a.router.PathPrefix(a.getPrefix()).Subrouter()
	r.HandleFunc("/local", a.handleLocal).Methods(http.MethodPost)
	r.HandleFunc("/local/register", a.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/forgot-password", a.handleForgotPassword).Methods(http.MethodPost)
	r.HandleFunc("/reset-password", a.handleResetPassword).Methods(http.MethodPost)
	r.HandleFunc("/logout", a.handleLogout).Methods(http.MethodGet, http.MethodPost)
	r.Handle("/me", a.Middleware.EnsureUser(http.HandlerFunc(a.handleMe))).Methods(http.MethodGet)
	r.HandleFunc("/{provider}/callback", a.handleProviderCallback).Methods(http.MethodGet)
	return a
}

func (a *AuthServer) handleLocal(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody(r)
	if err != nil {
		a.writeError(w, r, BadRequest(err.Error()))
		return
	}
	session, err := a.Local.AuthenticateLocal(r.Context(), str(body, "identifier"), str(body, "password"))
	a.respondSession(w, r, session, err)
}

func (a *AuthServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody(r)
	if err != nil {
		a.writeError(w, r, BadRequest(err.Error()))
		return
	}
	session, err := a.Registration.Register(r.Context(), RegisterParamsFromMap(body))
	a.respondSession(w, r, session, err)
}

func (a *AuthServer) handleProviderCallback(w http.ResponseWriter, r *http.Request) {
	provider := mux.Vars(r)["provider"]
	if a.Provider == nil {
		a.writeError(w, r, NotFound(fmt.Sprintf("provider %s is not enabled", provider)))
		return
	}
	session, err := a.Provider.AuthenticateProvider(r.Context(), provider, r.URL.Query().Get("access_token"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	target, err := a.Provider.RedirectURL(session)
	if err != nil {
		a.writeError(w, r, InternalError(err))
		return
	}
	if err := a.login(r, session.User.ID); err != nil {
		a.writeError(w, r, InternalError(err))
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (a *AuthServer) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody(r)
	if err != nil {
		a.writeError(w, r, BadRequest(err.Error()))
		return
	}
	if err := a.Reset.RequestPasswordReset(r.Context(), str(body, "email"), str(body, "url")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (a *AuthServer) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody(r)
	if err != nil {
		a.writeError(w, r, BadRequest(err.Error()))
		return
	}
	session, err := a.Reset.ResetPassword(r.Context(), str(body, "code"), str(body, "password"), str(body, "passwordConfirmation"))
	a.respondSession(w, r, session, err)
}

func (a *AuthServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.Session.Destroy(r.Context()); err != nil {
		loggerOrDefault(a.Logger).WarnContext(r.Context(), "session destroy failed", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (a *AuthServer) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := a.Store.FindUser(r.Context(), UserFilter{ID: UserIDFromContext(r.Context()), WithRoles: true, WithPassports: true})
	if errors.Is(err, ErrNotFound) {
		a.writeError(w, r, NotFound("user not found"))
		return
	} else if err != nil {
		a.writeError(w, r, InternalError(err))
		return
	}
	writeJSON(w, http.StatusOK, user.Sanitized())
}

func (a *AuthServer) respondSession(w http.ResponseWriter, r *http.Request, session *Session, err error) {
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.login(r, session.User.ID); err != nil {
		a.writeError(w, r, InternalError(err))
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (a *AuthServer) login(r *http.Request, userID string) error {
	if err := a.Session.RenewToken(r.Context()); err != nil {
		return err
	}
	a.Session.Put(r.Context(), a.Middleware.UserParamName, userID)
	return nil
}

func (a *AuthServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := asAuthError(err)
	if ae.Kind == KindInternal {
		loggerOrDefault(a.Logger).ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, ae.StatusCode(), map[string]any{
		"error": ae.Message,
		"code":  ae.Kind,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// parseBody reads a JSON object or a urlencoded form into a map.
func parseBody(r *http.Request) (map[string]any, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("error parsing form")
		}
		out := make(map[string]any, len(r.PostForm))
		for k := range r.PostForm {
			out[k] = r.PostForm.Get(k)
		}
		return out, nil
	}
	out := map[string]any{}
	if r.Body == nil {
		return out, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid post body")
	}
	return out, nil
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
