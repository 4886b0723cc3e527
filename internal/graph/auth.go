package graph

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/tonimelisma/hive/internal/tokenfile"
)

// DefaultClientID is the public-client Azure AD application used when the
// configuration does not name one.
const DefaultClientID = "8efac532-bbe7-4bc5-919c-1443ccab860a"

// DefaultScopes are requested when the configuration does not override
// them.
var DefaultScopes = []string{
	"offline_access",
	"Files.ReadWrite",
	"User.Read",
}

// ErrNotLoggedIn is returned when no usable token is available.
var ErrNotLoggedIn = errors.New("graph: not logged in")

// DeviceAuth holds the device code fields shown to the user.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

// AuthConfig selects the OAuth2 application and endpoint.
type AuthConfig struct {
	ClientID string
	Tenant   string // "common" when empty
	Scopes   []string

	// Endpoint overrides the Azure AD endpoint derived from Tenant.
	Endpoint *oauth2.Endpoint

	// HTTPClient is used for token requests when set.
	HTTPClient *http.Client
}

// Session owns the OAuth2 token for one persistent location. It implements
// TokenSource; refreshed tokens are persisted through OnTokenChange.
type Session struct {
	cfg       *oauth2.Config
	tokenPath string
	logger    *slog.Logger
	baseCtx   context.Context

	mu  sync.Mutex
	src oauth2.TokenSource
}

// NewSession prepares a session persisting its token at tokenPath. It does
// no I/O; call Resume or one of the Login methods.
func NewSession(ac AuthConfig, tokenPath string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		tokenPath: tokenPath,
		logger:    logger,
		baseCtx:   context.Background(),
	}

	if ac.HTTPClient != nil {
		s.baseCtx = context.WithValue(s.baseCtx, oauth2.HTTPClient, ac.HTTPClient)
	}

	s.cfg = oauthConfig(ac, tokenPath, logger)

	return s
}

// oauthConfig builds an oauth2.Config with OnTokenChange wired to persist
// refreshed tokens.
func oauthConfig(ac AuthConfig, tokenPath string, logger *slog.Logger) *oauth2.Config {
	clientID := ac.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}

	scopes := ac.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	tenant := ac.Tenant
	if tenant == "" {
		tenant = "common"
	}

	endpoint := microsoft.AzureADEndpoint(tenant)
	if ac.Endpoint != nil {
		endpoint = *ac.Endpoint
	}

	return &oauth2.Config{
		ClientID: clientID,
		Scopes:   scopes,
		Endpoint: endpoint,
		// Called by ReuseTokenSource after each silent refresh, outside its mutex.
		OnTokenChange: func(tok *oauth2.Token) {
			if err := tokenfile.Save(tokenPath, tok, scopes); err != nil {
				logger.Warn("failed to persist refreshed token",
					slog.String("path", tokenPath),
					slog.String("error", err.Error()),
				)

				return
			}

			logger.Info("persisted refreshed token",
				slog.String("path", tokenPath),
				slog.Time("new_expiry", tok.Expiry),
			)
		},
	}
}

// Resume loads a previously saved token. It returns ErrNotLoggedIn when
// none exists or it was granted for different scopes.
func (s *Session) Resume() error {
	tf, err := tokenfile.Load(s.tokenPath)
	if errors.Is(err, tokenfile.ErrNotFound) {
		return ErrNotLoggedIn
	}

	if err != nil {
		return err
	}

	if !tf.ScopesMatch(s.cfg.Scopes) {
		s.logger.Info("saved token scopes differ from configuration, login required",
			slog.String("path", s.tokenPath))

		return ErrNotLoggedIn
	}

	s.logger.Info("loaded saved token",
		slog.String("path", s.tokenPath),
		slog.Time("expiry", tf.Token.Expiry),
		slog.Bool("expired", !tf.Token.Expiry.IsZero() && tf.Token.Expiry.Before(time.Now())),
	)

	s.install(tf.Token)

	return nil
}

func (s *Session) install(tok *oauth2.Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.src = s.cfg.TokenSource(s.baseCtx, tok)
}

// LoginDevice runs the device code flow. display is called once with the
// code to show; an error from it aborts the login.
func (s *Session) LoginDevice(ctx context.Context, display func(context.Context, DeviceAuth) error) error {
	s.logger.Info("starting device code auth flow")

	ctx = s.withHTTPClient(ctx)

	da, err := s.cfg.DeviceAuth(ctx)
	if err != nil {
		return fmt.Errorf("graph: device auth request failed: %w", err)
	}

	if err := display(ctx, DeviceAuth{UserCode: da.UserCode, VerificationURI: da.VerificationURI}); err != nil {
		return fmt.Errorf("graph: device auth display: %w", err)
	}

	s.logger.Info("device code received, waiting for user authorization")

	tok, err := s.cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return fmt.Errorf("graph: device code authorization failed: %w", err)
	}

	return s.save(tok)
}

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// callbackShutdownTimeout bounds how long the callback server drains.
const callbackShutdownTimeout = 5 * time.Second

type callbackResult struct {
	code string
	err  error
}

// LoginBrowser runs the authorization code + PKCE flow against a localhost
// callback server. openURL receives the authorization URL; an error from it
// aborts the login.
func (s *Session) LoginBrowser(ctx context.Context, openURL func(context.Context, string) error) error {
	s.logger.Info("starting browser auth flow (authorization code + PKCE)")

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()

	srv, port, err := startCallbackServer(ctx, mux, resultCh)
	if err != nil {
		return err
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), callbackShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
		}
	}()

	cfg := *s.cfg
	cfg.RedirectURL = fmt.Sprintf("http://localhost:%d", port)

	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return fmt.Errorf("graph: generating state token: %w", err)
	}

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		handleOAuthCallback(w, r, state, resultCh)
	})

	authURL := cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.S256ChallengeOption(verifier))
	if err := openURL(ctx, authURL); err != nil {
		return fmt.Errorf("graph: opening authorization URL: %w", err)
	}

	var code string
	select {
	case res := <-resultCh:
		if res.err != nil {
			return res.err
		}

		code = res.code
	case <-ctx.Done():
		return fmt.Errorf("graph: browser auth canceled: %w", ctx.Err())
	}

	tok, err := cfg.Exchange(s.withHTTPClient(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return fmt.Errorf("graph: token exchange failed: %w", err)
	}

	return s.save(tok)
}

func (s *Session) save(tok *oauth2.Token) error {
	if err := tokenfile.Save(s.tokenPath, tok, s.cfg.Scopes); err != nil {
		return fmt.Errorf("graph: saving token: %w", err)
	}

	s.install(tok)

	s.logger.Info("login successful",
		slog.String("path", s.tokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	return nil
}

func (s *Session) withHTTPClient(ctx context.Context) context.Context {
	if hc, ok := s.baseCtx.Value(oauth2.HTTPClient).(*http.Client); ok {
		return context.WithValue(ctx, oauth2.HTTPClient, hc)
	}

	return ctx
}

func startCallbackServer(
	ctx context.Context, mux *http.ServeMux, resultCh chan<- callbackResult,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("graph: binding localhost listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, fmt.Errorf("graph: listener address is not TCP")
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: callbackShutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			select {
			case resultCh <- callbackResult{err: fmt.Errorf("graph: callback server error: %w", serveErr)}:
			default:
			}
		}
	}()

	return srv, tcpAddr.Port, nil
}

// handleOAuthCallback validates the state, extracts the code, and sends the
// result. Only the first result is delivered.
func handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	send := func(res callbackResult) {
		select {
		case resultCh <- res:
		default:
		}
	}

	q := r.URL.Query()

	if q.Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		send(callbackResult{err: fmt.Errorf("graph: OAuth2 state mismatch (possible CSRF)")})

		return
	}

	if errParam := q.Get("error"); errParam != "" {
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		send(callbackResult{err: fmt.Errorf("graph: authorization failed: %s: %s", errParam, q.Get("error_description"))})

		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		send(callbackResult{err: fmt.Errorf("graph: callback missing authorization code")})

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authentication successful</h1>"+
		"<p>You can close this window.</p></body></html>")
	send(callbackResult{code: code})
}

func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// Token returns a valid access token, refreshing it when needed.
func (s *Session) Token() (string, error) {
	s.mu.Lock()
	src := s.src
	s.mu.Unlock()

	if src == nil {
		return "", ErrNotLoggedIn
	}

	t, err := src.Token()
	if err != nil {
		s.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("graph: obtaining token: %w", err)
	}

	return t.AccessToken, nil
}

// LoggedIn reports whether the session holds a token.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.src != nil
}

// Expire marks the current access token as expired so the next Token call
// goes through a refresh.
func (s *Session) Expire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.src == nil {
		return ErrNotLoggedIn
	}

	tf, err := tokenfile.Load(s.tokenPath)
	if err != nil {
		return fmt.Errorf("graph: expiring token: %w", err)
	}

	expired := *tf.Token
	expired.AccessToken = ""
	expired.Expiry = time.Now().Add(-time.Hour)

	s.src = s.cfg.TokenSource(s.baseCtx, &expired)
	s.logger.Info("access token expired on request")

	return nil
}

// Logout forgets the token and removes the token file.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.src = nil
	s.mu.Unlock()

	if err := tokenfile.Remove(s.tokenPath); err != nil {
		return err
	}

	s.logger.Info("logout: removed token file", slog.String("path", s.tokenPath))

	return nil
}
