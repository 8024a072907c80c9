package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "orderhub")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "orderhub")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveTokens(tf tokenFile) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tf)
}

func loadTokens() (tokenFile, error) {
	var tf tokenFile
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		return tf, err
	}
	if err := json.Unmarshal(b, &tf); err != nil {
		return tf, err
	}
	return tf, nil
}

// loadToken returns a usable access token.
func loadToken() (string, error) {
	tf, err := loadTokens()
	if err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errors.New("no valid token (login or refresh required)")
	}
	return tf.AccessToken, nil
}

func clearTokens() error {
	err := os.Remove(tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// tokenExpiry reads exp without verifying the signature; the server does that.
func tokenExpiry(raw string) time.Time {
	var rc jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &rc); err != nil || rc.ExpiresAt == nil {
		return time.Now().Add(15 * time.Minute)
	}
	return rc.ExpiresAt.Time
}

func tokensFromPair(p tokenPair) tokenFile {
	return tokenFile{AccessToken: p.Access, RefreshToken: p.Refresh, ExpiresAt: tokenExpiry(p.Access)}
}

// ---- transport ----

func loadTLS(caPath string, insecure bool) (*tls.Config, error) {
	if insecure {
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // dev flag
	}
	if caPath == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return &tls.Config{RootCAs: pool}, nil
}

type tokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// apiError is a non-2xx reply from the server.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server replied %d", e.Status)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

type client struct {
	base   string
	bearer string
	http   *http.Client
	tls    *tls.Config
}

func newClient(base string, tlsCfg *tls.Config, bearer string) *client {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = tlsCfg
	return &client{
		base:   strings.TrimRight(base, "/"),
		bearer: bearer,
		http:   &http.Client{Transport: tr, Timeout: 30 * time.Second},
		tls:    tlsCfg,
	}
}

func (c *client) post(ctx context.Context, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(raw, &e)
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *client) signup(ctx context.Context, phone, password, fullName string) (map[string]string, error) {
	var out map[string]string
	err := c.post(ctx, "/signup", map[string]string{"phone": phone, "password": password, "full_name": fullName}, &out)
	return out, err
}

func (c *client) login(ctx context.Context, phone, password string) (tokenPair, error) {
	var out tokenPair
	err := c.post(ctx, "/token", map[string]string{"identifier": phone, "credential": password}, &out)
	return out, err
}

func (c *client) refresh(ctx context.Context, refresh string) (tokenPair, error) {
	var out tokenPair
	err := c.post(ctx, "/token/refresh", map[string]string{"refresh": refresh}, &out)
	return out, err
}

func (c *client) logout(ctx context.Context) error {
	return c.post(ctx, "/logout", nil, nil)
}

type orderRequest struct {
	Name         string  `json:"name"`
	Price        string  `json:"price"`
	SpecialPrice *string `json:"special_price,omitempty"`
}

func (c *client) createOrder(ctx context.Context, in orderRequest) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.post(ctx, "/orders", in, &out)
	return out, err
}

// wsURL maps the API base onto the socket endpoint.
func wsURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

func (c *client) dialWS(ctx context.Context) (*websocket.Conn, error) {
	target, err := wsURL(c.base)
	if err != nil {
		return nil, err
	}
	d := websocket.Dialer{HandshakeTimeout: 10 * time.Second, TLSClientConfig: c.tls}
	h := http.Header{}
	if c.bearer != "" {
		h.Set("Authorization", "Bearer "+c.bearer)
	}
	ws, resp, err := d.DialContext(ctx, target, h)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// watch prints every frame until the server closes or ctx ends.
func watch(ctx context.Context, ws *websocket.Conn, out io.Writer) error {
	stop := context.AfterFunc(ctx, func() {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = ws.Close()
	})
	defer stop()

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return fmt.Errorf("closed by server: code %d", ce.Code)
			}
			return err
		}
		if _, err := fmt.Fprintln(out, string(msg)); err != nil {
			return err
		}
	}
}

// sendOrderWS submits an order over the socket and returns the direct reply.
// Broadcast frames that arrive first are skipped.
func sendOrderWS(ctx context.Context, ws *websocket.Conn, in orderRequest) (string, error) {
	frame := struct {
		Type string `json:"type"`
		orderRequest
	}{Type: "create_order", orderRequest: in}
	if dl, ok := ctx.Deadline(); ok {
		_ = ws.SetReadDeadline(dl)
		_ = ws.SetWriteDeadline(dl)
	}
	if err := ws.WriteJSON(frame); err != nil {
		return "", err
	}
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return "", err
		}
		var probe struct {
			Message *string `json:"message"`
			Error   *string `json:"error"`
		}
		if json.Unmarshal(msg, &probe) != nil {
			continue
		}
		if probe.Message != nil {
			return *probe.Message, nil
		}
		if probe.Error != nil {
			return "", errors.New(*probe.Error)
		}
	}
}

// ---- utils ----

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
