package electricity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// portalClient talks to the campus electricity portal.
type portalClient interface {
	// FetchBalance returns the meter reading for the bound room.
	// Returns an error matching errAuthExpired when the session token is rejected.
	FetchBalance(ctx context.Context, token string) (Reading, error)
	// Login exchanges account credentials for a fresh session token.
	Login(ctx context.Context, account, password string) (string, error)
}

// errAuthExpired marks portal responses that mean "session token no longer valid".
var errAuthExpired = errors.New("portal session expired")

const portalUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/145.0.0.0 Safari/537.36"

// envelope is the portal's JSON response wrapper. Tag==1 means success.
type envelope struct {
	Tag     int             `json:"Tag"`
	Message string          `json:"Message"`
	Data    json.RawMessage `json:"Data"`
}

type devicesPayload struct {
	RoomName    string   `json:"RoomName"`
	DevicesList []device `json:"DevicesList"`
}

type device struct {
	DeviceType    int     `json:"DeviceType"`
	DeviceName    string  `json:"DeviceName"`
	DeviceBalance float64 `json:"DeviceBalance"`
	DevicePrice   float64 `json:"DevicePrice"`
	UpdateTime    string  `json:"UpdateTime"`
	IsOnline      int     `json:"IsOnline"`
	SwitchStatus  int     `json:"SwitchStatus"`
}

type httpPortalClient struct {
	balanceURL string
	loginURL   string
	http       *http.Client
}

func newPortalClient(balanceURL, loginURL string, timeout time.Duration) *httpPortalClient {
	if strings.TrimSpace(balanceURL) == "" {
		balanceURL = defaultBalanceURL
	}
	if strings.TrimSpace(loginURL) == "" {
		loginURL = defaultLoginURL
	}
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &httpPortalClient{
		balanceURL: balanceURL,
		loginURL:   loginURL,
		http:       &http.Client{Timeout: timeout},
	}
}

func (c *httpPortalClient) FetchBalance(ctx context.Context, token string) (Reading, error) {
	if strings.TrimSpace(token) == "" {
		return Reading{}, fmt.Errorf("%w: no session token", errAuthExpired)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.balanceURL, nil)
	if err != nil {
		return Reading{}, err
	}
	req.Header.Set("User-Agent", portalUserAgent)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Cookie", "AppUserToken="+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return Reading{}, err
	}
	defer resp.Body.Close()

	// The portal answers auth failures with a redirect-to-login or 401/403.
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Reading{}, fmt.Errorf("%w: http %d", errAuthExpired, resp.StatusCode)
	}
	if resp.StatusCode/100 != 2 {
		return Reading{}, fmt.Errorf("balance request failed: http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Reading{}, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Reading{}, fmt.Errorf("decode balance response: %w", err)
	}
	if env.Tag != 1 {
		if looksLikeLoginExpired(env.Message) {
			return Reading{}, fmt.Errorf("%w: %s", errAuthExpired, env.Message)
		}
		return Reading{}, fmt.Errorf("portal error: %s", env.Message)
	}

	var data devicesPayload
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return Reading{}, fmt.Errorf("decode devices payload: %w", err)
	}
	if len(data.DevicesList) == 0 {
		return Reading{}, errors.New("no bound devices found")
	}

	// DeviceType 1 is the electricity meter; other types are water etc.
	for _, d := range data.DevicesList {
		if d.DeviceType != 1 {
			continue
		}
		return Reading{
			RoomName:     data.RoomName,
			DeviceName:   d.DeviceName,
			Balance:      d.DeviceBalance,
			Price:        d.DevicePrice,
			UpdateTime:   d.UpdateTime,
			IsOnline:     d.IsOnline == 1,
			SwitchStatus: d.SwitchStatus == 1,
		}, nil
	}
	return Reading{}, errors.New("no electricity meter device found")
}

func (c *httpPortalClient) Login(ctx context.Context, account, password string) (string, error) {
	if strings.TrimSpace(account) == "" || password == "" {
		return "", errors.New("account and password are required for login")
	}

	form := url.Values{}
	form.Set("account", account)
	form.Set("password", password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", portalUserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("login request failed: http %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if env.Tag != 1 {
		return "", fmt.Errorf("login failed: %s", env.Message)
	}

	// The session token comes back as the AppUserToken cookie, not in the body.
	for _, ck := range resp.Cookies() {
		if ck.Name == "AppUserToken" && ck.Value != "" {
			return ck.Value, nil
		}
	}
	return "", errors.New("login succeeded but token cookie missing")
}

// looksLikeLoginExpired reports whether a portal message means the session is gone.
// The portal localizes these, so match the known phrasings.
func looksLikeLoginExpired(message string) bool {
	keywords := []string{
		"登录过期",
		"登录已过期",
		"请登录",
		"请先登录",
		"未登录",
		"账号过期",
		"token过期",
		"Token过期",
	}
	for _, kw := range keywords {
		if strings.Contains(message, kw) {
			return true
		}
	}
	return false
}
