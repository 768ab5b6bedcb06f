package electricity

import (
	"sync"
	"time"

	"powerbot/internal/core"
)

// Config defines plugin configuration.
type Config struct {
	BalanceURL string `json:"balance_url"`
	LoginURL   string `json:"login_url"`

	Account  string `json:"account"`
	Password string `json:"password"`
	// Token is the portal session token. Usually left empty in config;
	// the plugin obtains one via login and persists it in storage.
	Token string `json:"token"`

	// Threshold is the low-balance alert threshold in CNY.
	Threshold float64 `json:"threshold"`
	// CheckInterval is a Go duration string (e.g. "60m").
	CheckInterval string `json:"check_interval"`
	AutoCheck     bool   `json:"auto_check"`
	// AutoRefreshToken enables re-login when the portal reports an expired session.
	AutoRefreshToken bool `json:"auto_refresh_token"`
	// RequestTimeout is a Go duration string bounding one portal HTTP call.
	RequestTimeout string `json:"request_timeout"`
}

const (
	defaultBalanceURL = "https://wpp.nnnu.edu.cn/Home/GetUserBindDevices"
	defaultLoginURL   = "https://wpp.nnnu.edu.cn/Login/LoginJson"

	defaultThreshold      = 30.0
	defaultCheckInterval  = 60 * time.Minute
	defaultRequestTimeout = 15 * time.Second
)

// Reading is one electricity meter observation from the campus portal.
type Reading struct {
	RoomName     string  `json:"room_name"`
	DeviceName   string  `json:"device_name"`
	Balance      float64 `json:"balance"`
	Price        float64 `json:"price"`
	UpdateTime   string  `json:"update_time"`
	IsOnline     bool    `json:"is_online"`
	SwitchStatus bool    `json:"switch_status"`
}

// Outcome classifies how a check cycle ended.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	// OutcomeAuthRefreshed: the token had expired, re-login succeeded and the
	// retried fetch returned a reading.
	OutcomeAuthRefreshed
	// OutcomeAuthExpired: the token expired and could not be refreshed
	// (refresh disabled, missing credentials, or re-login failed).
	OutcomeAuthExpired
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeAuthRefreshed:
		return "auth_refreshed"
	case OutcomeAuthExpired:
		return "auth_expired"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// EventKind classifies a balance transition detected by a successful check.
type EventKind int

const (
	EventNone EventKind = iota
	// EventLowBalance: balance dropped below the threshold this cycle
	// (previous value was at or above it).
	EventLowBalance
	// EventRecharge: balance increased since the previous check.
	EventRecharge
)

// CheckResult is the full outcome of one check cycle.
type CheckResult struct {
	Outcome Outcome
	Reading Reading   // valid when Outcome is Success or AuthRefreshed
	Event   EventKind // valid when Outcome is Success or AuthRefreshed
	Delta   float64   // recharge amount when Event is EventRecharge
	Err     error     // non-nil when Outcome is AuthExpired or Failure
}

// monitorState is the persisted check state.
type monitorState struct {
	LastBalance *float64  `json:"last_balance"`
	LastCheck   time.Time `json:"last_check"`
}

// overrides are runtime settings changed via owner commands.
// They win over file config and survive restarts.
type overrides struct {
	Threshold     *float64 `json:"threshold,omitempty"`
	CheckInterval *string  `json:"check_interval,omitempty"`
	AutoCheck     *bool    `json:"auto_check,omitempty"`
}

// Plugin monitors an electricity meter balance and notifies subscribers.
type Plugin struct {
	core.PluginBase

	mu   sync.RWMutex
	cfg  Config
	ovr  overrides
	subs *subscriptions

	client portalClient

	state   monitorState
	stateMu sync.Mutex

	// reqCh hands check requests to the single monitor goroutine.
	// Unbuffered on purpose: a send only succeeds while the monitor is
	// idle at its receive, so a request arriving mid-cycle is rejected,
	// never queued behind the running check.
	reqCh chan checkRequest

	// authAlerted dedupes background auth-expired notifications.
	// Touched only by the monitor goroutine.
	authAlerted bool
}
