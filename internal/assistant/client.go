// Package assistant talks to a WordPress-hosted chat bot to draft DAX
// queries. It never touches local project state; callers feed it model
// context and decide what to do with the reply.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultTimeout       = 60 * time.Second
	defaultRefreshAction = "aipkit_get_frontend_chat_nonce"
	chatMessageAction    = "aipkit_frontend_chat_message"
)

var (
	ErrNotConnected = errors.New("assistant is not connected")
	ErrBadConfig    = errors.New("chat page config is incomplete")
	ErrChatFailed   = errors.New("chat request failed")

	dataConfigPattern = regexp.MustCompile(`data-config='(.*?)'`)
	daxFencePattern   = regexp.MustCompile("(?s)```dax\\s*(.*?)```")
	anyFencePattern   = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\\s*(.*?)```")
)

// Config selects the chat endpoint.
type Config struct {
	// PageURL is the public page embedding the chat widget.
	PageURL string
	// NonceRefreshAction overrides the AJAX action used to fetch a fresh
	// nonce after an auth failure.
	NonceRefreshAction string
	Timeout            time.Duration
}

// Client is a cookie-carrying chat session. Connect must succeed before
// Generate is usable.
type Client struct {
	http   *http.Client
	logger *slog.Logger

	pageURL       string
	refreshAction string

	ajaxURL string
	nonce   string
	botID   string
	postID  string

	sessionID        string
	conversationUUID string
}

// New builds a client with its own cookie jar and fresh session ids.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.PageURL == "" {
		return nil, errors.New("assistant page URL is empty")
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	refresh := cfg.NonceRefreshAction
	if refresh == "" {
		refresh = defaultRefreshAction
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		http:             &http.Client{Jar: jar, Timeout: timeout},
		logger:           logger,
		pageURL:          cfg.PageURL,
		refreshAction:    refresh,
		sessionID:        uuid.NewString(),
		conversationUUID: uuid.NewString(),
	}, nil
}

type pageConfig struct {
	AjaxURL string `json:"ajaxUrl"`
	Nonce   string `json:"nonce"`
	BotID   string `json:"botId"`
	PostID  string `json:"postId"`
}

// Connect fetches the chat page and extracts the widget config embedded in
// its data-config attribute.
func (c *Client) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.pageURL, nil)
	if err != nil {
		return fmt.Errorf("building page request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetching chat page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching chat page: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading chat page: %w", err)
	}

	m := dataConfigPattern.FindSubmatch(body)
	if m == nil {
		return fmt.Errorf("%w: no data-config attribute on %s", ErrBadConfig, c.pageURL)
	}
	raw := strings.ReplaceAll(string(m[1]), "&quot;", `"`)
	raw = strings.ReplaceAll(raw, "&amp;", "&")

	var cfg pageConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return fmt.Errorf("parsing data-config: %w", err)
	}
	if cfg.AjaxURL == "" || cfg.Nonce == "" || cfg.BotID == "" {
		return fmt.Errorf("%w: need ajaxUrl, nonce, and botId", ErrBadConfig)
	}
	c.ajaxURL = cfg.AjaxURL
	c.nonce = cfg.Nonce
	c.botID = cfg.BotID
	c.postID = cfg.PostID
	c.logger.Debug("assistant connected", "ajax_url", cfg.AjaxURL, "bot_id", cfg.BotID)
	return nil
}

// Connected reports whether Connect has populated the widget config.
func (c *Client) Connected() bool { return c.ajaxURL != "" }

type ajaxResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Reply string `json:"reply"`
		Nonce string `json:"nonce"`
	} `json:"data"`
}

// Generate sends one chat message and returns the cleaned reply. An auth
// failure (401/403) refreshes the nonce and retries the request exactly
// once.
func (c *Client) Generate(ctx context.Context, message string) (string, error) {
	if !c.Connected() {
		return "", ErrNotConnected
	}

	reply, status, err := c.postMessage(ctx, message)
	if err == nil {
		return CleanReply(reply), nil
	}
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		return "", err
	}

	c.logger.Debug("assistant nonce rejected, refreshing", "status", status)
	if err := c.refreshNonce(ctx); err != nil {
		return "", err
	}
	reply, _, err = c.postMessage(ctx, message)
	if err != nil {
		return "", err
	}
	return CleanReply(reply), nil
}

func (c *Client) postMessage(ctx context.Context, message string) (string, int, error) {
	form := url.Values{
		"action":            {chatMessageAction},
		"_ajax_nonce":       {c.nonce},
		"bot_id":            {c.botID},
		"session_id":        {c.sessionID},
		"conversation_uuid": {c.conversationUUID},
		"post_id":           {c.postID},
		"message":           {message},
	}
	resp, err := c.postForm(ctx, form)
	if err != nil {
		return "", 0, err
	}
	if resp.status != http.StatusOK {
		return "", resp.status, fmt.Errorf("%w: status %d", ErrChatFailed, resp.status)
	}
	if !resp.payload.Success {
		return "", resp.status, fmt.Errorf("%w: server reported failure", ErrChatFailed)
	}
	return resp.payload.Data.Reply, resp.status, nil
}

func (c *Client) refreshNonce(ctx context.Context) error {
	form := url.Values{
		"action": {c.refreshAction},
		"bot_id": {c.botID},
	}
	resp, err := c.postForm(ctx, form)
	if err != nil {
		return err
	}
	if resp.status != http.StatusOK || !resp.payload.Success || resp.payload.Data.Nonce == "" {
		return fmt.Errorf("%w: nonce refresh rejected", ErrChatFailed)
	}
	c.nonce = resp.payload.Data.Nonce
	return nil
}

type formResult struct {
	status  int
	payload ajaxResponse
}

func (c *Client) postForm(ctx context.Context, form url.Values) (*formResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.ajaxURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending chat request: %w", err)
	}
	defer resp.Body.Close()

	result := &formResult{status: resp.StatusCode}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading chat response: %w", err)
	}
	if resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(body, &result.payload); err != nil {
			return nil, fmt.Errorf("parsing chat response: %w", err)
		}
	}
	return result, nil
}

// CleanReply extracts the DAX payload from a chat reply: a fenced ```dax
// block wins, then any fenced block, then the trimmed text.
func CleanReply(reply string) string {
	if m := daxFencePattern.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := anyFencePattern.FindStringSubmatch(reply); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(reply)
}
