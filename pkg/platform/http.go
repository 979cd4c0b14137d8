package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/NicolasHaas/ticketbot/pkg/errs"
	"github.com/NicolasHaas/ticketbot/pkg/model"
	"github.com/NicolasHaas/ticketbot/pkg/version"
)

const (
	defaultTimeout = 30 * time.Second
	maxResponse    = 4 << 20
)

// apiResponse is the envelope every platform endpoint answers with.
type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Trace   string          `json:"trace"`
	Data    json.RawMessage `json:"data"`
}

var _ Client = (*HTTPClient)(nil)

// HTTPClient implements Client over the platform's JSON API.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a client for the API rooted at baseURL.
func NewHTTPClient(baseURL string) *HTTPClient {
	jar, _ := cookiejar.New(nil) // only fails with a non-nil options argument
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout, Jar: jar},
	}
}

// NewHTTPFactory returns a Factory producing HTTPClients for baseURL.
func NewHTTPFactory(baseURL string) Factory {
	return func() Client { return NewHTTPClient(baseURL) }
}

func (c *HTTPClient) call(ctx context.Context, method, path string, payload, out any) (string, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return "", fmt.Errorf("platform: marshal %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return "", fmt.Errorf("platform: request %s: %w", path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errs.Wrap(errs.KindExternalAPI, "the learning platform is unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return "", errs.Wrap(errs.KindExternalAPI, "failed to read the platform response", err)
	}

	var api apiResponse
	if err := json.Unmarshal(data, &api); err != nil {
		slog.Debug("platform response not json", "path", path, "status", resp.StatusCode)
		return "", errs.Wrap(errs.KindExternalAPI,
			fmt.Sprintf("unexpected platform response (HTTP %d)", resp.StatusCode), err)
	}
	if !api.Success {
		msg := api.Message
		if msg == "" {
			msg = "unknown platform error"
		}
		return "", errs.WithTrace(msg, api.Trace)
	}

	if out != nil && len(api.Data) > 0 && string(api.Data) != "null" {
		if err := json.Unmarshal(api.Data, out); err != nil {
			return "", errs.Wrap(errs.KindExternalAPI, "malformed platform data", err)
		}
	}
	return api.Message, nil
}

func (c *HTTPClient) Login(ctx context.Context, id, password string) (model.Account, error) {
	var acct model.Account
	_, err := c.call(ctx, http.MethodPost, "/login", map[string]string{"id": id, "password": password}, &acct)
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) && e.Cause == nil {
			// The platform answered and refused the credentials.
			return model.Account{}, &errs.Error{Kind: errs.KindAuth, Message: e.Message, Trace: e.Trace}
		}
		return model.Account{}, err
	}
	return acct, nil
}

func (c *HTTPClient) Classes(ctx context.Context) ([]model.Named, error) {
	var out []model.Named
	_, err := c.call(ctx, http.MethodGet, "/classes", nil, &out)
	return out, err
}

func (c *HTTPClient) Folders(ctx context.Context) ([]model.Named, error) {
	var out []model.Named
	_, err := c.call(ctx, http.MethodGet, "/folders", nil, &out)
	return out, err
}

func (c *HTTPClient) SetsFromClass(ctx context.Context, classID int) ([]model.Named, error) {
	var out []model.Named
	_, err := c.call(ctx, http.MethodGet, fmt.Sprintf("/classes/%d/sets", classID), nil, &out)
	return out, err
}

func (c *HTTPClient) SetsFromFolder(ctx context.Context, folder string) ([]model.Named, error) {
	var out []model.Named
	_, err := c.call(ctx, http.MethodGet, "/folders/"+url.PathEscape(folder)+"/sets", nil, &out)
	return out, err
}

func (c *HTTPClient) SetClass(ctx context.Context, classID int) (model.Class, error) {
	var out model.Class
	_, err := c.call(ctx, http.MethodPost, "/class", map[string]int{"id": classID}, &out)
	return out, err
}

func (c *HTTPClient) SetSet(ctx context.Context, setID int) (model.Set, error) {
	var wire struct {
		ID        int    `json:"id"`
		Name      string `json:"name"`
		Type      string `json:"type"`
		CardCount int    `json:"card_count"`
	}
	if _, err := c.call(ctx, http.MethodPost, "/set", map[string]int{"id": setID}, &wire); err != nil {
		return model.Set{}, err
	}
	return model.Set{ID: wire.ID, Name: wire.Name, Type: model.ParseSetType(wire.Type), CardCount: wire.CardCount}, nil
}

func (c *HTTPClient) LearnAll(ctx context.Context, kind model.LearningKind) (Progress, error) {
	var out Progress
	_, err := c.call(ctx, http.MethodPost, "/learn", map[string]string{"kind": kind.String()}, &out)
	return out, err
}

func (c *HTTPClient) AddGameScore(ctx context.Context, activity model.Activity, score int, autoSubmit bool) (GameResult, error) {
	payload := struct {
		Activity   string `json:"activity"`
		Score      int    `json:"score"`
		AutoSubmit bool   `json:"auto_submit"`
	}{activity.String(), score, autoSubmit}

	var data struct {
		Rank Rank `json:"rank"`
	}
	msg, err := c.call(ctx, http.MethodPost, "/game-score", payload, &data)
	if err != nil {
		return GameResult{}, err
	}
	return GameResult{Message: msg, Rank: data.Rank}, nil
}

func (c *HTTPClient) PostTest(ctx context.Context) (string, error) {
	return c.call(ctx, http.MethodPost, "/test", struct{}{}, nil)
}

func (c *HTTPClient) Total(ctx context.Context) (model.Totals, error) {
	var out model.Totals
	_, err := c.call(ctx, http.MethodGet, "/total", nil, &out)
	return out, err
}
