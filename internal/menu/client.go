package menu

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"little-lemon/internal/config"

	"github.com/PuerkitoBio/goquery"
	"github.com/golang-jwt/jwt/v5"
)

// Fetcher retrieves the canonical menu from a remote source.
type Fetcher interface {
	FetchMenu(ctx context.Context) ([]Item, error)
}

// sourceItem is one record of the remote payload.
type sourceItem struct {
	Name        string          `json:"name"`
	Price       json.RawMessage `json:"price"`
	Description string          `json:"description"`
	Image       string          `json:"image"`
	Category    string          `json:"category"`
}

// sourceResponse is the top-level structure of the menu document.
type sourceResponse struct {
	Menu *[]sourceItem `json:"menu"`
}

// menuClient is the HTTP implementation of Fetcher.
type menuClient struct {
	httpClient *http.Client
	url        string
	apiKey     string
}

// NewClient creates a new menu API client.
func NewClient(cfg *config.Config) Fetcher {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = config.DefaultFetchTimeout
	}
	return &menuClient{
		httpClient: &http.Client{Timeout: timeout},
		url:        cfg.MenuAPIURL,
		apiKey:     cfg.MenuAPIKey,
	}
}

// FetchMenu performs a single GET of the menu document and normalizes it.
// It does not retry.
func (c *menuClient) FetchMenu(ctx context.Context) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %w", ErrNetwork, err)
	}
	req.Header.Set("Accept", "application/json")

	if c.apiKey != "" {
		token, err := signToken(c.apiKey)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to sign request: %w", ErrNetwork, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to execute request: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: menu api error: status %d", ErrNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrNetwork, err)
	}

	return ParseMenu(body)
}

// ParseMenu maps a menu document into items. IDs are 1-based positions in
// the menu array.
func ParseMenu(body []byte) ([]Item, error) {
	var doc sourceResponse
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %w", ErrParse, err)
	}
	if doc.Menu == nil {
		return nil, fmt.Errorf("%w: response has no menu array", ErrParse)
	}

	items := make([]Item, 0, len(*doc.Menu))
	for i, src := range *doc.Menu {
		price, err := priceString(src.Price)
		if err != nil {
			return nil, fmt.Errorf("%w: item %d (%q): %w", ErrParse, i+1, src.Name, err)
		}
		items = append(items, Item{
			ID:          i + 1,
			Name:        strings.TrimSpace(src.Name),
			Price:       price,
			Description: plainText(src.Description),
			Image:       strings.TrimSpace(src.Image),
			Category:    strings.TrimSpace(src.Category),
		})
	}
	return items, nil
}

// priceString converts a JSON number or string into its string form.
// Numbers use the shortest decimal representation.
func priceString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", fmt.Errorf("missing price")
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid price: %w", err)
		}
		return s, nil
	}

	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return "", fmt.Errorf("invalid price %s", raw)
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// plainText strips markup, decodes entities and collapses whitespace in a
// description.
func plainText(s string) string {
	if strings.ContainsAny(s, "<&") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

// signToken generates a short-lived JWT from an "id:hexsecret" key.
func signToken(apiKey string) (string, error) {
	id, secretHex, ok := strings.Cut(apiKey, ":")
	if !ok || id == "" || secretHex == "" {
		return "", fmt.Errorf("invalid api key format: expected id:secret")
	}

	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return "", fmt.Errorf("failed to decode secret hex: %w", err)
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(5 * time.Minute)),
	})
	token.Header["kid"] = id

	return token.SignedString(secret)
}
