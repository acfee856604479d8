// Package blobtier is the Messaging Adapter: the minimal client to the blob
// tier (the messaging backend repurposed as object storage). It wraps
// per-bot *tgbotapi.BotAPI instances and classifies transient vs terminal
// failures for the retry package, per spec.md §6.
package blobtier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Result is what a successful upload returns: the blob tier's opaque blob
// identifier (used for future fetch) and its message identifier (used for
// future delete).
type Result struct {
	BlobID string
	MsgID  int
}

// Client is the Messaging Adapter. One Client serves every bot in the
// roster; per-token *tgbotapi.BotAPI handles are created lazily and cached,
// mirroring the teacher's bot.Pool but keyed by token instead of a
// round-robin index, since chunk workers already know which bot they were
// assigned.
type Client struct {
	apiURL string

	mu   sync.Mutex
	bots map[string]*tgbotapi.BotAPI

	downloadClient *http.Client
}

// New builds a Client against the given blob-tier API base URL (empty
// string uses the library default, api.telegram.org).
func New(apiURL string) *Client {
	return &Client{
		apiURL: apiURL,
		bots:   make(map[string]*tgbotapi.BotAPI),
		downloadClient: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 50,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *Client) botFor(token string) (*tgbotapi.BotAPI, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b, ok := c.bots[token]; ok {
		return b, nil
	}

	httpClient := &http.Client{
		Timeout: 10 * time.Minute,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	endpoint := tgbotapi.APIEndpoint
	if c.apiURL != "" {
		endpoint = c.apiURL + "/bot%s/%s"
	}

	b, err := tgbotapi.NewBotAPIWithClient(token, endpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("blobtier: bot init failed: %w", err)
	}
	c.bots[token] = b
	return b, nil
}

// Upload posts stream as a document named filename into chat, authenticated
// as the bot identified by token. Returns the blob tier's blob/message ids.
func (c *Client) Upload(ctx context.Context, token string, chat int64, filename string, stream io.Reader) (Result, error) {
	bot, err := c.botFor(token)
	if err != nil {
		return Result{}, err
	}

	doc := tgbotapi.NewDocument(chat, tgbotapi.FileReader{Name: filename, Reader: stream})

	msg, err := bot.Send(doc)
	if err != nil {
		return Result{}, err
	}
	if msg.Document == nil {
		return Result{}, fmt.Errorf("blobtier: upload response carried no document")
	}

	return Result{BlobID: msg.Document.FileID, MsgID: msg.MessageID}, nil
}

// ResolveDownload turns an opaque blob id into a short-lived download URL.
func (c *Client) ResolveDownload(ctx context.Context, token, blobID string) (string, error) {
	bot, err := c.botFor(token)
	if err != nil {
		return "", err
	}

	file, err := bot.GetFile(tgbotapi.FileConfig{FileID: blobID})
	if err != nil {
		return "", err
	}

	if c.apiURL != "" {
		return fmt.Sprintf("%s/file/bot%s/%s", c.apiURL, bot.Token, file.FilePath), nil
	}
	return file.Link(bot.Token), nil
}

// StreamDownload opens the byte stream at url. Callers must Close the
// returned ReadCloser.
func (c *Client) StreamDownload(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// Delete removes a previously uploaded document by message id.
func (c *Client) Delete(ctx context.Context, token string, chat int64, msgID int) error {
	bot, err := c.botFor(token)
	if err != nil {
		return err
	}

	_, err = bot.Request(tgbotapi.NewDeleteMessage(chat, msgID))
	return err
}

// StatusError wraps a non-2xx HTTP response from the blob tier so callers
// can classify it as retryable (429/5xx) or terminal.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("blobtier: unexpected status %d", e.StatusCode)
}

// Retryable reports whether err should be retried under the spec's
// classification: network/timeout errors, HTTP 429, and HTTP 5xx are
// retryable; everything else is terminal.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) {
		return tgErr.Code == http.StatusTooManyRequests || tgErr.Code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := err.Error()
	for _, transient := range []string{"timeout", "Too Many Requests", "connection reset", "EOF", "connection refused"} {
		if strings.Contains(msg, transient) {
			return true
		}
	}
	return false
}
