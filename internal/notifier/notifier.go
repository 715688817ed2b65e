// Package notifier posts submission events to the downstream workflow (mock)
// service.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/ONDC-Official/automation-form-service/internal/session"
)

// Identifiers are the request-scoped ids carried on every submission.
type Identifiers struct {
	SessionID     string `json:"session_id"`
	FlowID        string `json:"flow_id"`
	TransactionID string `json:"transaction_id"`
}

// SessionFetcher supplies the session document that carries the domain and
// version metadata populated by the upstream flow.
type SessionFetcher interface {
	Fetch(ctx context.Context, key string) (session.Document, error)
}

// notifyTimeout bounds the one unbounded external dependency in the submit
// path; store calls fail fast on their own.
const notifyTimeout = 10 * time.Second

// Notifier builds the workflow target URL from session metadata and posts the
// submission event. Errors propagate to the caller; the dispatcher treats any
// of them as a submission failure.
type Notifier struct {
	baseURL  string
	sessions SessionFetcher
	client   *http.Client
	logger   *slog.Logger
}

func New(baseURL string, sessions SessionFetcher, logger *slog.Logger) *Notifier {
	return &Notifier{
		baseURL:  baseURL,
		sessions: sessions,
		client:   &http.Client{Timeout: notifyTimeout},
		logger:   logger,
	}
}

// Notify posts the submission event for the given ids. The target URL is
// derived from the session document's domain/version metadata, not from the
// request's domain parameter.
func (n *Notifier) Notify(ctx context.Context, domain string, ids Identifiers, submissionID string) error {
	target, err := n.buildTargetURL(ctx, ids.SessionID)
	if err != nil {
		return err
	}

	payload := struct {
		Identifiers
		Inputs          map[string]string `json:"inputs"`
		JSONPathChanges map[string]any    `json:"json_path_changes"`
	}{
		Identifiers:     ids,
		Inputs:          map[string]string{"submission_id": submissionID},
		JSONPathChanges: map[string]any{},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	n.logger.InfoContext(ctx, "notifying workflow service",
		"url", target,
		"domain", domain,
		"transaction_id", ids.TransactionID,
		"submission_id", submissionID,
	)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notification POST failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notification rejected with status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}

// buildTargetURL resolves the workflow endpoint from the session document. A
// loopback mock host runs without the version path segment.
func (n *Notifier) buildTargetURL(ctx context.Context, sessionID string) (string, error) {
	doc, err := n.sessions.Fetch(ctx, sessionID)
	if err != nil {
		return "", err
	}

	if n.isLoopback() {
		return fmt.Sprintf("%s/%s/flows/proceed", n.baseURL, doc.Domain()), nil
	}
	return fmt.Sprintf("%s/%s/%s/flows/proceed", n.baseURL, doc.Domain(), doc.Version()), nil
}

func (n *Notifier) isLoopback() bool {
	u, err := url.Parse(n.baseURL)
	if err != nil {
		return false
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
