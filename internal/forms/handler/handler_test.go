package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/ONDC-Official/automation-form-service/internal/catalog"
	"github.com/ONDC-Official/automation-form-service/internal/forms/handler/mocks"
	"github.com/ONDC-Official/automation-form-service/internal/notifier"
	"github.com/ONDC-Official/automation-form-service/internal/platform/metrics"
	"github.com/ONDC-Official/automation-form-service/internal/render"
	"github.com/ONDC-Official/automation-form-service/pkg/testutil"
)

const testBaseURL = "http://localhost:3000"

// newTestCatalog builds a two-form catalog on disk: a dynamic retail/kyc form
// and a static retail/address form.
func newTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "retail/kyc"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "retail/kyc/form.html"),
		[]byte(`<form action="{{.ActionURL}}"></form><script>var d = {{.SubmissionData}};</script>`),
		0o644,
	))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "retail/address"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "retail/address/form.html"),
		[]byte(`<form action="{{.ActionURL}}"></form>`),
		0o644,
	))

	configPath := filepath.Join(dir, "forms.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
domains:
  - name: retail
    version: "1.2.0"
    forms:
      - {name: kyc, url: kyc, path: retail/kyc, type: dynamic}
      - {name: address, url: address, path: retail/address, type: static}
`), 0o644))

	cat, err := catalog.Load(configPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return cat
}

type fixture struct {
	router   chi.Router
	catalog  *catalog.Catalog
	sessions *mocks.MockSessionService
	notifier *mocks.MockNotifier
	health   *mocks.MockHealthChecker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	f := &fixture{
		catalog:  newTestCatalog(t),
		sessions: mocks.NewMockSessionService(ctrl),
		notifier: mocks.NewMockNotifier(ctrl),
		health:   mocks.NewMockHealthChecker(ctrl),
	}

	h := New(
		f.catalog,
		render.NewTemplateRenderer(),
		f.sessions,
		f.notifier,
		f.health,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics.New(prometheus.NewRegistry()),
		Config{BaseURL: testBaseURL, AutoInjectSubmissionURL: true},
	)

	f.router = chi.NewRouter()
	h.Register(f.router)
	return f
}

func TestGetFormRendersDynamicForm(t *testing.T) {
	f := newFixture(t)

	req := testutil.NewRequest(t, http.MethodGet, "/forms/retail/kyc?session_id=s1&flow_id=f1&transaction_id=t1")
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))

	body := rr.Body.String()
	assert.Contains(t, body,
		`action="http://localhost:3000/forms/retail/kyc/submit?flow_id=f1&session_id=s1&transaction_id=t1"`)
	assert.Contains(t, body, `"session_id":"s1"`)
	assert.Contains(t, body, `"flow_id":"f1"`)
	assert.Contains(t, body, `"transaction_id":"t1"`)
}

func TestGetFormServesStaticForm(t *testing.T) {
	f := newFixture(t)

	req := testutil.NewRequest(t, http.MethodGet, "/forms/retail/address?session_id=s1&flow_id=f1&transaction_id=t1")
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Contains(t, rr.Body.String(), "/forms/retail/address/submit?")
}

func TestGetFormUnknownReturns404(t *testing.T) {
	f := newFixture(t)

	req := testutil.NewRequest(t, http.MethodGet, "/forms/retail/unknown")
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusNotFound)
	resp := testutil.UnmarshalResponse[errorResponse](t, rr)
	assert.Equal(t, "Form not found", resp.Error)
}

func TestSubmitMissingIdentifiersReturns400(t *testing.T) {
	f := newFixture(t)

	// No EXPECT calls are registered: any store mutation or notification
	// would fail the test.
	for _, query := range []string{
		"",
		"session_id=s1",
		"session_id=s1&flow_id=f1",
		"flow_id=f1&transaction_id=t1",
	} {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/forms/retail/kyc/submit?"+query, map[string]any{"name": "Alice"})
		rr := testutil.DoRequest(f.router, req)

		testutil.AssertStatus(t, rr, http.StatusBadRequest)
		resp := testutil.UnmarshalResponse[badRequestResponse](t, rr)
		assert.True(t, resp.Error)
		assert.Equal(t, "session_id or flow_id or transaction_id not found in submission url", resp.Message)
	}
}

func TestSubmitUnknownFormReturns404(t *testing.T) {
	f := newFixture(t)

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/forms/retail/unknown/submit?session_id=s1&flow_id=f1&transaction_id=t1",
		map[string]any{"name": "Alice"})
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusNotFound)
	resp := testutil.UnmarshalResponse[errorResponse](t, rr)
	assert.Equal(t, "Form not found", resp.Error)
}

func TestSubmitSuccess(t *testing.T) {
	f := newFixture(t)

	var mergedData map[string]any
	var mergedSubmissionID string

	f.sessions.EXPECT().
		MergeFormSubmission(gomock.Any(), "retail/kyc", gomock.Any(), "t1").
		DoAndReturn(func(_ context.Context, _ string, formData map[string]any, _ string) error {
			mergedData = formData
			mergedSubmissionID, _ = formData["form_submission_id"].(string)
			return nil
		})
	f.sessions.EXPECT().
		RecordSubmissionReceipt(gomock.Any(), "s1", "t1", gomock.Any(), "kyc").
		DoAndReturn(func(_ context.Context, _, _, submissionID, _ string) error {
			assert.Equal(t, mergedSubmissionID, submissionID)
			return nil
		})
	f.notifier.EXPECT().
		Notify(gomock.Any(), "retail",
			notifier.Identifiers{SessionID: "s1", FlowID: "f1", TransactionID: "t1"},
			gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, _ notifier.Identifiers, submissionID string) error {
			assert.Equal(t, mergedSubmissionID, submissionID)
			return nil
		})

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/forms/retail/kyc/submit?session_id=s1&flow_id=f1&transaction_id=t1",
		map[string]any{"name": "Alice"})
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	resp := testutil.UnmarshalResponse[submitResponse](t, rr)
	assert.True(t, resp.Success)
	assert.Equal(t, mergedSubmissionID, resp.SubmissionID)

	assert.Equal(t, "Alice", mergedData["name"])
	assert.NotEmpty(t, mergedSubmissionID)
}

func TestSubmitAcceptsURLEncodedBody(t *testing.T) {
	f := newFixture(t)

	var mergedData map[string]any
	f.sessions.EXPECT().
		MergeFormSubmission(gomock.Any(), "retail/kyc", gomock.Any(), "t1").
		DoAndReturn(func(_ context.Context, _ string, formData map[string]any, _ string) error {
			mergedData = formData
			return nil
		})
	f.sessions.EXPECT().
		RecordSubmissionReceipt(gomock.Any(), "s1", "t1", gomock.Any(), "kyc").
		Return(nil)
	f.notifier.EXPECT().
		Notify(gomock.Any(), "retail", gomock.Any(), gomock.Any()).
		Return(nil)

	form := url.Values{}
	form.Set("name", "Alice")
	form.Set("pan", "ABCDE1234F")
	req := testutil.NewRequest(t, http.MethodPost,
		"/forms/retail/kyc/submit?session_id=s1&flow_id=f1&transaction_id=t1")
	req.Body = io.NopCloser(strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, "Alice", mergedData["name"])
	assert.Equal(t, "ABCDE1234F", mergedData["pan"])
}

func TestSubmitMergeFailureReturns500(t *testing.T) {
	f := newFixture(t)

	f.sessions.EXPECT().
		MergeFormSubmission(gomock.Any(), "retail/kyc", gomock.Any(), "t1").
		Return(errors.New("store write failed"))
	// Neither the receipt nor the notification may run after a failed merge.

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/forms/retail/kyc/submit?session_id=s1&flow_id=f1&transaction_id=t1",
		map[string]any{"name": "Alice"})
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusInternalServerError)
	resp := testutil.UnmarshalResponse[errorResponse](t, rr)
	assert.Equal(t, "Failed to process form submission", resp.Error)
}

func TestSubmitReceiptFailureReturns500(t *testing.T) {
	f := newFixture(t)

	f.sessions.EXPECT().
		MergeFormSubmission(gomock.Any(), "retail/kyc", gomock.Any(), "t1").
		Return(nil)
	f.sessions.EXPECT().
		RecordSubmissionReceipt(gomock.Any(), "s1", "t1", gomock.Any(), "kyc").
		Return(errors.New("session not found"))

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/forms/retail/kyc/submit?session_id=s1&flow_id=f1&transaction_id=t1",
		map[string]any{"name": "Alice"})
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusInternalServerError)
	resp := testutil.UnmarshalResponse[errorResponse](t, rr)
	assert.Equal(t, "Failed to process form submission", resp.Error)
}

func TestSubmitNotificationFailureReturns500(t *testing.T) {
	f := newFixture(t)

	f.sessions.EXPECT().
		MergeFormSubmission(gomock.Any(), "retail/kyc", gomock.Any(), "t1").
		Return(nil)
	f.sessions.EXPECT().
		RecordSubmissionReceipt(gomock.Any(), "s1", "t1", gomock.Any(), "kyc").
		Return(nil)
	f.notifier.EXPECT().
		Notify(gomock.Any(), "retail", gomock.Any(), gomock.Any()).
		Return(errors.New("workflow service unreachable"))

	req := testutil.NewJSONRequest(t, http.MethodPost,
		"/forms/retail/kyc/submit?session_id=s1&flow_id=f1&transaction_id=t1",
		map[string]any{"name": "Alice"})
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusInternalServerError)
	resp := testutil.UnmarshalResponse[errorResponse](t, rr)
	assert.Equal(t, "Failed to process form submission", resp.Error)
}

func TestReloadCatalogReturns204(t *testing.T) {
	f := newFixture(t)

	req := testutil.NewRequest(t, http.MethodPost, "/admin/catalog/reload")
	rr := testutil.DoRequest(f.router, req)

	testutil.AssertStatus(t, rr, http.StatusNoContent)
	assert.Equal(t, 2, f.catalog.Len())
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	f.health.EXPECT().Health(gomock.Any()).Return(nil)
	rr := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	testutil.AssertStatus(t, rr, http.StatusOK)

	f.health.EXPECT().Health(gomock.Any()).Return(errors.New("redis down"))
	rr = testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/healthz"))
	testutil.AssertStatus(t, rr, http.StatusServiceUnavailable)
}
