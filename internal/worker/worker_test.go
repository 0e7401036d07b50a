package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/usda-monitor/pollengine/internal/alert"
	"github.com/usda-monitor/pollengine/internal/clock"
	"github.com/usda-monitor/pollengine/internal/domain"
	"github.com/usda-monitor/pollengine/internal/fetch"
	"github.com/usda-monitor/pollengine/internal/notify"
	"github.com/usda-monitor/pollengine/internal/registry"
)

type fakeFetcher struct {
	responses map[string]string // url -> body
}

func (f *fakeFetcher) Get(ctx context.Context, url string) (*fetch.Result, error) {
	body, ok := f.responses[url]
	if !ok {
		return &fetch.Result{Body: []byte("[]"), ContentType: "application/json", StatusCode: 200}, nil
	}
	return &fetch.Result{Body: []byte(body), ContentType: "application/json", StatusCode: 200}, nil
}

type fakeLocker struct {
	busy bool
}

func (f *fakeLocker) TryAcquire(ctx context.Context, reportID string) (bool, error) {
	return !f.busy, nil
}
func (f *fakeLocker) Release(ctx context.Context, reportID string) error { return nil }

type fakeStore struct {
	mu         sync.Mutex
	runs       []*domain.ReportRun
	events     []*domain.ReportRunEvent
	versions   []domain.ReportVersion
	nextRunID  int64
	nextVerID  int64
	alertState map[string]domain.AlertState
	recipients map[string][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		alertState: map[string]domain.AlertState{},
		recipients: map[string][]string{},
	}
}

func (s *fakeStore) CreateRun(ctx context.Context, run *domain.ReportRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRunID++
	run.ID = s.nextRunID
	s.runs = append(s.runs, run)
	return nil
}

func (s *fakeStore) FinishRun(ctx context.Context, run *domain.ReportRun) error { return nil }

func (s *fakeStore) AppendRunEvent(ctx context.Context, event *domain.ReportRunEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *fakeStore) VersionsForDate(ctx context.Context, reportID string, reportDate time.Time) ([]domain.ReportVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ReportVersion
	for _, v := range s.versions {
		if v.ReportID == reportID && v.ReportDate.Equal(reportDate) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertVersion(ctx context.Context, version *domain.ReportVersion) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.versions {
		if v.ReportID == version.ReportID && v.ReportDate.Equal(version.ReportDate) && v.PayloadHash == version.PayloadHash {
			return false, nil
		}
	}
	s.nextVerID++
	version.ID = s.nextVerID
	s.versions = append(s.versions, *version)
	return true, nil
}

func (s *fakeStore) MergeVersionFields(ctx context.Context, versionID int64, newFields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.versions {
		if s.versions[i].ID == versionID {
			if s.versions[i].ParsedFields == nil {
				s.versions[i].ParsedFields = map[string]any{}
			}
			for k, v := range newFields {
				if existing, ok := s.versions[i].ParsedFields[k]; !ok || existing == nil {
					s.versions[i].ParsedFields[k] = v
				}
			}
		}
	}
	return nil
}

func (s *fakeStore) GetAlertState(ctx context.Context, reportID string) (domain.AlertState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.alertState[reportID], nil
}

func (s *fakeStore) UpsertAlertState(ctx context.Context, state domain.AlertState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alertState[state.ReportID] = state
	return nil
}

func (s *fakeStore) ActiveRecipientEmails(ctx context.Context, reportID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recipients[reportID], nil
}

func (s *fakeStore) ReportOverrides(ctx context.Context) ([]domain.ReportConfig, error) { return nil, nil }
func (s *fakeStore) UpsertReportOverride(ctx context.Context, cfg domain.ReportConfig) error {
	return nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	reports []notify.ReportPayload
}

func (n *fakeNotifier) SendReport(ctx context.Context, recipients []string, payload notify.ReportPayload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reports = append(n.reports, payload)
	return nil
}
func (n *fakeNotifier) SendAlert(ctx context.Context, payload notify.AlertPayload) error { return nil }

func cashCfg() domain.ReportConfig {
	return domain.ReportConfig{
		ReportID:             registry.ReportPK600MorningCash,
		Name:                 "PK600 Morning Cash",
		Endpoints:            []domain.Endpoint{{ReportNumber: 2674, ReportPath: "National Volume and Price Data"}},
		DateSearchWindowDays: 1,
		Schema: domain.ReportSchema{
			ReportID:       registry.ReportPK600MorningCash,
			RequiredFields: []string{"head_count", "wtd_avg"},
			SelectRule:     domain.SelectionRule{Type: domain.SelectDateMatch},
		},
	}
}

func newTestWorker(fetcher *fakeFetcher, st *fakeStore, locker *fakeLocker, notifier *fakeNotifier) *Worker {
	clk := clock.New(time.UTC)
	coordinator := alert.New(st, notifier, 3)
	return New(fetcher, st, locker, clk, coordinator, notifier, registry.APIBase)
}

func TestRunSkipsWhenLockBusy(t *testing.T) {
	st := newFakeStore()
	w := newTestWorker(&fakeFetcher{}, st, &fakeLocker{busy: true}, &fakeNotifier{})

	ok, err := w.Run(context.Background(), cashCfg())
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, st.runs)
}

func TestRunPublishesNewVersionAndNotifiesRecipients(t *testing.T) {
	st := newFakeStore()
	st.recipients[registry.ReportPK600MorningCash] = []string{"recipient@example.com"}
	notifier := &fakeNotifier{}

	now := time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)
	dateStr := now.Format("01/02/2006")
	cfg := cashCfg()
	url := cfg.Endpoints[0].BuildURL(registry.APIBase, dateStr)
	body := fmt.Sprintf(`[{"report_date": %q, "head_count": 120, "wtd_avg": 74.50}]`, dateStr)
	fetcher := &fakeFetcher{responses: map[string]string{url: body}}

	w := newTestWorker(fetcher, st, &fakeLocker{}, notifier)

	ok, err := w.run(context.Background(), cfg, now)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, st.versions, 1)
	require.Equal(t, domain.RunStatePublishedNew, st.runs[0].State)
	require.Len(t, notifier.reports, 1)
}

func TestRunMarksNoChangeWhenHashMatchesExisting(t *testing.T) {
	st := newFakeStore()
	now := time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)
	dateStr := now.Format("01/02/2006")
	cfg := cashCfg()
	url := cfg.Endpoints[0].BuildURL(registry.APIBase, dateStr)
	body := fmt.Sprintf(`[{"report_date": %q, "head_count": 120, "wtd_avg": 74.50}]`, dateStr)
	fetcher := &fakeFetcher{responses: map[string]string{url: body}}

	w := newTestWorker(fetcher, st, &fakeLocker{}, &fakeNotifier{})

	_, err := w.run(context.Background(), cfg, now)
	require.NoError(t, err)
	require.Len(t, st.versions, 1)

	ok, err := w.run(context.Background(), cfg, now)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, st.versions, 1, "second run with identical payload must not create a sibling version")
	require.Equal(t, domain.RunStatePublishedNoChange, st.runs[len(st.runs)-1].State)
}

func TestRunRecordsParseErrorWhenRowIndexOutOfRange(t *testing.T) {
	st := newFakeStore()
	now := time.Date(2026, 2, 9, 10, 0, 0, 0, time.UTC)
	cfg := domain.ReportConfig{
		ReportID:             "CUSTOM_ROW_INDEX_REPORT",
		Name:                 "Custom Row Index Report",
		Endpoints:            []domain.Endpoint{{ReportNumber: 1, ReportPath: "Some Path"}},
		DateSearchWindowDays: 1,
		Schema: domain.ReportSchema{
			ReportID:       "CUSTOM_ROW_INDEX_REPORT",
			RequiredFields: []string{"value"},
			SelectRule:     domain.SelectionRule{Type: domain.SelectRowIndex, Index: 5},
		},
	}
	dateStr := now.Format("01/02/2006")
	url := cfg.Endpoints[0].BuildURL(registry.APIBase, dateStr)
	// Non-empty, but with only one row and an index rule requesting row 5:
	// hasPublished is true (the array isn't empty) and extract then fails
	// because the requested row index doesn't exist.
	body := `[{"value": 1}]`
	fetcher := &fakeFetcher{responses: map[string]string{url: body}}

	w := newTestWorker(fetcher, st, &fakeLocker{}, &fakeNotifier{})

	ok, err := w.run(context.Background(), cfg, now)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, domain.RunStateErrorParse, st.runs[0].State)
	require.Equal(t, 1, st.alertState[cfg.ReportID].ConsecutiveFailures)
}
