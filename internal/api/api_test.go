package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"interview-insights-go/internal/audio"
	"interview-insights-go/internal/extractor"
	"interview-insights-go/internal/jobstore"
	"interview-insights-go/internal/logger"
	"interview-insights-go/internal/notify"
	"interview-insights-go/internal/pipeline"
	"interview-insights-go/internal/records"
	"interview-insights-go/internal/storage"
	"interview-insights-go/internal/types"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeRunner struct {
	mu     sync.Mutex
	inputs []pipeline.Input
	res    types.JobResult
	err    error
	block  chan struct{}
	ctxs   chan context.Context
}

func (f *fakeRunner) Run(ctx context.Context, in pipeline.Input) (types.JobResult, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	if f.ctxs != nil {
		f.ctxs <- ctx
	}
	if f.block != nil {
		<-f.block
	}
	return f.res, f.err
}

type fakeRecords struct {
	subjectFilters []records.SubjectFilter
	sessionFilters []records.SessionFilter
	subjects       []types.Subject
	getErr         error
	created        []records.SubjectInput
	updates        map[string]records.SubjectUpdate
	archived       []string
}

func (f *fakeRecords) ListSubjects(_ context.Context, sf records.SubjectFilter) ([]types.Subject, error) {
	f.subjectFilters = append(f.subjectFilters, sf)
	return f.subjects, nil
}

func (f *fakeRecords) GetSubject(_ context.Context, id string) (types.Subject, error) {
	if f.getErr != nil {
		return types.Subject{}, f.getErr
	}
	return types.Subject{ID: id, Name: "김철수", Category: types.CategoryStaff, Status: types.StatusEmployed}, nil
}

func (f *fakeRecords) CreateSubject(_ context.Context, in records.SubjectInput) (types.Subject, error) {
	if err := in.Validate(); err != nil {
		return types.Subject{}, err
	}
	f.created = append(f.created, in)
	return types.Subject{ID: "new", Name: in.Name, Category: in.Category, Status: in.Category.DefaultStatus()}, nil
}

func (f *fakeRecords) UpdateSubject(_ context.Context, id string, u records.SubjectUpdate) error {
	if u.Status != nil && !types.ValidStatus(*u.Status) {
		return records.ErrInvalidInput
	}
	if f.updates == nil {
		f.updates = map[string]records.SubjectUpdate{}
	}
	f.updates[id] = u
	return nil
}

func (f *fakeRecords) ListSessions(_ context.Context, sf records.SessionFilter) ([]types.Session, error) {
	f.sessionFilters = append(f.sessionFilters, sf)
	return []types.Session{{ID: "s1", Title: "김철수_20250301", Date: "2025-03-01"}}, nil
}

func (f *fakeRecords) ArchiveSession(_ context.Context, id string) error {
	f.archived = append(f.archived, id)
	return nil
}

type fakeIssuer struct{ names []string }

func (f *fakeIssuer) IssueCredential(_ context.Context, names []string, ttl time.Duration) (storage.Credential, error) {
	f.names = names
	cred := storage.Credential{ExpiresAt: time.Now().Add(ttl)}
	for _, n := range names {
		cred.Targets = append(cred.Targets, storage.UploadTarget{Name: n, UploadURL: "https://put/" + n, FetchURL: "https://get/" + n})
	}
	return cred, nil
}

type fakeNormalizer struct{ segments []audio.Segment }

func (f fakeNormalizer) Normalize(context.Context, []byte, string) ([]audio.Segment, error) {
	return f.segments, nil
}

type fakeUploader struct{ jobID string }

func (f *fakeUploader) UploadSegments(_ context.Context, jobID string, segs []audio.Segment) ([]string, error) {
	f.jobID = jobID
	urls := make([]string, len(segs))
	for i := range segs {
		urls[i] = "https://get/" + jobID + "/" + string(rune('a'+i))
	}
	return urls, nil
}

type fakeChat struct{ question string }

func (f *fakeChat) Chat(_ context.Context, q string, _ extractor.ChatContext, _ []extractor.Message) (string, error) {
	f.question = q
	return "답변입니다", nil
}

type fakeBot struct{ got []notify.Update }

func (f *fakeBot) Handle(_ context.Context, u notify.Update) error {
	f.got = append(f.got, u)
	return errors.New("telegram down")
}

type fixture struct {
	srv     http.Handler
	jobs    *jobstore.MemoryStore
	runner  *fakeRunner
	records *fakeRecords
	issuer  *fakeIssuer
	upl     *fakeUploader
	chat    *fakeChat
	bot     *fakeBot
}

func newFixture(t *testing.T, mutate func(*Deps, *Options)) *fixture {
	t.Helper()
	f := &fixture{
		jobs:    jobstore.NewMemoryStore(),
		runner:  &fakeRunner{res: types.JobResult{Summary: "요약", RecordURL: "https://notion.so/x"}},
		records: &fakeRecords{},
		issuer:  &fakeIssuer{},
		upl:     &fakeUploader{},
		chat:    &fakeChat{},
		bot:     &fakeBot{},
	}
	deps := Deps{
		Runner:     f.runner,
		Jobs:       f.jobs,
		Records:    f.records,
		Issuer:     f.issuer,
		Normalizer: fakeNormalizer{segments: []audio.Segment{{Index: 0, Total: 2, Ext: "wav", Samples: 16000}, {Index: 1, Total: 2, Ext: "wav", Samples: 8000}}},
		Uploader:   f.upl,
		Chat:       f.chat,
		Bot:        f.bot,
	}
	opts := Options{Budget: time.Second, RecentLimit: 7}
	if mutate != nil {
		mutate(&deps, &opts)
	}
	f.srv = NewServer(deps, opts, logger.Discard()).Handler()
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

// TestStatusEndpoint verifies 400, 404 and the job JSON.
func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t, nil)

	if rec := f.do(http.MethodGet, "/api/interview/status", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing jobId status = %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/api/interview/status?jobId=nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown job status = %d", rec.Code)
	}

	stage := types.StageAnalyzing
	label := "AI 분석 중..."
	if _, err := f.jobs.Write(context.Background(), "j1", types.JobUpdate{Stage: &stage, ProgressLabel: &label}); err != nil {
		t.Fatal(err)
	}
	rec := f.do(http.MethodGet, "/api/interview/status?jobId=j1", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("status = %d headers = %v", rec.Code, rec.Header())
	}
	body := decode(t, rec)
	if body["id"] != "j1" || body["status"] != "analyzing" || body["step"] != label {
		t.Fatalf("body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("request id header missing")
	}
}

// TestProcessSuccess verifies a job id is generated and the result returned.
func TestProcessSuccess(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/interview/process", `{"chunkUrls":["https://blob/0.wav"],"ext":"wav","personId":"p-1","duration":61}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	body := decode(t, rec)
	result := body["result"].(map[string]any)
	if result["summary"] != "요약" || result["notionUrl"] != "https://notion.so/x" {
		t.Fatalf("body = %v", body)
	}
	in := f.runner.inputs[0]
	if in.JobID == "" || body["jobId"] != in.JobID || in.DurationSeconds != 61 || in.SubjectID != "p-1" {
		t.Fatalf("runner input = %+v", in)
	}
}

// TestProcessValidation verifies bad input is rejected before the pipeline starts.
func TestProcessValidation(t *testing.T) {
	f := newFixture(t, nil)

	for _, body := range []string{`{}`, `{"chunkUrls":["u"]}`, `not json`} {
		if rec := f.do(http.MethodPost, "/api/interview/process", body); rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d", body, rec.Code)
		}
	}
	if len(f.runner.inputs) != 0 {
		t.Fatalf("runner called %d times", len(f.runner.inputs))
	}
}

// TestProcessProviderFailure verifies a pipeline failure surfaces as 500 with diagnostics.
func TestProcessProviderFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.err = &pipeline.StageError{
		Stage: types.StageTranscribing,
		Err:   &types.ProviderError{Provider: "whisper", Kind: types.KindStatus, StatusCode: 503, Code: "overloaded", Message: "busy"},
	}

	rec := f.do(http.MethodPost, "/api/interview/process", `{"chunkUrls":["u"],"personId":"p","jobId":"job-9"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	detail := body["detail"].(map[string]any)
	if body["jobId"] != "job-9" || detail["status"] != float64(503) || detail["code"] != "overloaded" {
		t.Fatalf("body = %v", body)
	}
	if !strings.Contains(body["error"].(string), "busy") {
		t.Fatalf("error = %v", body["error"])
	}
}

// TestProcessSurvivesClientDisconnect verifies the run is not cancelled with the request.
func TestProcessSurvivesClientDisconnect(t *testing.T) {
	f := newFixture(t, nil)
	f.runner.block = make(chan struct{})
	f.runner.ctxs = make(chan context.Context, 1)

	reqCtx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/interview/process", strings.NewReader(`{"chunkUrls":["u"],"personId":"p","jobId":"j"}`)).WithContext(reqCtx)
	req.Header.Set("Content-Type", "application/json")

	finished := make(chan struct{})
	go func() {
		f.srv.ServeHTTP(httptest.NewRecorder(), req)
		close(finished)
	}()

	runCtx := <-f.runner.ctxs
	cancel()
	<-finished

	if runCtx.Err() != nil {
		t.Fatalf("pipeline context cancelled with request: %v", runCtx.Err())
	}
	if _, ok := runCtx.Deadline(); !ok {
		t.Fatal("pipeline context should carry the budget deadline")
	}
	close(f.runner.block)
}

// TestPersonsRoutes verifies filters, validation and error mapping for subjects.
func TestPersonsRoutes(t *testing.T) {
	f := newFixture(t, nil)

	if rec := f.do(http.MethodGet, "/api/persons?type=%EA%B4%91%EA%B3%A0%EC%A3%BC&active=true", ""); rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if got := f.records.subjectFilters[0]; got.Category != types.CategoryClient || !got.ActiveOnly {
		t.Fatalf("filter = %+v", got)
	}
	if rec := f.do(http.MethodGet, "/api/persons?type=%ED%98%91%EB%A0%A5%EC%82%AC", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown type status = %d", rec.Code)
	}

	if rec := f.do(http.MethodPost, "/api/persons", `{"name":"","type":"팀장"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid create status = %d", rec.Code)
	}
	rec := f.do(http.MethodPost, "/api/persons", `{"name":"ACME","type":"광고주","department":"광고"}`)
	if rec.Code != http.StatusCreated || decode(t, rec)["status"] != types.StatusTrading {
		t.Fatalf("create = %d %s", rec.Code, rec.Body)
	}

	if rec := f.do(http.MethodPatch, "/api/persons/p-1/status", `{"status":"퇴사"}`); rec.Code != http.StatusOK {
		t.Fatalf("patch status = %d", rec.Code)
	}
	if got := f.records.updates["p-1"].Status; got == nil || *got != "퇴사" {
		t.Fatalf("update = %+v", f.records.updates)
	}
	if rec := f.do(http.MethodPatch, "/api/persons/p-1/status", `{"status":"휴직"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status code = %d", rec.Code)
	}

	f.records.getErr = &records.FieldError{Record: "subject", ID: "p-2", Field: "유형"}
	if rec := f.do(http.MethodGet, "/api/persons/p-2", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing field status = %d", rec.Code)
	}
	f.records.getErr = &types.ProviderError{Provider: "notion", Kind: types.KindStatus, StatusCode: 404, Message: "gone"}
	if rec := f.do(http.MethodGet, "/api/persons/p-3", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("not found status = %d", rec.Code)
	}
}

// TestRosterExportRoute verifies /export is not shadowed by /:id.
func TestRosterExportRoute(t *testing.T) {
	f := newFixture(t, nil)
	f.records.subjects = []types.Subject{{Name: "김철수", Category: types.CategoryStaff, Status: types.StatusEmployed}}

	rec := f.do(http.MethodGet, "/api/persons/export", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("export = %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatal("export body is not an xlsx archive")
	}
}

// TestSessionsRoutes verifies recent limits and archiving.
func TestSessionsRoutes(t *testing.T) {
	f := newFixture(t, nil)

	f.do(http.MethodGet, "/api/interviews", "")
	f.do(http.MethodGet, "/api/interviews?personId=p-1", "")
	f.do(http.MethodGet, "/api/interviews?limit=3", "")
	if rec := f.do(http.MethodGet, "/api/interviews?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d", rec.Code)
	}
	want := []records.SessionFilter{{Limit: 7}, {SubjectID: "p-1"}, {Limit: 3}}
	if len(f.records.sessionFilters) != len(want) {
		t.Fatalf("filters = %+v", f.records.sessionFilters)
	}
	for i := range want {
		if f.records.sessionFilters[i] != want[i] {
			t.Fatalf("filter %d = %+v, want %+v", i, f.records.sessionFilters[i], want[i])
		}
	}

	if rec := f.do(http.MethodDelete, "/api/interviews/s-9", ""); rec.Code != http.StatusOK || f.records.archived[0] != "s-9" {
		t.Fatalf("archive = %d %v", rec.Code, f.records.archived)
	}
}

// TestIssueUploadNamesObjects verifies presigned targets follow the object naming scheme.
func TestIssueUploadNamesObjects(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/interview/upload", `{"jobId":"job-1","ext":".WEBM","count":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body)
	}
	if len(f.issuer.names) != 2 ||
		!strings.HasPrefix(f.issuer.names[0], "audio/job-1/000-") ||
		!strings.HasPrefix(f.issuer.names[1], "audio/job-1/001-") ||
		!strings.HasSuffix(f.issuer.names[1], ".webm") {
		t.Fatalf("names = %v", f.issuer.names)
	}
	if rec := f.do(http.MethodPost, "/api/interview/upload", `{"count":0}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("zero count status = %d", rec.Code)
	}

	noStore := newFixture(t, func(d *Deps, _ *Options) { d.Issuer = nil })
	if rec := noStore.do(http.MethodPost, "/api/interview/upload", `{"count":1}`); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured status = %d", rec.Code)
	}
}

// TestIngestUploadsSegments verifies the multipart ingest path.
func TestIngestUploadsSegments(t *testing.T) {
	f := newFixture(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("jobId", "job-7")
	part, _ := mw.CreateFormFile("file", "meeting.m4a")
	_, _ = part.Write([]byte("fake audio"))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/interview/ingest", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d %s", rec.Code, rec.Body)
	}
	out := decode(t, rec)
	urls := out["chunkUrls"].([]any)
	if len(urls) != 2 || out["jobId"] != "job-7" || f.upl.jobID != "job-7" || out["ext"] != "wav" {
		t.Fatalf("out = %v", out)
	}
	if out["duration"] != 1.5 {
		t.Fatalf("duration = %v", out["duration"])
	}

	missing := httptest.NewRequest(http.MethodPost, "/api/interview/ingest", strings.NewReader(""))
	missing.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, missing)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing file status = %d", rec.Code)
	}
}

// TestChat verifies question validation and the answer payload.
func TestChat(t *testing.T) {
	f := newFixture(t, nil)

	if rec := f.do(http.MethodPost, "/api/interview/chat", `{"question":"  "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("blank question status = %d", rec.Code)
	}
	rec := f.do(http.MethodPost, "/api/interview/chat", `{"question":"다음엔 뭘 물어볼까?","context":{"personName":"김철수","analysis":{"summary":"s"}},"history":[{"role":"user","content":"앞 질문"}]}`)
	if rec.Code != http.StatusOK || decode(t, rec)["answer"] != "답변입니다" {
		t.Fatalf("chat = %d %s", rec.Code, rec.Body)
	}
	if f.chat.question != "다음엔 뭘 물어볼까?" {
		t.Fatalf("question = %q", f.chat.question)
	}
}

// TestTelegramWebhookAlwaysOK verifies bot failures never reach Telegram as errors.
func TestTelegramWebhookAlwaysOK(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/api/telegram/webhook", `{"update_id":5,"message":{"text":"/목록","chat":{"id":1}}}`)
	if rec.Code != http.StatusOK || len(f.bot.got) != 1 || f.bot.got[0].UpdateID != 5 {
		t.Fatalf("webhook = %d, updates = %+v", rec.Code, f.bot.got)
	}
	if rec := f.do(http.MethodPost, "/api/telegram/webhook", `garbage`); rec.Code != http.StatusOK {
		t.Fatalf("garbage status = %d", rec.Code)
	}
}

// TestRateLimiter verifies the fixed window on the limited interview routes only.
func TestRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, func(d *Deps, o *Options) {
		d.Redis = client
		o.RateLimit = 2
	})
	const blank = `{"question":"  "}`

	for i := 0; i < 2; i++ {
		if rec := f.do(http.MethodPost, "/api/interview/chat", blank); rec.Code != http.StatusBadRequest {
			t.Fatalf("request %d status = %d", i, rec.Code)
		}
	}
	rec := f.do(http.MethodPost, "/api/interview/chat", blank)
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("third request = %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz limited: %d", rec.Code)
	}

	mr.FastForward(time.Minute + time.Second)
	if rec := f.do(http.MethodPost, "/api/interview/chat", blank); rec.Code != http.StatusBadRequest {
		t.Fatalf("after window status = %d", rec.Code)
	}
}

// TestStatusPollingNotLimited verifies many readers can poll one job without hitting the limiter.
func TestStatusPollingNotLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, func(d *Deps, o *Options) {
		d.Redis = client
		o.RateLimit = 30
	})
	for i := 0; i < 40; i++ {
		if rec := f.do(http.MethodGet, "/api/interview/status?jobId=j1", ""); rec.Code != http.StatusNotFound {
			t.Fatalf("poll %d status = %d, want 404", i, rec.Code)
		}
	}
}

// TestRateLimiterRepairsMissingExpiry verifies a counter left without a TTL gets one on the next request.
func TestRateLimiterRepairsMissingExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, func(d *Deps, o *Options) {
		d.Redis = client
		o.RateLimit = 2
	})
	key := "rl:interview:192.0.2.1"
	if err := mr.Set(key, "5"); err != nil {
		t.Fatal(err)
	}

	if rec := f.do(http.MethodPost, "/api/interview/chat", `{"question":"  "}`); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl = %v, want within one minute", ttl)
	}
	mr.FastForward(time.Minute + time.Second)
	if rec := f.do(http.MethodPost, "/api/interview/chat", `{"question":"  "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("after window status = %d", rec.Code)
	}
}
