package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// Paths served by FakeTenant.
const (
	TokenPath        = "/auth/v1/token"
	EntitlementsPath = "/api/v1/search/entitlements"
	AppUsersPath     = "/api/v1/search/app_users"
	UsersPath        = "/api/v1/search/users"
	TasksPath        = "/api/v1/search/tasks"
	GrantPath        = "/api/v1/task/grant"
	RevokePath       = "/api/v1/task/revoke"
)

// TestIDs provides deterministic identifiers for tests.
var TestIDs = struct {
	PlayerUUID  uuid.UUID
	PlayerUUID2 uuid.UUID
	ClientID    string
}{
	PlayerUUID:  uuid.MustParse("11111111-1111-1111-1111-111111111111"),
	PlayerUUID2: uuid.MustParse("22222222-2222-2222-2222-222222222222"),
	ClientID:    "cheerful-otter-12345@example.conductor.one/pcc",
}

// Call is one request received by FakeTenant.
type Call struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// JSON decodes the request body as a JSON object.
func (c Call) JSON() map[string]any {
	var out map[string]any
	_ = json.Unmarshal(c.Body, &out)
	return out
}

// Form decodes the request body as a URL-encoded form.
func (c Call) Form() url.Values {
	v, _ := url.ParseQuery(string(c.Body))
	return v
}

// OpenTask is a task returned by the tasks search endpoint.
type OpenTask struct {
	ID          string
	NumericID   string
	DisplayName string
	Kind        string // grant, revoke or anything else for unknown
}

type canned struct {
	status int
	body   string
	once   bool
}

type entitlement struct {
	appID string
	id    string
}

// FakeTenant is an httptest server that behaves like the access-service API:
// it issues tokens, answers the four search endpoints from in-memory tables
// and creates tasks. Individual paths can be overridden with canned responses.
type FakeTenant struct {
	*httptest.Server

	mu           sync.Mutex
	calls        []Call
	tokens       int
	expiresIn    int
	entitlements map[string]entitlement
	appUsers     map[string]string
	users        map[string]string
	openTasks    []OpenTask
	created      int
	overrides    map[string][]canned
}

// NewFakeTenant starts a fake tenant that is closed when the test ends.
func NewFakeTenant(t testing.TB) *FakeTenant {
	t.Helper()
	f := &FakeTenant{
		expiresIn:    3600,
		entitlements: make(map[string]entitlement),
		appUsers:     make(map[string]string),
		users:        make(map[string]string),
		overrides:    make(map[string][]canned),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

// AddEntitlement registers alias as resolving to (appID, entitlementID).
func (f *FakeTenant) AddEntitlement(alias, appID, entitlementID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entitlements[alias] = entitlement{appID: appID, id: entitlementID}
}

// AddAppUser registers username as an app user of appID.
func (f *FakeTenant) AddAppUser(appID, username, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appUsers[appID+"/"+username] = id
}

// AddUser registers username as a global identity user.
func (f *FakeTenant) AddUser(username, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[username] = id
}

// SetOpenTasks sets the tasks returned by every tasks search.
func (f *FakeTenant) SetOpenTasks(tasks ...OpenTask) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openTasks = tasks
}

// SetExpiresIn sets the lifetime declared for issued tokens.
func (f *FakeTenant) SetExpiresIn(seconds int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expiresIn = seconds
}

// Respond makes path answer with status and body until changed.
func (f *FakeTenant) Respond(path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[path] = []canned{{status: status, body: body}}
}

// RespondOnce queues a single canned response for path.
func (f *FakeTenant) RespondOnce(path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[path] = append(f.overrides[path], canned{status: status, body: body, once: true})
}

// Calls returns every request received so far.
func (f *FakeTenant) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the requests received on path.
func (f *FakeTenant) CallsTo(path string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Path == path {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the number of requests received on path.
func (f *FakeTenant) Count(path string) int {
	return len(f.CallsTo(path))
}

// Endpoint returns path relative to the server root, without the leading slash,
// the form used by the endpoint settings.
func Endpoint(path string) string {
	return strings.TrimPrefix(path, "/")
}

func (f *FakeTenant) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.calls = append(f.calls, Call{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: body})
	if queue := f.overrides[r.URL.Path]; len(queue) > 0 {
		c := queue[0]
		if c.once {
			f.overrides[r.URL.Path] = queue[1:]
		}
		f.mu.Unlock()
		writeRaw(w, c.status, c.body)
		return
	}
	defer f.mu.Unlock()

	if r.URL.Path != TokenPath && !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		writeRaw(w, http.StatusUnauthorized, `{"code":16,"message":"unauthenticated"}`)
		return
	}

	var req map[string]any
	_ = json.Unmarshal(body, &req)

	switch r.URL.Path {
	case TokenPath:
		f.tokens++
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": fmt.Sprintf("token-%d", f.tokens),
			"token_type":   "Bearer",
			"expires_in":   f.expiresIn,
		})
	case EntitlementsPath:
		list := []any{}
		if e, ok := f.entitlements[str(req["alias"])]; ok {
			list = append(list, map[string]any{
				"appEntitlement": map[string]any{"id": e.id, "appId": e.appID, "alias": str(req["alias"])},
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"list": list})
	case AppUsersPath:
		list := []any{}
		if id, ok := f.appUsers[str(req["appId"])+"/"+str(req["query"])]; ok {
			list = append(list, map[string]any{"appUser": map[string]any{"id": id, "appId": str(req["appId"])}})
		}
		writeJSON(w, http.StatusOK, map[string]any{"list": list})
	case UsersPath:
		list := []any{}
		if id, ok := f.users[str(req["query"])]; ok {
			list = append(list, map[string]any{"user": map[string]any{"id": id, "username": str(req["query"])}})
		}
		writeJSON(w, http.StatusOK, map[string]any{"list": list})
	case TasksPath:
		list := make([]any, 0, len(f.openTasks))
		for _, t := range f.openTasks {
			task := map[string]any{"id": t.ID, "displayName": t.DisplayName}
			if t.NumericID != "" {
				task["numericId"] = t.NumericID
			}
			switch t.Kind {
			case "grant", "revoke":
				task["type"] = map[string]any{t.Kind: map[string]any{}}
			default:
				task["type"] = map[string]any{"certify": map[string]any{}}
			}
			list = append(list, map[string]any{"task": task})
		}
		writeJSON(w, http.StatusOK, map[string]any{"list": list})
	case GrantPath, RevokePath:
		f.created++
		writeJSON(w, http.StatusOK, map[string]any{
			"taskView": map[string]any{"task": map[string]any{
				"id":        fmt.Sprintf("task-%d", f.created),
				"numericId": fmt.Sprintf("%d", 100+f.created),
			}},
		})
	default:
		writeRaw(w, http.StatusNotFound, `{"code":5,"message":"not found"}`)
	}
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
