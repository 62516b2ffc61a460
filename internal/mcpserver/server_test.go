package mcpserver

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/trailguard/internal/alert"
	"github.com/starford/trailguard/internal/journey"
	"github.com/starford/trailguard/internal/ports"
	"github.com/starford/trailguard/internal/safety"
	"github.com/starford/trailguard/internal/testutil"
)

type recorder struct {
	mu   sync.Mutex
	sent []string
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Send(_ context.Context, dest, text string) (*ports.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, dest+"|"+text)
	return &ports.Receipt{MessageID: "m"}, nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func testServer(t *testing.T) (*Server, *recorder) {
	t.Helper()

	out := &recorder{}
	svc, err := safety.New(safety.Config{
		Session:     safety.Session{UserID: "u1", DisplayName: "Asha"},
		CountryCode: "91",
		LocalLength: 10,
		Location:    time.UTC,
		Journey:     journey.Config{FreshFixTimeout: 20 * time.Millisecond},
		Scheduler:   alert.SchedulerConfig{Interval: time.Hour, FreshFixTimeout: 20 * time.Millisecond},
		Alert:       alert.Config{SendTimeout: time.Second, OutcomeTimeout: time.Second, FreshFixTimeout: 20 * time.Millisecond},
	}, safety.Deps{
		Store: testutil.TestDB(t),
		Imports: testutil.TestImports(t, map[string]string{
			"phone.yaml": "- name: Mom\n  phone: \"98765 43210\"\n- name: Dad\n  phone: \"+91 98765 43211\"\n",
		}),
		Channels: []ports.AlertChannel{out},
		Logger:   testutil.QuietLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	return New(svc), out
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "journey_status":
		result, err = srv.journeyStatus(ctx, req)
	case "start_journey":
		result, err = srv.startJourney(ctx, req)
	case "stop_journey":
		result, err = srv.stopJourney(ctx, req)
	case "trigger_sos":
		result, err = srv.triggerSOS(ctx, req)
	case "list_contacts":
		result, err = srv.listContacts(ctx, req)
	case "sync_contacts":
		result, err = srv.syncContacts(ctx, req)
	case "select_contacts":
		result, err = srv.selectContacts(ctx, req)
	case "get_alert_formats":
		result, err = srv.getAlertFormats(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSelectAndListContacts(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "select_contacts", map[string]interface{}{"numbers": "9876543210, +91 98765 43211"})
	if r.IsError {
		t.Fatalf("select failed: %s", resultText(r))
	}
	text := resultText(r)
	if !strings.Contains(text, "+919876543210") || !strings.Contains(text, "+919876543211") {
		t.Errorf("select result = %q", text)
	}

	r = callTool(t, srv, "list_contacts", map[string]interface{}{})
	if !strings.Contains(resultText(r), "Dad") {
		t.Errorf("list missing contact: %s", resultText(r))
	}
}

func TestSelectContacts_MissingNumbers(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "select_contacts", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error for missing numbers")
	}
}

func TestJourneyTools(t *testing.T) {
	srv, out := testServer(t)

	r := callTool(t, srv, "start_journey", map[string]interface{}{})
	if !r.IsError {
		t.Error("start without contacts should fail")
	}

	_ = callTool(t, srv, "select_contacts", map[string]interface{}{"numbers": "9876543210"})

	r = callTool(t, srv, "start_journey", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("start failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), `"phase": "active"`) {
		t.Errorf("start result = %s", resultText(r))
	}

	r = callTool(t, srv, "journey_status", map[string]interface{}{})
	if !strings.Contains(resultText(r), `"phase": "active"`) {
		t.Errorf("status = %s", resultText(r))
	}

	r = callTool(t, srv, "stop_journey", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("stop failed: %s", resultText(r))
	}

	r = callTool(t, srv, "stop_journey", map[string]interface{}{})
	if !r.IsError {
		t.Error("stop while idle should fail")
	}
	if out.count() < 2 {
		t.Errorf("sent = %d, want journey update and safe arrival", out.count())
	}
}

func TestTriggerSOS_RequiresConfirmation(t *testing.T) {
	srv, out := testServer(t)
	_ = callTool(t, srv, "select_contacts", map[string]interface{}{"numbers": "9876543210"})

	r := callTool(t, srv, "trigger_sos", map[string]interface{}{"confirm": "yes"})
	if !r.IsError {
		t.Error("expected error for wrong confirmation")
	}
	if out.count() != 0 {
		t.Errorf("sent = %d without confirmation", out.count())
	}

	r = callTool(t, srv, "trigger_sos", map[string]interface{}{"confirm": sosConfirmation})
	if r.IsError {
		t.Fatalf("sos failed: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "EMERGENCY! Asha needs help.") {
		t.Errorf("sos result = %s", resultText(r))
	}
	if out.count() != 1 {
		t.Errorf("sent = %d, want 1", out.count())
	}
}

func TestSyncContacts(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "sync_contacts", map[string]interface{}{})
	if r.IsError {
		t.Fatalf("sync failed: %s", resultText(r))
	}
	if strings.Contains(resultText(r), "warning") {
		t.Errorf("local-only sync should not warn: %s", resultText(r))
	}
}

func TestGetAlertFormats(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_alert_formats", map[string]interface{}{})
	if !strings.Contains(resultText(r), "Location: UNAVAILABLE") {
		t.Error("formats missing degraded location line")
	}
}
