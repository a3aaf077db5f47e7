package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"chatdesk/internal/chat"
	"chatdesk/internal/i18n"
	"chatdesk/internal/provider"
	"chatdesk/internal/storage"
)

type scriptStream struct {
	fragments []string
	err       error
	pos       int
}

func (s *scriptStream) Next() bool {
	for s.pos < len(s.fragments) {
		f := s.fragments[s.pos]
		s.pos++
		if f != "" {
			return true
		}
	}
	return false
}

func (s *scriptStream) Fragment() string { return s.fragments[s.pos-1] }

func (s *scriptStream) Err() error {
	if s.pos < len(s.fragments) || s.err == nil {
		return nil
	}
	return &provider.RequestError{Provider: "scripted", Err: s.err}
}

func (s *scriptStream) Close() error { return nil }

type scriptedProvider struct {
	model     string
	fragments []string
	streamErr error // fails the stream after all fragments
	openErr   error // fails before the stream opens
	models    []provider.ModelInfo
	listErr   error
	requests  []provider.ChatRequest
}

func (p *scriptedProvider) Stream(_ context.Context, req provider.ChatRequest) (provider.Stream, error) {
	req.Messages = chat.Clone(req.Messages)
	p.requests = append(p.requests, req)
	if p.openErr != nil {
		return nil, p.openErr
	}
	return &scriptStream{fragments: p.fragments, err: p.streamErr}, nil
}

func (p *scriptedProvider) ListModels(context.Context) ([]provider.ModelInfo, error) {
	return p.models, p.listErr
}

func (p *scriptedProvider) Name() string         { return "scripted" }
func (p *scriptedProvider) CurrentModel() string { return p.model }

func (p *scriptedProvider) SetModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return errors.New("model is empty")
	}
	p.model = model
	return nil
}

func fixedClock() time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func newTestOrchestrator(t *testing.T, p *scriptedProvider) (*Orchestrator, *storage.JSONStore) {
	t.Helper()
	store, err := storage.NewJSONStore(filepath.Join(t.TempDir(), "sessions"))
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	o, err := New(Options{
		Store:    store,
		Provider: p,
		Models:   []string{"deepseek-chat", "deepseek-reasoner"},
		I18n:     i18n.New("en"),
		Now:      fixedClock,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o, store
}

func TestNew_RequiresCollaborators(t *testing.T) {
	if _, err := New(Options{Provider: &scriptedProvider{}}); err == nil {
		t.Fatal("expected error without store")
	}
	store, _ := storage.NewJSONStore(t.TempDir())
	if _, err := New(Options{Store: store}); err == nil {
		t.Fatal("expected error without provider")
	}
}

func TestNew_GeneratesTimestampSessionID(t *testing.T) {
	o, _ := newTestOrchestrator(t, &scriptedProvider{model: "deepseek-chat"})
	if got := o.CurrentSessionID(); got != "2024-01-01_00-00-00" {
		t.Fatalf("CurrentSessionID=%q", got)
	}
	if len(o.Messages()) != 0 {
		t.Fatalf("new orchestrator should start empty")
	}
}

func TestRunInput_AccumulatesAndPersists(t *testing.T) {
	p := &scriptedProvider{model: "deepseek-chat", fragments: []string{"Hel", "lo", "", ", ", "world"}}
	o, store := newTestOrchestrator(t, p)

	var totals []string
	reply, err := o.RunInput(context.Background(), "ping", func(total string) { totals = append(totals, total) })
	if err != nil {
		t.Fatalf("RunInput: %v", err)
	}
	if reply != "Hello, world" {
		t.Fatalf("reply=%q", reply)
	}
	if want := []string{"Hel", "Hello", "Hello, ", "Hello, world"}; !reflect.DeepEqual(totals, want) {
		t.Fatalf("display totals=%q, want %q", totals, want)
	}

	want := []chat.Message{chat.UserMessage("ping"), chat.AssistantMessage("Hello, world")}
	if got := o.Messages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Messages=%+v, want %+v", got, want)
	}
	doc, err := store.Load(o.CurrentSessionID())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(doc.Messages, want) {
		t.Fatalf("persisted=%+v, want %+v", doc.Messages, want)
	}
	if doc.Model != "deepseek-chat" {
		t.Fatalf("persisted model=%q", doc.Model)
	}
}

func TestRunInput_SendsSystemAndFullHistory(t *testing.T) {
	p := &scriptedProvider{model: "deepseek-chat", fragments: []string{"ok"}}
	o, _ := newTestOrchestrator(t, p)
	o.systemPrompt = "be terse"

	for _, in := range []string{"first", "second"} {
		if _, err := o.RunInput(context.Background(), in, nil); err != nil {
			t.Fatalf("RunInput(%q): %v", in, err)
		}
	}
	if len(p.requests) != 2 {
		t.Fatalf("requests=%d", len(p.requests))
	}
	last := p.requests[1]
	if last.System != "be terse" || last.Model != "deepseek-chat" {
		t.Fatalf("request=%+v", last)
	}
	want := []chat.Message{chat.UserMessage("first"), chat.AssistantMessage("ok"), chat.UserMessage("second")}
	if !reflect.DeepEqual(last.Messages, want) {
		t.Fatalf("request history=%+v, want %+v", last.Messages, want)
	}
}

func TestRunInput_FailureMidStreamPersistsNoPartialReply(t *testing.T) {
	p := &scriptedProvider{
		model:     "deepseek-chat",
		fragments: []string{"par", "tial"},
		streamErr: errors.New("connection reset"),
	}
	o, store := newTestOrchestrator(t, p)

	var shown string
	reply, err := o.RunInput(context.Background(), "ping", func(total string) { shown = total })
	var reqErr *provider.RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err=%v, want *provider.RequestError", err)
	}
	if reqErr.Partial != "partial" || shown != "partial" {
		t.Fatalf("partial=%q shown=%q", reqErr.Partial, shown)
	}
	if reply != "" {
		t.Fatalf("reply=%q, want empty", reply)
	}

	want := []chat.Message{chat.UserMessage("ping")}
	if got := o.Messages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("buffer=%+v, want only the user message", got)
	}
	doc, err := store.Load(o.CurrentSessionID())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(doc.Messages, want) {
		t.Fatalf("persisted=%+v, want only the user message", doc.Messages)
	}
}

func TestRunInput_OpenFailure(t *testing.T) {
	p := &scriptedProvider{
		model:   "deepseek-chat",
		openErr: &provider.RequestError{Provider: "scripted", Err: provider.ErrMissingAPIKey},
	}
	o, _ := newTestOrchestrator(t, p)
	_, err := o.RunInput(context.Background(), "ping", nil)
	if !errors.Is(err, provider.ErrMissingAPIKey) {
		t.Fatalf("err=%v, want ErrMissingAPIKey", err)
	}
	if got := o.ErrorMessage(err); got != i18n.New("en").T("error.no_key") {
		t.Fatalf("ErrorMessage=%q", got)
	}
	if len(o.Messages()) != 1 {
		t.Fatalf("buffer=%+v", o.Messages())
	}
}

func TestRunInput_EmptyInput(t *testing.T) {
	p := &scriptedProvider{model: "deepseek-chat", fragments: []string{"x"}}
	o, _ := newTestOrchestrator(t, p)
	if _, err := o.RunInput(context.Background(), "  \n", nil); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("err=%v, want ErrEmptyInput", err)
	}
	if len(p.requests) != 0 || len(o.Messages()) != 0 {
		t.Fatalf("blank input should not start a turn")
	}
}

func TestRunInput_AutosaveFailureStillReturnsReply(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	store, err := storage.NewJSONStore(filepath.Join(blocker, "sessions"))
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	p := &scriptedProvider{model: "deepseek-chat", fragments: []string{"pong"}}
	o, err := New(Options{Store: store, Provider: p, I18n: i18n.New("en"), Now: fixedClock})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	reply, err := o.RunInput(context.Background(), "ping", nil)
	if reply != "pong" {
		t.Fatalf("reply=%q", reply)
	}
	var dirErr *storage.StorageDirectoryError
	if !errors.As(err, &dirErr) {
		t.Fatalf("err=%v, want *storage.StorageDirectoryError", err)
	}
	if len(o.Messages()) != 2 {
		t.Fatalf("buffer=%+v", o.Messages())
	}
	if msg := o.ErrorMessage(err); !strings.Contains(msg, "Cannot create session directory") {
		t.Fatalf("ErrorMessage=%q", msg)
	}
}

func TestNewSession_EmptySessionIsKept(t *testing.T) {
	o, store := newTestOrchestrator(t, &scriptedProvider{model: "deepseek-chat"})
	before := o.CurrentSessionID()

	id, created, err := o.NewSession(context.Background())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if created || id != before {
		t.Fatalf("NewSession on empty session: id=%q created=%v", id, created)
	}
	// 空会话也会被保存 / the empty session is still flushed
	if !store.Exists(before) {
		t.Fatalf("current session should be saved")
	}
}

func TestNewSession_FlushesAndStartsFresh(t *testing.T) {
	p := &scriptedProvider{model: "deepseek-chat", fragments: []string{"pong"}}
	o, store := newTestOrchestrator(t, p)
	old := o.CurrentSessionID()
	if _, err := o.RunInput(context.Background(), "ping", nil); err != nil {
		t.Fatalf("RunInput: %v", err)
	}

	id, created, err := o.NewSession(context.Background())
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	if !created || id == old {
		t.Fatalf("NewSession: id=%q created=%v", id, created)
	}
	// 同一秒内创建，追加后缀区分 / same-second creation gets a suffix
	if id != "2024-01-01_00-00-00-02" {
		t.Fatalf("new id=%q", id)
	}
	if len(o.Messages()) != 0 {
		t.Fatalf("new session should be empty")
	}
	ids, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if want := []string{"2024-01-01_00-00-00-02", "2024-01-01_00-00-00"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("List=%v, want %v", ids, want)
	}
	doc, err := store.Load(old)
	if err != nil || len(doc.Messages) != 2 {
		t.Fatalf("old session doc=%+v err=%v", doc, err)
	}
}

func TestLoadSession(t *testing.T) {
	o, store := newTestOrchestrator(t, &scriptedProvider{model: "deepseek-chat", fragments: []string{"pong"}})
	saved := []chat.Message{chat.UserMessage("你好"), chat.AssistantMessage("你好！")}
	if err := store.Save("2023-12-31_23-59-59", saved, storage.SessionMeta{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := o.RunInput(context.Background(), "ping", nil); err != nil {
		t.Fatalf("RunInput: %v", err)
	}
	current := o.CurrentSessionID()
	before := o.Messages()

	// 失败时状态不变 / failure leaves state unchanged
	_, err := o.LoadSession("1999-01-01_00-00-00")
	var loadErr *storage.LoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("err=%v, want *storage.LoadError", err)
	}
	if o.CurrentSessionID() != current || !reflect.DeepEqual(o.Messages(), before) {
		t.Fatalf("failed load changed state")
	}

	n, err := o.LoadSession("2023-12-31_23-59-59")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if n != 2 || o.CurrentSessionID() != "2023-12-31_23-59-59" {
		t.Fatalf("n=%d id=%q", n, o.CurrentSessionID())
	}
	if !reflect.DeepEqual(o.Messages(), saved) {
		t.Fatalf("Messages=%+v", o.Messages())
	}
}

func TestDeleteSession(t *testing.T) {
	o, store := newTestOrchestrator(t, &scriptedProvider{model: "deepseek-chat", fragments: []string{"pong"}})
	if err := store.Save("2023-12-31_23-59-59", []chat.Message{chat.UserMessage("old")}, storage.SessionMeta{}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := o.RunInput(context.Background(), "ping", nil); err != nil {
		t.Fatalf("RunInput: %v", err)
	}
	current := o.CurrentSessionID()

	wasCurrent, err := o.DeleteSession("2023-12-31_23-59-59")
	if err != nil || wasCurrent {
		t.Fatalf("delete other: wasCurrent=%v err=%v", wasCurrent, err)
	}
	if o.CurrentSessionID() != current || len(o.Messages()) != 2 {
		t.Fatalf("deleting another session changed the active one")
	}

	// 不存在的会话删除为 no-op / deleting a missing session is a no-op
	if _, err := o.DeleteSession("1999-01-01_00-00-00"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}

	wasCurrent, err = o.DeleteSession(current)
	if err != nil || !wasCurrent {
		t.Fatalf("delete current: wasCurrent=%v err=%v", wasCurrent, err)
	}
	if o.CurrentSessionID() == current || len(o.Messages()) != 0 {
		t.Fatalf("deleting the active session should start a fresh one")
	}
	if store.Exists(o.CurrentSessionID()) {
		t.Fatalf("replacement session should not be persisted until the next save")
	}
	if ids, _ := o.ListSessions(); len(ids) != 0 {
		t.Fatalf("ListSessions=%v, want empty", ids)
	}
}

func TestHandleCommand(t *testing.T) {
	p := &scriptedProvider{model: "deepseek-chat", fragments: []string{"pong"}, listErr: errors.New("offline")}
	o, store := newTestOrchestrator(t, p)
	tr := i18n.New("en")
	ctx := context.Background()

	if res := o.HandleCommand(ctx, "/help"); res.Output != tr.T("cmd.help") {
		t.Fatalf("/help=%q", res.Output)
	}
	if res := o.HandleCommand(ctx, "/exit"); !res.Exit {
		t.Fatalf("/exit should request exit")
	}
	if res := o.HandleCommand(ctx, "/load"); res.Output != tr.T("cmd.usage_load") {
		t.Fatalf("/load=%q", res.Output)
	}
	if res := o.HandleCommand(ctx, "/delete"); res.Output != tr.T("cmd.usage_delete") {
		t.Fatalf("/delete=%q", res.Output)
	}
	if res := o.HandleCommand(ctx, "/bogus"); res.Output != tr.T("cmd.unknown", "/bogus") {
		t.Fatalf("/bogus=%q", res.Output)
	}
	if res := o.HandleCommand(ctx, "/sessions"); res.Output != tr.T("session.list_empty") {
		t.Fatalf("/sessions=%q", res.Output)
	}

	if res := o.HandleCommand(ctx, "/model deepseek-reasoner"); res.Output != tr.T("model.switched", "deepseek-reasoner") {
		t.Fatalf("/model=%q", res.Output)
	}
	if res := o.HandleCommand(ctx, "/model"); res.Output != tr.T("model.current", "deepseek-reasoner") {
		t.Fatalf("/model=%q", res.Output)
	}
	res := o.HandleCommand(ctx, "/models")
	if !strings.Contains(res.Output, "offline") || !strings.Contains(res.Output, "* deepseek-reasoner") || !strings.Contains(res.Output, "  deepseek-chat") {
		t.Fatalf("/models=%q", res.Output)
	}

	if res := o.HandleCommand(ctx, "/save"); res.Output != tr.T("session.saved", o.CurrentSessionID()) {
		t.Fatalf("/save=%q", res.Output)
	}
	res = o.HandleCommand(ctx, "/sessions")
	if !strings.Contains(res.Output, "* "+o.CurrentSessionID()) {
		t.Fatalf("/sessions should mark the current session: %q", res.Output)
	}

	res = o.HandleCommand(ctx, "/load 1999-01-01_00-00-00")
	if res.SessionChanged || !strings.HasPrefix(res.Output, "Failed to load session 1999-01-01_00-00-00") {
		t.Fatalf("/load missing=%+v", res)
	}

	if _, err := o.RunInput(ctx, "ping", nil); err != nil {
		t.Fatalf("RunInput: %v", err)
	}
	old := o.CurrentSessionID()
	res = o.HandleCommand(ctx, "/new")
	if !res.SessionChanged || o.CurrentSessionID() == old {
		t.Fatalf("/new=%+v", res)
	}
	res = o.HandleCommand(ctx, "/load "+old)
	if !res.SessionChanged || res.Output != tr.T("session.loaded", old, 2) {
		t.Fatalf("/load=%+v", res)
	}
	res = o.HandleCommand(ctx, "/delete "+old)
	if !res.SessionChanged || store.Exists(old) {
		t.Fatalf("/delete current=%+v", res)
	}
}

func TestParseSlashCommand(t *testing.T) {
	tests := []struct {
		in   string
		cmd  string
		args string
		ok   bool
	}{
		{in: "/load 2024-01-01_00-00-00", cmd: "load", args: "2024-01-01_00-00-00", ok: true},
		{in: "  /MODEL   deepseek-chat ", cmd: "model", args: "deepseek-chat", ok: true},
		{in: "/", cmd: "", ok: true},
		{in: "hello /load", ok: false},
	}
	for _, tc := range tests {
		cmd, args, ok := parseSlashCommand(tc.in)
		if cmd != tc.cmd || args != tc.args || ok != tc.ok {
			t.Fatalf("parseSlashCommand(%q)=(%q,%q,%v)", tc.in, cmd, args, ok)
		}
	}
	if !IsCommand("/help") || IsCommand("help") {
		t.Fatal("IsCommand mismatch")
	}
}

func TestContextStats(t *testing.T) {
	p := &scriptedProvider{model: "deepseek-chat", fragments: []string{"pong"}}
	o, _ := newTestOrchestrator(t, p)
	if stats := o.ContextStats(); stats.MessageCount != 0 || stats.EstimatedTokens != 0 {
		t.Fatalf("empty stats=%+v", stats)
	}
	if _, err := o.RunInput(context.Background(), "ping", nil); err != nil {
		t.Fatalf("RunInput: %v", err)
	}
	if stats := o.ContextStats(); stats.MessageCount != 2 || stats.EstimatedTokens <= 0 {
		t.Fatalf("stats=%+v", stats)
	}
}
