package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gencode "github.com/nevindra/gencode"
	"github.com/nevindra/gencode/generate"
	"github.com/nevindra/gencode/internal/config"
	"github.com/nevindra/gencode/sandbox"
)

type sent struct {
	chatID string
	text   string
}

type fakeFrontend struct {
	in chan gencode.IncomingMessage

	mu     sync.Mutex
	sent   []sent
	typing int
}

func newFakeFrontend() *fakeFrontend {
	return &fakeFrontend{in: make(chan gencode.IncomingMessage, 8)}
}

func (f *fakeFrontend) Poll(context.Context) (<-chan gencode.IncomingMessage, error) {
	return f.in, nil
}

func (f *fakeFrontend) Send(_ context.Context, chatID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{chatID, text})
	return gencode.NewID(), nil
}

func (f *fakeFrontend) SendTyping(context.Context, string) error {
	f.mu.Lock()
	f.typing++
	f.mu.Unlock()
	return nil
}

func (f *fakeFrontend) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		out = append(out, s.text)
	}
	return out
}

type fakeProvider struct {
	mu      sync.Mutex
	content string
	prompts []string
}

func (p *fakeProvider) Chat(_ context.Context, req gencode.ChatRequest) (gencode.ChatResponse, error) {
	p.mu.Lock()
	p.prompts = append(p.prompts, req.Messages[len(req.Messages)-1].Content)
	p.mu.Unlock()
	return gencode.ChatResponse{Content: p.content}, nil
}

func (p *fakeProvider) Name() string { return "fake" }

func newTestApp(t *testing.T, cfg config.Config, content string) (*App, *fakeFrontend, *fakeProvider) {
	t.Helper()
	fe := newFakeFrontend()
	p := &fakeProvider{content: content}
	gen := generate.New(p, sandbox.NewInterpreter())
	return New(&cfg, Deps{Frontend: fe, Generator: gen, BotName: "gencode_bot"}), fe, p
}

func TestRoute_GenerateCode(t *testing.T) {
	app, fe, p := newTestApp(t, config.Default(), "```python\nprint(\"hello\")\n```")

	app.route(context.Background(), gencode.IncomingMessage{ChatID: "c1", UserID: "u1", Text: "/generate_code say hello"})

	texts := fe.texts()
	require.Len(t, texts, 3)
	assert.Equal(t, "Generating code for your prompt: say hello", texts[0])
	assert.Contains(t, texts[2], "hello")
	assert.Equal(t, 1, fe.typing)
	require.Len(t, p.prompts, 1)
	assert.Contains(t, p.prompts[0], "say hello")
}

func TestRoute_EmptyPromptSendsUsage(t *testing.T) {
	app, fe, p := newTestApp(t, config.Default(), "print(1)")

	app.route(context.Background(), gencode.IncomingMessage{ChatID: "c1", Text: "/generate_code   "})

	assert.Equal(t, []string{generate.English.Usage}, fe.texts())
	assert.Empty(t, p.prompts)
}

func TestRoute_HelpAndStart(t *testing.T) {
	app, fe, _ := newTestApp(t, config.Default(), "")

	app.route(context.Background(), gencode.IncomingMessage{ChatID: "c1", Text: "/start"})
	app.route(context.Background(), gencode.IncomingMessage{ChatID: "c1", Text: "/help"})

	assert.Equal(t, []string{generate.English.Usage, generate.English.Usage}, fe.texts())
}

func TestRoute_IgnoresPlainTextAndUnknown(t *testing.T) {
	app, fe, p := newTestApp(t, config.Default(), "print(1)")

	app.route(context.Background(), gencode.IncomingMessage{ChatID: "c1", Text: "hello there"})
	app.route(context.Background(), gencode.IncomingMessage{ChatID: "c1", Text: "/weather"})

	assert.Empty(t, fe.texts())
	assert.Empty(t, p.prompts)
}

func TestRoute_AllowList(t *testing.T) {
	cfg := config.Default()
	cfg.Telegram.AllowedUsers = []string{"owner"}
	app, fe, p := newTestApp(t, cfg, "print(1)")

	app.route(context.Background(), gencode.IncomingMessage{ChatID: "c1", UserID: "stranger", Text: "/generate_code x"})
	assert.Empty(t, fe.texts())
	assert.Empty(t, p.prompts)

	app.route(context.Background(), gencode.IncomingMessage{ChatID: "c1", UserID: "owner", Text: "/help"})
	assert.Len(t, fe.texts(), 1)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		text string
		want command
		ok   bool
	}{
		{"plain", "/generate_code add two numbers", command{cmdGenerate, "add two numbers"}, true},
		{"no arg", "/generate_code", command{cmdGenerate, ""}, true},
		{"addressed", "/generate_code@gencode_bot sum", command{cmdGenerate, "sum"}, true},
		{"addressed case", "/generate_code@GenCode_Bot sum", command{cmdGenerate, "sum"}, true},
		{"other bot", "/generate_code@other_bot sum", command{}, false},
		{"fullwidth slash", "／generate_code 求和", command{cmdGenerate, "求和"}, true},
		{"ideographic space", "/generate_code　求和", command{cmdGenerate, "求和"}, true},
		{"multiline", "/generate_code\nline one\nline two", command{cmdGenerate, "line one\nline two"}, true},
		{"arg untouched", "/generate_code ＡＢＣ", command{cmdGenerate, "ＡＢＣ"}, true},
		{"upper", "/HELP", command{cmdHelp, ""}, true},
		{"not a command", "generate_code x", command{}, false},
		{"bare slash", "/", command{}, false},
		{"empty", "", command{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseCommand(tt.text, "gencode_bot")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_DispatchesAndStops(t *testing.T) {
	app, fe, _ := newTestApp(t, config.Default(), "print(2 * 21)")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	fe.in <- gencode.IncomingMessage{ChatID: "a", Text: "/generate_code answer"}
	fe.in <- gencode.IncomingMessage{ChatID: "b", Text: "/help"}

	require.Eventually(t, func() bool { return len(fe.texts()) == 4 }, 5*time.Second, 10*time.Millisecond)
	close(fe.in)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the frontend closed")
	}
}
