package openai

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/yungbote/memstream-backend/internal/platform/logger"
)

func TestNewRequestCarriesGenerationKnobs(t *testing.T) {
	t.Parallel()

	temp := 0.2
	c := &client{model: "m-test", maxTokens: 512, temperature: &temp}
	req := c.newRequest("sys", "usr")

	if req.MaxOutputTokens != 512 {
		t.Fatalf("max output tokens = %d, want 512", req.MaxOutputTokens)
	}
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"max_output_tokens":512`) {
		t.Fatalf("body missing max_output_tokens: %s", raw)
	}
	if !strings.Contains(string(raw), `"temperature":0.2`) {
		t.Fatalf("body missing temperature: %s", raw)
	}
}

func TestNewRequestOmitsUnsetKnobs(t *testing.T) {
	t.Parallel()

	c := &client{model: "m-test"}
	raw, err := json.Marshal(c.newRequest("sys", "usr"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(raw)
	if strings.Contains(body, "max_output_tokens") || strings.Contains(body, "temperature") {
		t.Fatalf("unset knobs serialized: %s", body)
	}
}

func TestNewClientReadsMaxTokens(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_MAX_TOKENS", "256")

	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	base, err := NewClient(log)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	c, ok := base.(*client)
	if !ok {
		t.Fatalf("unexpected client type %T", base)
	}
	if c.maxTokens != 256 {
		t.Fatalf("maxTokens = %d, want 256", c.maxTokens)
	}

	// Overrides clone the generation knobs along with the credentials.
	over, ok := WithOverrides(base, "other-key", "", "other-model").(*client)
	if !ok {
		t.Fatalf("unexpected override type")
	}
	if over.maxTokens != 256 || over.model != "other-model" || over.apiKey != "other-key" {
		t.Fatalf("override clone = {maxTokens:%d model:%q}", over.maxTokens, over.model)
	}
}
