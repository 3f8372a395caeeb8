package match

import (
	"context"
	"math"
	"testing"

	"mercator-hq/auditor/pkg/audit"
)

func TestFormatMatcher_CleanChunkPasses(t *testing.T) {
	e := NewEngine(nil)
	r := rule(audit.RuleFormat, 0, map[string]any{})
	text := "联系邮箱test@example.com，电话13812345678，金额¥1,000.00，日期2024-01-15。"

	got := e.Match(context.Background(), r, []audit.DocumentChunk{chunk("c0", text, 0)})
	if len(got) != 1 {
		t.Fatalf("got %d results, want 1", len(got))
	}
	if got[0].Status != audit.StatusPassed || got[0].Score != 1.0 {
		t.Errorf("status=%s score=%v evidences=%+v, want PASSED 1.0", got[0].Status, got[0].Score, got[0].Evidences)
	}
}

func TestFormatMatcher_Violations(t *testing.T) {
	tests := []struct {
		name       string
		params     map[string]any
		text       string
		wantCheck  string
		wantStatus audit.Status
	}{
		{"bad email", map[string]any{"checks": "email"}, "contact a@b now", "email", audit.StatusFailed},
		{"bad phone", map[string]any{"checks": "phone"}, "电话10012345678。", "phone", audit.StatusFailed},
		{"bad id card", map[string]any{"checks": "id_card"}, "身份证110105194912310021", "id_card", audit.StatusFailed},
		{"bad currency", map[string]any{"checks": "currency"}, "金额¥1,00.5", "currency", audit.StatusFailed},
		{"disallowed date", map[string]any{"checks": "date"}, "日期2024/1/5", "date", audit.StatusFailed},
		{"forbidden element", map[string]any{"checks": "forbidden_elements", "forbidden_elements": "TBD"}, "amount tbd", "forbidden_elements", audit.StatusFailed},
		{"too short", map[string]any{"checks": "length", "min_length": 10}, "短文本", "length", audit.StatusFailed},
		{"control char within budget", map[string]any{"checks": "control_chars", "max_violations": 1}, "abc\x01", "control_chars", audit.StatusWarning},
	}
	e := NewEngine(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := rule(audit.RuleFormat, 0, tt.params)
			if r.ParamError != nil {
				t.Fatalf("ParamError = %v", r.ParamError)
			}
			got := e.Match(context.Background(), r, []audit.DocumentChunk{chunk("c0", tt.text, 0)})
			if len(got) != 1 {
				t.Fatalf("got %d results, want 1", len(got))
			}
			res := got[0]
			if res.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", res.Status, tt.wantStatus)
			}
			if len(res.Evidences) != 1 {
				t.Fatalf("got %d evidences, want 1: %+v", len(res.Evidences), res.Evidences)
			}
			if res.Evidences[0].Context["check"] != tt.wantCheck {
				t.Errorf("check = %v, want %s", res.Evidences[0].Context["check"], tt.wantCheck)
			}
			if math.Abs(res.Score-0.9) > 1e-9 {
				t.Errorf("score = %v, want 0.9", res.Score)
			}
		})
	}
}

func TestFormatMatcher_RequiredElementsOnFirstChunk(t *testing.T) {
	e := NewEngine(nil)
	r := rule(audit.RuleFormat, 0, map[string]any{
		"checks":            "required_elements",
		"required_elements": []any{"签名", "日期"},
		"max_violations":    1,
	})
	got := e.Match(context.Background(), r, []audit.DocumentChunk{
		chunk("c0", "合同正文", 0),
		chunk("c1", "日期：见附件", 12),
	})
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	first := got[0]
	if first.Status != audit.StatusWarning || len(first.Evidences) != 1 {
		t.Fatalf("first chunk = %s with %d evidences, want WARNING with 1", first.Status, len(first.Evidences))
	}
	ev := first.Evidences[0]
	if ev.Context["element"] != "签名" || ev.StartPos != 0 || ev.EndPos != 0 {
		t.Errorf("evidence = %+v, want empty span for 签名", ev)
	}
	if got[1].Status != audit.StatusPassed {
		t.Errorf("second chunk status = %s, want PASSED", got[1].Status)
	}
}

func TestFormatScoreAndStatus(t *testing.T) {
	tests := []struct {
		violations, max int
		wantScore       float64
		wantStatus      audit.Status
	}{
		{0, 0, 1.0, audit.StatusPassed},
		{1, 0, 0.9, audit.StatusFailed},
		{3, 5, 0.7, audit.StatusWarning},
		{5, 5, 0.5, audit.StatusWarning},
		{12, 20, 0, audit.StatusWarning},
	}
	for _, tt := range tests {
		if got := formatScore(tt.violations); math.Abs(got-tt.wantScore) > 1e-9 {
			t.Errorf("formatScore(%d) = %v, want %v", tt.violations, got, tt.wantScore)
		}
		if got := formatStatus(tt.violations, tt.max); got != tt.wantStatus {
			t.Errorf("formatStatus(%d, %d) = %s, want %s", tt.violations, tt.max, got, tt.wantStatus)
		}
	}
}

func TestValidIDCard(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"11010519491231002X", true},
		{"11010519491231002x", true},
		{"110105194912310021", false},
		{"11010519491332002X", false},
		{"110105491231002", true},
		{"110105491331002", false},
		{"1234", false},
	}
	for _, tt := range tests {
		if got := ValidIDCard(tt.id); got != tt.want {
			t.Errorf("ValidIDCard(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
