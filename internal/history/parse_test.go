package history

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestParseMessages_OrderByPosition(t *testing.T) {
	text := "<USER>Hi</USER><br><BOT>Hello!</BOT><br><USER>Price?</USER><br><SALE>Checking</SALE>"
	msgs := ParseMessages(text)
	if len(msgs) != 4 {
		t.Fatalf("ParseMessages: got %d messages, want 4", len(msgs))
	}
	wantRoles := []string{RoleUser, RoleBot, RoleUser, RoleSale}
	wantContent := []string{"Hi", "Hello!", "Price?", "Checking"}
	for i, m := range msgs {
		if m.Role != wantRoles[i] || m.Content != wantContent[i] {
			t.Errorf("msg[%d]: got {%s %q}, want {%s %q}", i, m.Role, m.Content, wantRoles[i], wantContent[i])
		}
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].SourcePos <= msgs[i-1].SourcePos {
			t.Errorf("msg[%d]: source position not increasing", i)
		}
	}
}

func TestParseMessages_EmptyAndUntagged(t *testing.T) {
	if msgs := ParseMessages(""); len(msgs) != 0 {
		t.Errorf("empty text: got %d messages", len(msgs))
	}
	if msgs := ParseMessages("plain text without tags"); len(msgs) != 0 {
		t.Errorf("untagged text: got %d messages", len(msgs))
	}
	// 空标签不产出消息
	if msgs := ParseMessages("<USER>   </USER>"); len(msgs) != 0 {
		t.Errorf("blank content: got %d messages", len(msgs))
	}
}

func TestParseMessages_MultilineContent(t *testing.T) {
	msgs := ParseMessages("<USER>line1\nline2</USER>")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Content != "line1\nline2" {
		t.Errorf("Content: got %q", msgs[0].Content)
	}
}

func TestChunk_MaxMessages(t *testing.T) {
	var msgs []Message
	for i := 0; i < 60; i++ {
		msgs = append(msgs, Message{Role: RoleUser, Content: "m", SourcePos: i})
	}
	got := Chunk(msgs, 5, 10000)
	if len(got) != 5 {
		t.Fatalf("Chunk: got %d messages, want 5", len(got))
	}
	// 保留最新 5 条且顺序不变
	for i, m := range got {
		if m.SourcePos != 55+i {
			t.Errorf("chunk[%d]: SourcePos=%d, want %d", i, m.SourcePos, 55+i)
		}
	}
}

func TestChunk_MaxChars(t *testing.T) {
	msgs := []Message{
		{Content: strings.Repeat("a", 40)},
		{Content: strings.Repeat("b", 40)},
		{Content: strings.Repeat("c", 40)},
	}
	got := Chunk(msgs, 50, 100)
	if len(got) != 2 {
		t.Fatalf("Chunk: got %d messages, want 2", len(got))
	}
	if got[0].Content[0] != 'b' || got[1].Content[0] != 'c' {
		t.Error("Chunk should drop oldest first")
	}
}

func TestChunk_SingleOversizedMessage(t *testing.T) {
	msgs := []Message{{Content: strings.Repeat("x", 200)}}
	got := Chunk(msgs, 50, 100)
	if len(got) != 1 {
		t.Fatalf("Chunk: got %d messages, want 1", len(got))
	}
	if len(got[0].Content) != 100 {
		t.Errorf("Chunk: content length %d, want 100", len(got[0].Content))
	}
}

func TestTruncate_RuneBoundary(t *testing.T) {
	// "chào" 的 à 占 2 字节，3 字节上限落在其中间
	s := "chào bạn"
	got := Truncate(s, 3)
	if !utf8.ValidString(got) {
		t.Fatalf("Truncate produced invalid UTF-8: %q", got)
	}
	if got != "ch" {
		t.Errorf("Truncate: got %q, want %q", got, "ch")
	}
	if Truncate(s, len(s)) != s {
		t.Error("Truncate at full length should return input unchanged")
	}
	if Truncate(s, 0) != "" {
		t.Error("Truncate with zero budget should return empty")
	}

	// 单条超限消息的截断同样不得切破多字节字符
	msgs := []Message{{Content: strings.Repeat("越", 50)}}
	out := Chunk(msgs, 10, 100)
	if len(out) != 1 {
		t.Fatalf("Chunk: got %d messages, want 1", len(out))
	}
	if !utf8.ValidString(out[0].Content) {
		t.Errorf("Chunk truncation produced invalid UTF-8: %q", out[0].Content)
	}
	if len(out[0].Content) != 99 {
		t.Errorf("Chunk: content length %d, want 99", len(out[0].Content))
	}
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("<USER>Hi</USER>")
	b := Fingerprint("<USER>Hi</USER>")
	c := Fingerprint("<USER>Hi!</USER>")
	if a != b {
		t.Error("same input should give same fingerprint")
	}
	if a == c {
		t.Error("different input should give different fingerprint")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length %d, want 64", len(a))
	}
}
