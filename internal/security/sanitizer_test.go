package security

import "testing"

func TestPlainText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"プレーンテキストはそのまま", "alice", "alice"},
		{"日本語はそのまま", "山田 太郎", "山田 太郎"},
		{"タグを除去", "<b>alice</b>", "alice"},
		{"scriptは中身ごと除去", `bob<script>alert(1)</script>`, "bob"},
		{"イベント属性付きタグを除去", `<img src=x onerror="alert(1)">carol`, "carol"},
		{"アンパサンドは元の文字に戻す", "Tom & Jerry", "Tom & Jerry"},
		{"前後の空白を除去", "  dave  ", "dave"},
		{"空文字列", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.input); got != tt.want {
				t.Errorf("PlainText(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestPlainText_Idempotent(t *testing.T) {
	inputs := []string{"<i>eve</i>", "<p>frank</p> ", "Tom & Jerry"}
	for _, in := range inputs {
		once := PlainText(in)
		if twice := PlainText(once); twice != once {
			t.Errorf("PlainText not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}
