// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer はタスクの自由記述欄を画面表示用のHTML断片に変換する。
// 保存されている本文は変更せず、表示時にのみ適用する。
package security

import (
	"html"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はプレーンテキストを表示用HTMLに変換するインターフェースを定義する。
type TextSanitizerService interface {
	// ToHTML はテキストをエスケープし、改行を<br>に置き換えたHTMLを返す。
	// 入力中のマークアップは文字として表示され、<br>以外の要素は出力されない。
	ToHTML(raw string) template.HTML
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフであり、共有して使用する。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer は<br>のみを許可するポリシーでTextSanitizerを生成する。
func NewTextSanitizer() *textSanitizer {
	policy := bluemonday.NewPolicy()
	policy.AllowElements("br")
	return &textSanitizer{policy: policy}
}

// ToHTML は行ごとにエスケープしてから<br>で連結し、ポリシーを通した結果を返す。
func (s *textSanitizer) ToHTML(raw string) template.HTML {
	if raw == "" {
		return ""
	}
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = html.EscapeString(line)
	}
	return template.HTML(s.policy.Sanitize(strings.Join(lines, "<br>")))
}

var _ TextSanitizerService = (*textSanitizer)(nil)
