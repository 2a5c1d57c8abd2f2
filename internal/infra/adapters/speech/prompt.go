package speech

import "strings"

// Domain vocabulary hint passed to the recognizer as an initial prompt.
// A static list of tabletop-RPG jargon the target sessions are full of,
// concatenated into a single priming string, overridable per call.
var trpgTerms = []string{
	// systems
	"クトゥルフ神話TRPG", "Call of Cthulhu", "CoC",
	"ソード・ワールド", "Sword World",
	"ダンジョンズ&ドラゴンズ", "D&D",

	// table roles
	"ゲームマスター", "GM", "キーパー", "KP",
	"プレイヤーキャラクター", "PC", "ノンプレイヤーキャラクター", "NPC",
	"ダイスロール", "ロール", "判定",

	// dice notation
	"1D100", "1d100", "2D6", "2d6", "1D20", "1d20",
	"ファンブル", "クリティカル", "スペシャル",

	// stats
	"STR", "CON", "POW", "DEX", "APP", "SIZ", "INT", "EDU",
	"HP", "MP", "SAN", "正気度",

	// skills
	"目星", "聞き耳", "図書館", "説得", "心理学",
	"回避", "隠れる", "忍び歩き",

	// session vocabulary
	"シナリオ", "セッション", "シーン",
	"探索", "戦闘", "イベント",
}

// DefaultDomainPrompt returns the built-in priming string.
func DefaultDomainPrompt() string {
	return strings.Join(trpgTerms, "、") + "。"
}
