// Package nav はクライアント側の画面遷移と保護ルートのガードを提供する。
package nav

// TokenReader は認可トークンの有無を確認するためのインターフェース。
type TokenReader interface {
	Read() (string, bool)
}

// Guard は保護された画面への遷移可否を判定する。
// 判定結果はキャッシュせず、遷移のたびにトークンストアを読み直す。
type Guard struct {
	tokens TokenReader
}

// NewGuard はGuardを生成する。
func NewGuard(tokens TokenReader) *Guard {
	return &Guard{tokens: tokens}
}

// Allow は認可トークンが存在する場合にtrueを返す。
func (g *Guard) Allow() bool {
	_, ok := g.tokens.Read()
	return ok
}
