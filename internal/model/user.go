// Package model はドメインモデルを定義する。
package model

// Credential はログインで取得した認可情報を表す。
// Tokenが空の場合は未認証を意味する。RefreshTokenは保存のみで利用しない。
type Credential struct {
	Token        string
	RefreshToken string
}

// IsZero は認可情報が存在しないかを返す。
func (c Credential) IsZero() bool {
	return c.Token == ""
}

// AuthorizationResult は POST /authorization のレスポンスペイロード。
type AuthorizationResult struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// Credential はレスポンスから認可情報を生成する。
func (r AuthorizationResult) Credential() Credential {
	return Credential{Token: r.Token, RefreshToken: r.RefreshToken}
}

// LoginForm はログインフォームの入力値を表す。
type LoginForm struct {
	Mobile string `json:"mobile" validate:"required,mobile"`
	Code   string `json:"code" validate:"required"`
}

// Validate はフォームの入力規則を検証する。
func (f LoginForm) Validate() error {
	return validateStruct(f)
}

// UserProfile は GET /user/profile のレスポンスペイロード。
type UserProfile struct {
	ID       string  `json:"id"`
	Photo    string  `json:"photo"`
	Name     string  `json:"name"`
	Mobile   string  `json:"mobile"`
	Gender   int     `json:"gender"`
	Birthday string  `json:"birthday"`
	Intro    *string `json:"intro"`
}
