// Package session はログイン状態とユーザープロフィールを保持する状態コンテナを提供する。
//
// 状態はReduceによってのみ遷移し、Container.Dispatchが1件ずつ直列に適用する。
// 非同期操作（ログイン、プロフィール取得）の進行状況はAsyncで表し、
// 「読み込み中かつエラーあり」のような矛盾した状態は表現できない。
package session

import "github.com/hitoshi/geekcms/internal/model"

// Async は非同期操作1種類の進行状況。Idle, Pending, Fulfilled, Rejectedのいずれか。
type Async interface {
	isAsync()
}

// Idle は操作が未実行であることを示す。
type Idle struct{}

// Pending は操作が実行中であることを示す。
type Pending struct{}

// Fulfilled は直近の操作が成功したことを示す。
type Fulfilled struct{}

// Rejected は直近の操作が失敗したことを示す。Reasonは画面表示用の理由。
type Rejected struct {
	Reason string
}

func (Idle) isAsync()      {}
func (Pending) isAsync()   {}
func (Fulfilled) isAsync() {}
func (Rejected) isAsync()  {}

// IsPending は操作が実行中かを返す。
func IsPending(a Async) bool {
	_, ok := a.(Pending)
	return ok
}

// Reason は操作が失敗している場合にその理由を返す。
func Reason(a Async) (string, bool) {
	r, ok := a.(Rejected)
	if !ok {
		return "", false
	}
	return r.Reason, true
}

// State はセッションの状態。
type State struct {
	Credential   model.Credential
	Profile      *model.UserProfile
	Login        Async
	ProfileFetch Async
}

// Initial は永続化された認可情報から初期状態を生成する。
func Initial(cred model.Credential) State {
	return State{
		Credential:   cred,
		Login:        Idle{},
		ProfileFetch: Idle{},
	}
}

// Authenticated は認可情報を保持しているかを返す。
func (s State) Authenticated() bool {
	return !s.Credential.IsZero()
}

// Loading はいずれかの操作が実行中かを返す。
func (s State) Loading() bool {
	return IsPending(s.Login) || IsPending(s.ProfileFetch)
}

// Error は表示すべきエラー理由を返す。ログインの失敗をプロフィール取得の失敗より優先する。
func (s State) Error() (string, bool) {
	if r, ok := Reason(s.Login); ok {
		return r, true
	}
	return Reason(s.ProfileFetch)
}

// Action は状態遷移を引き起こす意図。
type Action interface {
	isAction()
}

// LoginPending はログイン開始。
type LoginPending struct{}

// LoginFulfilled はログイン成功。
type LoginFulfilled struct {
	Credential model.Credential
}

// LoginRejected はログイン失敗。
type LoginRejected struct {
	Reason string
}

// ProfilePending はプロフィール取得開始。
type ProfilePending struct{}

// ProfileFulfilled はプロフィール取得成功。
type ProfileFulfilled struct {
	Profile *model.UserProfile
}

// ProfileRejected はプロフィール取得失敗。
type ProfileRejected struct {
	Reason string
}

// LoggedOut はログアウト。
type LoggedOut struct{}

// Rehydrated はトークンストアからの状態の再構築。
type Rehydrated struct {
	Credential model.Credential
}

func (LoginPending) isAction()     {}
func (LoginFulfilled) isAction()   {}
func (LoginRejected) isAction()    {}
func (ProfilePending) isAction()   {}
func (ProfileFulfilled) isAction() {}
func (ProfileRejected) isAction()  {}
func (LoggedOut) isAction()        {}
func (Rehydrated) isAction()       {}

// Reduce は状態と意図から次の状態を返す。副作用を持たない。
func Reduce(s State, a Action) State {
	switch a := a.(type) {
	case LoginPending:
		s.Login = Pending{}
	case LoginFulfilled:
		s.Credential = a.Credential
		s.Login = Fulfilled{}
	case LoginRejected:
		s.Login = Rejected{Reason: a.Reason}
	case ProfilePending:
		s.ProfileFetch = Pending{}
	case ProfileFulfilled:
		s.Profile = a.Profile
		s.ProfileFetch = Fulfilled{}
	case ProfileRejected:
		s.ProfileFetch = Rejected{Reason: a.Reason}
	case LoggedOut:
		s = Initial(model.Credential{})
	case Rehydrated:
		s = Initial(a.Credential)
	}
	return s
}
