package model

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// mobilePattern は携帯電話番号の入力規則（1で始まる11桁）。
var mobilePattern = regexp.MustCompile(`^1[3-9]\d{9}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// エラーのフィールド名はJSONタグ名で報告する
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	if err := v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
		return mobilePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}

	return v
}

// fieldMessages はフィールドとルールの組み合わせごとのメッセージ。
var fieldMessages = map[string]string{
	"mobile.required":     "携帯電話番号を入力してください。",
	"mobile.mobile":       "有効な携帯電話番号を入力してください。",
	"code.required":       "認証コードを入力してください。",
	"title.required":      "記事タイトルを入力してください。",
	"title.max":           "記事タイトルは100文字以内で入力してください。",
	"channel_id.required": "チャンネルを選択してください。",
	"channel_id.gt":       "チャンネルを選択してください。",
	"content.required":    "記事本文を入力してください。",
}

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{}
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = fe.Field() + " is invalid (" + fe.Tag() + ")"
		}
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: msg,
		})
	}
	return out
}
