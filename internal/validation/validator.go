// Package validation はgo-playground/validatorによる入力値の検証を提供する。
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"

	"github.com/hitoshi/eventdesk/internal/model"
)

// Validator はvalidator.Validateをラップし、検証エラーをmodel.ValidationErrorに変換する。
type Validator struct {
	v *validator.Validate
}

// New は新しいValidatorを生成する。
// エラーのフィールド名にはJSONタグ名を使う。
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	// 空白のみの入力を未入力として扱う
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}

	return &Validator{v: v}
}

// Validate は構造体を検証する。
// 失敗したフィールドが1つでもあれば*model.ValidationErrorを返す。
func (v *Validator) Validate(s any) error {
	if err := v.v.Struct(s); err != nil {
		return v.formatError(err)
	}
	return nil
}

// formatError はvalidatorのエラーをmodel.ValidationErrorに変換する。
func (v *Validator) formatError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	fields := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		fields[e.Field()] = friendlyMessage(e)
	}
	return &model.ValidationError{Fields: fields}
}

// friendlyMessage はタグごとの表示用メッセージを返す。
func friendlyMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "notblank":
		return "is required"
	case "max":
		return fmt.Sprintf("must not exceed %s characters", e.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", e.Param())
	case "oneof":
		return "must be one of: " + e.Param()
	case "datetime":
		return "must use the format " + layoutHint(e.Param())
	default:
		return "is invalid"
	}
}

// layoutHint はGoの時刻レイアウトを利用者向けの表記に置き換える。
func layoutHint(layout string) string {
	return strings.NewReplacer(
		"2006", "YYYY",
		"01", "MM",
		"02", "DD",
		"15", "hh",
		"04", "mm",
	).Replace(layout)
}
