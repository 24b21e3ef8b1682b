package validator

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
)

func (v *Validator) registerCustomTranslations() {
	v.registerAll(LangEN, map[string]string{
		TagLibrary:  "{0} must be 1-64 letters, digits, '_', '-' or '.'",
		TagNotBlank: "{0} must not be blank",
		TagThreadID: "{0} must be a valid thread id",
		TagTrimmed:  "{0} must not have leading or trailing spaces",
	})
	v.registerAll(LangZH, map[string]string{
		TagLibrary:  "{0}只能包含1-64个字母、数字、'_'、'-'或'.'",
		TagNotBlank: "{0}不能为空",
		TagThreadID: "{0}必须是有效的会话线程ID",
		TagTrimmed:  "{0}不能有前导或尾随空格",
	})
}

func (v *Validator) registerAll(lang string, messages map[string]string) {
	trans := v.GetTranslator(lang)
	if trans == nil {
		return
	}
	for tag, message := range messages {
		registerTranslation(v.validate, trans, tag, message)
	}
}

func registerTranslation(validate *validator.Validate, trans ut.Translator, tag, message string) {
	_ = validate.RegisterTranslation(tag, trans,
		func(ut ut.Translator) error {
			return ut.Add(tag, message, true)
		},
		func(ut ut.Translator, fe validator.FieldError) string {
			t, _ := ut.T(tag, fe.Field())
			return t
		},
	)
}
