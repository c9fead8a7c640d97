package user

import (
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/classsphere/backend/core"
)

var (
	roleTag  = "role"
	roleText = "invalid role"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = "password must contain at least 8 characters"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdMaxSim     = .7
	pwdAttrSimTag = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"
)

// InitValidators registers this package's custom validators and translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(validate, translator, roleTag, roleText)

	validate.RegisterStructValidation(userStructValidation, NewUser{})
	validate.RegisterStructValidation(userStructValidation, UpdateUser{})
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
}

// roleValidation checks that the provided role is one of AllRoles.
func roleValidation(fl validator.FieldLevel) bool {
	role := fl.Field().String()
	for _, r := range AllRoles {
		if role == r {
			return true
		}
	}
	return false
}

// userStructValidation does struct level validation on NewUser and UpdateUser.
func userStructValidation(sl validator.StructLevel) {
	switch usr := sl.Current().Interface().(type) {
	case NewUser:
		validatePassword(usr.Password, sl, usr.Name, usr.Username, usr.Email)
	case UpdateUser:
		if usr.Password != "" {
			validatePassword(usr.Password, sl, usr.Name, usr.Username, usr.Email)
		}
	}
}

func validatePassword(pass string, sl validator.StructLevel, usrAttrs ...string) {
	if len(pass) < pwdMinLen {
		sl.ReportError(pass, "password", "Password", pwdMinLenTag, "")
	}

	allNum := true
	for _, r := range pass {
		if !unicode.IsDigit(r) {
			allNum = false
			break
		}
	}
	if allNum {
		sl.ReportError(pass, "password", "Password", pwdNotAllNumTag, "")
	}

	lowPass := strings.ToLower(pass)
	for _, attr := range usrAttrs {
		if attr == "" {
			continue
		}
		attr = strings.ToLower(attr)
		ratio := difflib.NewMatcher(strings.Split(lowPass, ""), strings.Split(attr, "")).QuickRatio()
		if ratio >= pwdMaxSim {
			sl.ReportError(pass, "password", "Password", pwdAttrSimTag, "")
			return
		}
	}
}
