package auth

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sddion/projectzg/internal/apperr"
)

const (
	opValidateCredentials = "auth.validate_credentials"

	MinUsernameLength = 3
	MaxUsernameLength = 30
	MinPasswordLength = 8
	MaxFullNameLength = 100
)

// Messages returned for credential rule violations.
const (
	MessageMissingSignUpFields = "Email, password, and username are required."
	MessageInvalidEmail        = "Please provide a valid email address."
	MessageUsernameLength      = "Username must be 3-30 characters."
	MessageUsernameCharset     = "Username can only contain letters, numbers, and underscores."
	MessagePasswordLength      = "Password must be at least 8 characters."
	MessagePasswordStrength    = "Password must include lowercase, uppercase, number, and symbol."
	MessageFullNameLength      = "Full name must be 100 characters or less."
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	credentialRules = newCredentialValidator()
)

// SignUpRequest holds the fields accepted by sign-up.
type SignUpRequest struct {
	Email    string `validate:"required,email"`
	Username string `validate:"required,min=3,max=30,username"`
	Password string `validate:"required,min=8,strongpassword"`
	FullName string `validate:"max=100"`
}

func newCredentialValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	mustRegister(validate, "username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	mustRegister(validate, "strongpassword", func(fl validator.FieldLevel) bool {
		return isStrongPassword(fl.Field().String())
	})
	return validate
}

func mustRegister(validate *validator.Validate, tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// NormalizeSignUp trims the request fields.
func NormalizeSignUp(request SignUpRequest) SignUpRequest {
	return SignUpRequest{
		Email:    strings.ToLower(strings.TrimSpace(request.Email)),
		Username: strings.TrimSpace(request.Username),
		Password: request.Password,
		FullName: strings.TrimSpace(request.FullName),
	}
}

// ValidateSignUp checks the request against the credential rules and returns a validation error carrying the
// first violated rule's message. Required fields are checked before anything else.
func ValidateSignUp(request SignUpRequest) error {
	if request.Email == "" || request.Password == "" || request.Username == "" {
		return apperr.New(apperr.KindValidation, opValidateCredentials, "missing_fields", MessageMissingSignUpFields, nil)
	}
	err := credentialRules.Struct(request)
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return apperr.New(apperr.KindValidation, opValidateCredentials, "invalid", "", err)
	}
	return credentialViolation(fieldErrors[0])
}

// ValidateUsername applies the username rules on their own.
func ValidateUsername(username string) error {
	if err := credentialRules.Var(username, "min=3,max=30"); err != nil {
		return apperr.New(apperr.KindValidation, opValidateCredentials, "username_length", MessageUsernameLength, nil)
	}
	if err := credentialRules.Var(username, "username"); err != nil {
		return apperr.New(apperr.KindValidation, opValidateCredentials, "username_charset", MessageUsernameCharset, nil)
	}
	return nil
}

// ValidateNewPassword applies the length rule used by password updates.
func ValidateNewPassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperr.New(apperr.KindValidation, opValidateCredentials, "password_length", MessagePasswordLength, nil)
	}
	return nil
}

// IsValidUsername reports whether a candidate satisfies the username rules.
func IsValidUsername(username string) bool {
	return ValidateUsername(username) == nil
}

func credentialViolation(fieldError validator.FieldError) error {
	reason := strings.ToLower(fieldError.Field()) + "_" + fieldError.Tag()
	message := ""
	switch fieldError.Field() {
	case "Email":
		message = MessageInvalidEmail
	case "Username":
		if fieldError.Tag() == "username" {
			message = MessageUsernameCharset
		} else {
			message = MessageUsernameLength
		}
	case "Password":
		if fieldError.Tag() == "strongpassword" {
			message = MessagePasswordStrength
		} else {
			message = MessagePasswordLength
		}
	case "FullName":
		message = MessageFullNameLength
	}
	return apperr.New(apperr.KindValidation, opValidateCredentials, reason, message, nil)
}

// passwordSymbols is the accepted symbol set; other punctuation, whitespace and non-ASCII runes do not count.
const passwordSymbols = `!@#$%^&*()_+-=[]{};':"\|,.<>/?`

func isStrongPassword(password string) bool {
	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, r):
			hasSymbol = true
		}
	}
	return hasLower && hasUpper && hasDigit && hasSymbol
}
