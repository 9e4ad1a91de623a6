package validate_test

import (
	"testing"

	"github.com/aussiebroadwan/iotrac/pkg/validate"
	"github.com/stretchr/testify/require"
)

func TestIsStrongPassword(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want bool
	}{
		{"Ab1!aaaa", true},
		{"Password1!", true},
		{"abcdefgh", false},
		{"Ab1aaaaa", false}, // no symbol
		{"AB1!AAAA", false}, // no lowercase
		{"ab1!aaaa", false}, // no uppercase
		{"Abc!aaaa", false}, // no digit
		{"Ab1!aaa", false},  // seven characters
		{"Ab1!ééé", false},  // seven characters, ten bytes
		{"Ab1!éééé", true},
		{"", false},
		{"Ab1 aaaa", true}, // space counts as a symbol
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, validate.IsStrongPassword(tc.in), "password %q", tc.in)
	}
}

func TestIsPlausibleEmail(t *testing.T) {
	t.Parallel()

	require.True(t, validate.IsPlausibleEmail("user@x.com"))
	require.True(t, validate.IsPlausibleEmail("first.last@sub.example.org"))

	require.False(t, validate.IsPlausibleEmail(""))
	require.False(t, validate.IsPlausibleEmail("userx.com"))
	require.False(t, validate.IsPlausibleEmail("@x.com"))
	require.False(t, validate.IsPlausibleEmail("user@"))
	require.False(t, validate.IsPlausibleEmail("user@localhost"))
	require.False(t, validate.IsPlausibleEmail("a@b@c.com"))
	require.False(t, validate.IsPlausibleEmail("us er@x.com"))
}

func TestIsSixDigitCode(t *testing.T) {
	t.Parallel()

	require.True(t, validate.IsSixDigitCode("123456"))
	require.True(t, validate.IsSixDigitCode("000000"))
	require.False(t, validate.IsSixDigitCode("12345"))
	require.False(t, validate.IsSixDigitCode("1234567"))
	require.False(t, validate.IsSixDigitCode("12a456"))
	require.False(t, validate.IsSixDigitCode("１２３４５６"))
}

func TestFieldErrors(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, validate.Email("  "), validate.ErrEmptyEmail)
	require.ErrorIs(t, validate.Email("nope"), validate.ErrInvalidEmail)
	require.NoError(t, validate.Email(" user@x.com "))

	require.ErrorIs(t, validate.LoginPassword(""), validate.ErrEmptyPassword)
	require.ErrorIs(t, validate.LoginPassword("short"), validate.ErrShortPassword)
	require.NoError(t, validate.LoginPassword("longenough"))
	require.ErrorIs(t, validate.LoginPassword("ééééééé"), validate.ErrShortPassword)
	require.NoError(t, validate.LoginPassword("éééééééé"))

	require.ErrorIs(t, validate.Password("weak"), validate.ErrWeakPassword)
	require.NoError(t, validate.Password("Password1!"))

	require.ErrorIs(t, validate.Code("12"), validate.ErrInvalidCode)
	require.NoError(t, validate.Code(" 123456 "))
}

func TestRegistration(t *testing.T) {
	t.Parallel()

	t.Run("valid form", func(t *testing.T) {
		errs := validate.Registration(validate.RegisterInput{
			Email:           "user@x.com",
			Password:        "Password1!",
			ConfirmPassword: "Password1!",
			FullName:        "Test User",
		})
		require.Nil(t, errs)
	})

	t.Run("every field wrong", func(t *testing.T) {
		errs := validate.Registration(validate.RegisterInput{
			Email:           "bad",
			Password:        "weak",
			ConfirmPassword: "other",
		})
		require.Len(t, errs, 4)
		require.Contains(t, errs, "email")
		require.Contains(t, errs, "password")
		require.Contains(t, errs, "confirm_password")
		require.Contains(t, errs, "full_name")
	})

	t.Run("empty confirmation is allowed", func(t *testing.T) {
		errs := validate.Registration(validate.RegisterInput{
			Email:    "user@x.com",
			Password: "Password1!",
			FullName: "Test User",
		})
		require.Nil(t, errs)
	})
}
