package auth

import "github.com/jellydator/validation"

// RegisterInput は利用者登録フォームの入力。
type RegisterInput struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Validate はユーザー名3〜64文字、パスワード6文字以上かつ確認用と一致することを検証する。
func (in RegisterInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username,
			validation.Required.Error("Username is required"),
			validation.Length(3, 64).Error("Username must be between 3 and 64 characters"),
		),
		validation.Field(&in.Password,
			validation.Required.Error("Password is required"),
			validation.Length(6, 0).Error("Password must be at least 6 characters"),
			validation.By(maxPasswordBytes),
		),
		validation.Field(&in.ConfirmPassword,
			validation.Required.Error("Please confirm your password"),
			validation.By(func(v any) error {
				if s, _ := v.(string); s != in.Password {
					return validation.NewError("validation_password_mismatch", "Passwords must match")
				}
				return nil
			}),
		),
	)
}

// LoginInput はログインフォームの入力。
type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// Validate は必須項目を検証する。
func (in LoginInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required.Error("Username is required")),
		validation.Field(&in.Password, validation.Required.Error("Password is required")),
	)
}

func maxPasswordBytes(v any) error {
	if s, _ := v.(string); len(s) > MaxPasswordBytes {
		return validation.NewError("validation_password_too_long", "Password must be at most 72 bytes")
	}
	return nil
}
