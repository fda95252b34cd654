package auth

import "golang.org/x/crypto/bcrypt"

// MaxPasswordBytes はbcryptが扱える入力長の上限。
const MaxPasswordBytes = 72

// PasswordHasher はパスワードのハッシュ化と照合を行う。
// 平文パスワードは保持しない。
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher はPasswordHasherを生成する。
// costが範囲外の場合はbcrypt.DefaultCostを使用する。
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash はbcryptハッシュを生成する。
func (h *PasswordHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify はパスワードがハッシュと一致するかを返す。
// ハッシュが壊れている場合も不一致として扱う。
func (h *PasswordHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
