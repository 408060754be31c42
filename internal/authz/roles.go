package authz

import "ballouchi/internal/models"

// CanRegisterMerchant reports whether an account may upload merchant
// documents. Only verified professional accounts qualify.
func CanRegisterMerchant(u *models.User) bool {
	return u != nil && u.IsVerified && IsProfessional(u.AccountType)
}

func IsProfessional(accountType models.AccountType) bool {
	return accountType == models.AccountTypeProfessional
}

// SameAccount reports whether a session may act on the record stored under email.
func SameAccount(claims *Claims, email string) bool {
	return claims != nil && claims.Email != "" && claims.Email == email
}
