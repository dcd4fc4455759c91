package repository

import (
	"strings"

	"charity-auction/internal/validation"
)

// NormalizePhone returns the digits of a formatted phone number, so
// "0991 234 567" and "(0991) 234-567" are stored and matched as "0991234567".
// Input that is not a phone number is only trimmed.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if digits, ok := validation.NormalizePhone(phone); ok {
		return digits
	}
	return phone
}
