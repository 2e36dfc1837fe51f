package validator

import (
	"errors"
	"regexp"
	"strings"
)

var (
	ErrInvalidUsername       = errors.New("invalid username")
	ErrInvalidPassword       = errors.New("invalid password")
	ErrInvalidTxID           = errors.New("invalid transaction hash")
	ErrInvalidVoucherCode    = errors.New("invalid voucher code")
	ErrInvalidInstallationID = errors.New("invalid installation id")
)

var (
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
	txidRegex     = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	codeRegex     = regexp.MustCompile(`^[A-Z0-9]{6,20}$`)
)

func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}
	return nil
}

// NormalizeTxID lowercases a 64-hex TRON transaction hash.
func NormalizeTxID(txid string) (string, error) {
	trimmed := strings.TrimSpace(txid)
	if !txidRegex.MatchString(trimmed) {
		return "", ErrInvalidTxID
	}
	return strings.ToLower(trimmed), nil
}

func NormalizeVoucherCode(code string) (string, error) {
	cleaned := strings.ToUpper(strings.TrimSpace(code))
	if !codeRegex.MatchString(cleaned) {
		return "", ErrInvalidVoucherCode
	}
	return cleaned, nil
}

// NormalizeInstallationID strips grouping characters and requires the
// 63-digit form Office installation ids use. Leading triple zeros mark a
// mistyped id.
func NormalizeInstallationID(installationID string) (string, error) {
	var digits strings.Builder
	for _, r := range installationID {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ' || r == '-':
		default:
			return "", ErrInvalidInstallationID
		}
	}
	cleaned := digits.String()
	if len(cleaned) != 63 {
		return "", ErrInvalidInstallationID
	}
	if strings.HasPrefix(cleaned, "000") {
		return "", ErrInvalidInstallationID
	}
	return cleaned, nil
}
