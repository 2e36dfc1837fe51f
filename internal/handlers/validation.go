package handlers

import (
	"errors"
	"strconv"
	"strings"

	"cidbank/internal/money"
)

var errInvalidUnits = errors.New("invalid unit count")

// parseUnits parses a non-negative whole CID unit count.
func parseUnits(input string) (int64, error) {
	value, err := parseSignedUnits(input)
	if err != nil {
		return 0, err
	}
	if value < 0 {
		return 0, errInvalidUnits
	}
	return value, nil
}

func parseSignedUnits(input string) (int64, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return 0, errInvalidUnits
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, errInvalidUnits
	}
	return value, nil
}

func parseSignedMinor(input string) (int64, error) {
	return money.ParseMinor(input)
}
