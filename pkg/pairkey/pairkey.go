// Package pairkey derives canonical lookup keys for two-party discussions.
// Key derivation is pure: the same pair of participants always yields the same
// key regardless of argument order, which is what makes duplicate-discussion
// detection possible at the store layer.
package pairkey

import (
	"strings"

	"tradetalk/pkg/errors"
)

const separator = "_"

// Direct returns the canonical key for a generic two-party discussion: the two
// participant ids sorted ascending and joined. Direct(a, b) == Direct(b, a).
func Direct(a, b string) (string, error) {
	if err := validatePair(a, b); err != nil {
		return "", err
	}
	if a > b {
		a, b = b, a
	}
	return a + separator + b, nil
}

// Marketplace returns the canonical key for a product-scoped discussion. The
// product id is folded in front of the sorted pair, so the same two users can
// hold independent discussions about different products.
func Marketplace(productID, a, b string) (string, error) {
	if strings.TrimSpace(productID) == "" {
		return "", errors.InvalidParticipants("Product id must not be empty")
	}
	pair, err := Direct(a, b)
	if err != nil {
		return "", err
	}
	return productID + separator + pair, nil
}

func validatePair(a, b string) error {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return errors.InvalidParticipants("Participant ids must not be empty")
	}
	if a == b {
		return errors.InvalidParticipants("A participant cannot open a discussion with themselves")
	}
	return nil
}
