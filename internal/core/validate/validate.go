// Package validate provides shared validation functions.
package validate

import (
	"fmt"
	"strings"

	"github.com/hay-kot/criterio"
	"github.com/google/uuid"
)

// ItemText validates item text is non-empty after trimming whitespace.
func ItemText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text is required")
	}
	return nil
}

// ItemTextField returns a criterio validator result for item text.
func ItemTextField(field, text string) error {
	return criterio.Run(field, text, ItemText)
}

// ItemID validates an item identifier is a well-formed UUID.
func ItemID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("not a valid item id")
	}
	return nil
}

// ItemIDField returns a criterio validator result for item ids.
func ItemIDField(field, id string) error {
	return criterio.Run(field, id, ItemID)
}
