package bot

import (
	"strconv"
	"strings"

	"github.com/taskerhq/taskerchat/internal/models"
)

// numericSuffix extracts the trailing digit run of an order number, with
// leading zeros stripped: "WO-2025-00123" -> "123".
func numericSuffix(number string) string {
	end := len(number)
	start := end
	for start > 0 && number[start-1] >= '0' && number[start-1] <= '9' {
		start--
	}
	return strings.TrimLeft(number[start:end], "0")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// MatchWorkOrder applies the fuzzy order-number rule to a candidate input:
// after uppercasing, an order matches when its number equals, contains, or is
// contained by the input, or when a purely numeric input equals the order's
// numeric suffix or its row ID. The first match wins.
func MatchWorkOrder(orders []models.WorkOrder, input string) *models.WorkOrder {
	normalized := strings.ToUpper(strings.TrimSpace(input))
	if normalized == "" {
		return nil
	}
	for i := range orders {
		number := strings.ToUpper(orders[i].Number)
		if number == normalized ||
			strings.Contains(number, normalized) ||
			strings.Contains(normalized, number) {
			return &orders[i]
		}
		if isNumeric(normalized) {
			trimmed := strings.TrimLeft(normalized, "0")
			if trimmed != "" && trimmed == numericSuffix(orders[i].Number) {
				return &orders[i]
			}
			if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil && n == orders[i].ID {
				return &orders[i]
			}
		}
	}
	return nil
}
