package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Callback actions.
const (
	actionRate    = "rate"
	actionHistory = "hist"
)

// Rating callback polarities.
const (
	rateUp   = "up"
	rateDown = "down"
)

// RateCallbackData builds the callback data of a rating button.
func RateCallbackData(positive bool, gen uint64) string {
	polarity := rateDown
	if positive {
		polarity = rateUp
	}
	return fmt.Sprintf("%s:%s:%d", actionRate, polarity, gen)
}

// ParseRateCallback parses "up:<gen>" or "down:<gen>".
func ParseRateCallback(arg string) (positive bool, gen uint64, err error) {
	polarity, genStr, ok := strings.Cut(arg, ":")
	if !ok {
		return false, 0, errors.New("malformed rating callback")
	}
	switch polarity {
	case rateUp:
		positive = true
	case rateDown:
	default:
		return false, 0, fmt.Errorf("unknown rating %q", polarity)
	}
	gen, err = strconv.ParseUint(genStr, 10, 64)
	if err != nil {
		return false, 0, fmt.Errorf("invalid generation %q", genStr)
	}
	return positive, gen, nil
}

// HistoryCallbackData builds the callback data of a history re-submit button.
func HistoryCallbackData(index int) string {
	return fmt.Sprintf("%s:%d", actionHistory, index)
}

// ParseLoginArgs extracts an email and password from /login arguments.
func ParseLoginArgs(args string) (email, password string, err error) {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return "", "", errors.New("usage: /login <email> <password>")
	}
	if !strings.Contains(parts[0], "@") {
		return "", "", fmt.Errorf("invalid email %q", parts[0])
	}
	return parts[0], parts[1], nil
}

// AdminArgs is a parsed /admin subcommand.
type AdminArgs struct {
	Action string
	Arg    string
}

// ParseAdminArgs parses "[sort <key>|toggle <id>|all|clear|refresh]".
func ParseAdminArgs(args string) (AdminArgs, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return AdminArgs{}, nil
	}
	action := strings.ToLower(parts[0])
	switch action {
	case "sort", "toggle":
		if len(parts) != 2 {
			return AdminArgs{}, fmt.Errorf("usage: /admin %s <value>", action)
		}
		return AdminArgs{Action: action, Arg: parts[1]}, nil
	case "all", "clear", "refresh":
		if len(parts) != 1 {
			return AdminArgs{}, fmt.Errorf("usage: /admin %s", action)
		}
		return AdminArgs{Action: action}, nil
	default:
		return AdminArgs{}, fmt.Errorf("unknown admin action %q", parts[0])
	}
}
