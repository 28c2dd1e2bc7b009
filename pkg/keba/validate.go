package keba

import (
	"fmt"
	"strings"
)

// expected fields per report identifier. A validated report must carry at
// least one of them in addition to the matching ID.
var reportFields = map[int][]string{
	1: {"Product", "Serial", "Firmware"},
	2: {"State", "Plug", "Input", "Enable sys", "Max curr"},
	3: {"I1", "I2", "I3", "P", "E pres", "E total"},
}

// ValidationError marks a reply that decoded but did not match what the
// issued command requires. Transport does not retry on it; the caller
// decides whether to re-issue.
type ValidationError struct {
	Command string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("keba: invalid response to %q: %s", e.Command, e.Reason)
}

// ValidateResponse checks a decoded reply against the command that produced
// it. Report reads require a matching report identifier plus at least one
// expected field; mutation commands require the success acknowledgement;
// unrecognized commands are accepted unconditionally.
func ValidateResponse(command string, resp Response) error {
	switch {
	case strings.HasPrefix(command, "report "):
		return validateReport(command, resp)
	case isMutation(command):
		return validateAck(command, resp)
	default:
		return nil
	}
}

func isMutation(command string) bool {
	return strings.HasPrefix(command, "ena ") ||
		strings.HasPrefix(command, "curr ")
}

func validateReport(command string, resp Response) error {
	report, ok := resp.(Report)
	if !ok {
		return &ValidationError{Command: command, Reason: fmt.Sprintf("expected report, got %T", resp)}
	}
	wantID := 0
	fmt.Sscanf(command, "report %d", &wantID)
	if report.ID() != wantID {
		return &ValidationError{Command: command, Reason: fmt.Sprintf("report id %d, want %d", report.ID(), wantID)}
	}
	for _, field := range reportFields[wantID] {
		if report.Has(field) {
			return nil
		}
	}
	return &ValidationError{Command: command, Reason: "no expected field present"}
}

func validateAck(command string, resp Response) error {
	ack, ok := resp.(Ack)
	if !ok {
		return &ValidationError{Command: command, Reason: fmt.Sprintf("expected acknowledgement, got %T", resp)}
	}
	if !ack.Success() {
		return &ValidationError{Command: command, Reason: fmt.Sprintf("device answered %s :%s", ack.Key, ack.Value)}
	}
	return nil
}
