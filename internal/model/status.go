package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type Status string

const (
	StatusDraft    Status = "Draft"
	StatusPending  Status = "Pending"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// ordinal order is part of the wire format: clients may send 0-3
var statuses = []Status{StatusDraft, StatusPending, StatusApproved, StatusRejected}

func (s Status) Valid() bool {
	for _, v := range statuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s Status) String() string { return string(s) }

// Ordinal is the position of s in the workflow, or -1.
func (s Status) Ordinal() int {
	for i, v := range statuses {
		if s == v {
			return i
		}
	}
	return -1
}

// ParseStatus accepts a status name in any case or its ordinal.
func ParseStatus(raw string) (Status, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		if n < 0 || n >= len(statuses) {
			return "", fmt.Errorf("unknown status %d", n)
		}
		return statuses[n], nil
	}
	for _, v := range statuses {
		if strings.EqualFold(raw, string(v)) {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", raw)
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		v, err := ParseStatus(strconv.Itoa(n))
		if err != nil {
			return err
		}
		*s = v
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("status must be a string or number")
	}
	v, err := ParseStatus(str)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
