package firewall

import "strings"

// Action is what a rule does with matching frames.
type Action int

const (
	ActionOther Action = iota
	ActionDrop
	ActionAccept
	ActionMark
)

func (a Action) String() string {
	switch a {
	case ActionDrop:
		return "drop"
	case ActionAccept:
		return "accept"
	case ActionMark:
		return "mark"
	}
	return "other"
}

// RuleInfo is the structured classification of a rule line. It is computed
// once per line; rendering and description logic switch on it instead of
// re-scanning the text.
type RuleInfo struct {
	Action        Action
	HasSource     bool
	HasDest       bool
	BroadcastDest bool
}

const broadcastMAC = "ff:ff:ff:ff:ff:ff"

// Classify parses a canonicalized rule line into a RuleInfo.
func Classify(c CanonicalRule) RuleInfo {
	var info RuleInfo
	fields := strings.Fields(c.Text)
	for i, f := range fields {
		next := ""
		if i+1 < len(fields) {
			next = fields[i+1]
		}
		switch f {
		case "-j":
			switch next {
			case "DROP":
				info.Action = ActionDrop
			case "ACCEPT":
				info.Action = ActionAccept
			case "mark":
				info.Action = ActionMark
			}
		case "-s":
			info.HasSource = true
		case "-d":
			info.HasDest = true
			if next == broadcastMAC || strings.EqualFold(next, "Broadcast") {
				info.BroadcastDest = true
			}
		}
	}
	return info
}
