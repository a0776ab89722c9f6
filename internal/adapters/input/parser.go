package input

import (
	"encoding/json"
	"errors"
	"net/netip"
	"strings"
	"time"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
)

var (
	ErrUnparsableLine = errors.New("unrecognized auth log line")

	syslogTimeLayout = "Jan _2 15:04:05"
)

const maxLineLength = 8192

// AuthLogParser extracts SSH authentication events from sshd syslog lines,
// e.g. "Jan 12 03:04:05 bastion sshd[1234]: Failed password for root from
// 203.0.113.7 port 52814 ssh2". Both classic syslog stamps and rsyslog
// ISO-8601 stamps are handled. Lines from other daemons and sshd chatter
// that carries no authentication outcome yield ErrUnparsableLine.
type AuthLogParser struct{}

func NewAuthLogParser() *AuthLogParser {
	return &AuthLogParser{}
}

func (p *AuthLogParser) Parse(line string) (*domain.Event, error) {
	if len(line) > maxLineLength {
		line = line[:maxLineLength]
	}
	if len(line) < 16 {
		return nil, ErrUnparsableLine
	}

	ts, pos, err := parseStamp(line)
	if err != nil {
		return nil, err
	}

	msg, ok := sshdMessage(line, pos)
	if !ok {
		return nil, ErrUnparsableLine
	}

	ev := &domain.Event{Timestamp: ts, RawLine: strings.Clone(line)}
	if err := parseMessage(ev, msg); err != nil {
		return nil, err
	}
	ev.Normalize()
	return ev, nil
}

func (p *AuthLogParser) Format() string {
	return "auth"
}

func (p *AuthLogParser) Validate(line string) bool {
	return len(line) >= 16 && strings.Contains(line, "sshd")
}

func parseStamp(line string) (time.Time, int, error) {
	if line[0] >= '0' && line[0] <= '9' {
		end := skipUntil(line, 0, ' ')
		if end == -1 {
			return time.Time{}, 0, ErrUnparsableLine
		}
		ts, err := time.Parse(time.RFC3339Nano, line[:end])
		if err != nil {
			return time.Time{}, 0, ErrUnparsableLine
		}
		return ts, end + 1, nil
	}

	ts, err := time.ParseInLocation(syslogTimeLayout, line[:15], time.Local)
	if err != nil {
		return time.Time{}, 0, ErrUnparsableLine
	}
	return resolveYear(ts, time.Now()), 16, nil
}

// Classic syslog stamps carry no year. Assume the current one unless that
// places the event in the future, which happens when December lines are
// read in January.
func resolveYear(ts, now time.Time) time.Time {
	ts = ts.AddDate(now.Year(), 0, 0)
	if ts.After(now.Add(24 * time.Hour)) {
		ts = ts.AddDate(-1, 0, 0)
	}
	return ts
}

func sshdMessage(line string, pos int) (string, bool) {
	rest := line[pos:]
	if idx := strings.Index(rest, "sshd["); idx != -1 {
		rest = rest[idx+len("sshd["):]
		end := skipUntil(rest, 0, ']')
		if end == -1 || len(rest) < end+3 || rest[end+1] != ':' || rest[end+2] != ' ' {
			return "", false
		}
		return rest[end+3:], true
	}
	if idx := strings.Index(rest, "sshd: "); idx != -1 {
		return rest[idx+len("sshd: "):], true
	}
	return "", false
}

func parseMessage(ev *domain.Event, msg string) error {
	switch {
	case strings.HasPrefix(msg, "Failed password for "):
		ev.EventType = domain.EventFailedPassword
		return parseUserAddr(ev, msg[len("Failed password for "):])

	case strings.HasPrefix(msg, "Accepted "):
		// Covers password, publickey and keyboard-interactive methods.
		rest := msg[len("Accepted "):]
		idx := strings.Index(rest, " for ")
		if idx == -1 {
			return ErrUnparsableLine
		}
		ev.EventType = domain.EventAcceptedPassword
		return parseUserAddr(ev, rest[idx+len(" for "):])

	case strings.HasPrefix(msg, "Invalid user "):
		ev.EventType = domain.EventInvalidUser
		return parseUserAddr(ev, msg[len("Invalid user "):])

	case strings.HasPrefix(msg, "Received disconnect from "):
		ev.EventType = domain.EventDisconnect
		addr, err := leadingAddr(msg[len("Received disconnect from "):])
		if err != nil {
			return err
		}
		ev.SourceIP = addr
		return nil

	case strings.HasPrefix(msg, "Disconnected from "):
		ev.EventType = domain.EventDisconnect
		return parseDisconnect(ev, msg[len("Disconnected from "):])

	case strings.HasPrefix(msg, "Connection closed by "):
		ev.EventType = domain.EventDisconnect
		return parseDisconnect(ev, msg[len("Connection closed by "):])
	}
	return ErrUnparsableLine
}

// parseUserAddr handles "<user> from <ip> port <n> ssh2" with an optional
// "invalid user " prefix. sshd prints an empty username for some probes;
// Normalize maps that to "unknown" later.
func parseUserAddr(ev *domain.Event, s string) error {
	s = strings.TrimPrefix(s, "invalid user ")
	idx := strings.LastIndex(s, " from ")
	if idx == -1 {
		return ErrUnparsableLine
	}
	addr, err := leadingAddr(s[idx+len(" from "):])
	if err != nil {
		return err
	}
	ev.Username = strings.Clone(s[:idx])
	ev.SourceIP = addr
	return nil
}

// parseDisconnect handles the close variants: "<ip> port <n>",
// "user <user> <ip> port <n>", "authenticating user <user> <ip> port <n>"
// and "invalid user <user> <ip> port <n>".
func parseDisconnect(ev *domain.Event, s string) error {
	s = strings.TrimPrefix(s, "authenticating ")
	s = strings.TrimPrefix(s, "invalid ")
	if !strings.HasPrefix(s, "user ") {
		addr, err := leadingAddr(s)
		if err != nil {
			return err
		}
		ev.SourceIP = addr
		return nil
	}

	s = s[len("user "):]
	if idx := strings.LastIndex(s, " port "); idx != -1 {
		s = s[:idx]
	}
	sp := strings.LastIndexByte(s, ' ')
	if sp == -1 {
		return ErrUnparsableLine
	}
	addr, err := leadingAddr(s[sp+1:])
	if err != nil {
		return err
	}
	ev.Username = strings.Clone(s[:sp])
	ev.SourceIP = addr
	return nil
}

// leadingAddr parses the address token at the start of s. Old sshd builds
// terminate the address with a colon ("from 1.2.3.4: 11:"), so a trailing
// colon is stripped before parsing.
func leadingAddr(s string) (string, error) {
	end := skipUntil(s, 0, ' ')
	if end == -1 {
		end = len(s)
	}
	tok := strings.TrimSuffix(s[:end], ":")
	addr, err := netip.ParseAddr(tok)
	if err != nil {
		return "", ErrUnparsableLine
	}
	return addr.String(), nil
}

func skipUntil(s string, pos int, char byte) int {
	for i := pos; i < len(s); i++ {
		if s[i] == char {
			return i
		}
	}
	return -1
}

type jsonEvent struct {
	Timestamp string `json:"timestamp"`
	SourceIP  string `json:"source_ip"`
	Username  string `json:"username"`
	EventType string `json:"event_type"`
	Country   string `json:"country,omitempty"`
	RawLine   string `json:"raw_line,omitempty"`
}

// JSONLParser reads pre-structured events, one JSON object per line. This
// is the batch interchange format: the demo generator can emit it and the
// score command replays it.
type JSONLParser struct{}

func NewJSONLParser() *JSONLParser {
	return &JSONLParser{}
}

func (p *JSONLParser) Parse(line string) (*domain.Event, error) {
	if len(line) > maxLineLength {
		line = line[:maxLineLength]
	}
	if len(line) < 2 || line[0] != '{' {
		return nil, ErrUnparsableLine
	}

	var raw jsonEvent
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, ErrUnparsableLine
	}

	ev := &domain.Event{
		SourceIP:  raw.SourceIP,
		Username:  raw.Username,
		EventType: domain.ParseEventType(raw.EventType),
		Country:   raw.Country,
		RawLine:   raw.RawLine,
	}
	if ev.RawLine == "" {
		ev.RawLine = strings.Clone(line)
	}

	if raw.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp); err == nil {
			ev.Timestamp = ts
		}
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	if ev.SourceIP != "" {
		addr, err := netip.ParseAddr(ev.SourceIP)
		if err != nil {
			return nil, ErrUnparsableLine
		}
		ev.SourceIP = addr.String()
	}

	ev.Normalize()
	return ev, nil
}

func (p *JSONLParser) Format() string {
	return "jsonl"
}

func (p *JSONLParser) Validate(line string) bool {
	return len(line) > 2 && line[0] == '{' && line[len(line)-1] == '}'
}

type AutoDetectParser struct {
	jsonParser *JSONLParser
	authParser *AuthLogParser
}

func NewAutoDetectParser() *AutoDetectParser {
	return &AutoDetectParser{
		jsonParser: NewJSONLParser(),
		authParser: NewAuthLogParser(),
	}
}

func (p *AutoDetectParser) Parse(line string) (*domain.Event, error) {
	if len(line) > 0 && line[0] == '{' {
		ev, err := p.jsonParser.Parse(line)
		if err == nil {
			return ev, nil
		}
	}
	return p.authParser.Parse(line)
}

func (p *AutoDetectParser) Format() string {
	return "auto"
}

func (p *AutoDetectParser) Validate(line string) bool {
	return p.jsonParser.Validate(line) || p.authParser.Validate(line)
}
