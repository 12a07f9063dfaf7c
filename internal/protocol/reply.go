package protocol

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ReplyKind classifies a wire line as success or error.
type ReplyKind int

const (
	ReplySuccess ReplyKind = iota
	ReplyError
)

func (k ReplyKind) String() string {
	switch k {
	case ReplySuccess:
		return "success"
	case ReplyError:
		return "error"
	default:
		return fmt.Sprintf("ReplyKind(%d)", int(k))
	}
}

// Reply is one parsed reply line. Body holds the text after the prefix,
// or the whole line for an unprefixed reply.
type Reply struct {
	Kind ReplyKind
	Code ErrorCode
	Body string
}

// replyPattern accepts both reply dialects: the current firmware writes
// "ACK-300 body", older firmware writes "ERR-204: body" with a colon after
// the error code.
var replyPattern = regexp.MustCompile(`^(ACK|ERR)-(\d{3}):? +(.*)$`)

// ParseReply classifies one reply line, stripped of its terminator. A line
// with no recognizable ACK/ERR prefix is an unprefixed success whose body
// is the whole line, as written by older firmware for replies like "EMP".
func ParseReply(line string) (Reply, error) {
	line = strings.TrimRight(line, "\r\n")
	m := replyPattern.FindStringSubmatch(line)
	if m == nil {
		return Reply{Kind: ReplySuccess, Code: CodeNoError, Body: line}, nil
	}
	code, err := strconv.Atoi(m[2])
	if err != nil {
		return Reply{}, fmt.Errorf("%w: code %q in %q", ErrMalformedReply, m[2], line)
	}
	kind := ReplySuccess
	if m[1] == "ERR" {
		kind = ReplyError
	}
	return Reply{Kind: kind, Code: ErrorCode(code), Body: m[3]}, nil
}

// ReplyToError maps an error reply to its typed error, nil for success.
// The busy rejection code yields the DeviceBusyError subtype.
func ReplyToError(r Reply) error {
	if r.Kind != ReplyError {
		return nil
	}
	if r.Code == CodeCommandRejectedBusy {
		return &DeviceBusyError{DeviceError{Code: r.Code, Reason: r.Body}}
	}
	return &DeviceError{Code: r.Code, Reason: r.Body}
}

// Status is the coarse instrument state derived from a status reply.
type Status int

const (
	StatusReady Status = iota
	StatusBusy
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "READY"
	case StatusBusy:
		return "BUSY"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// ParseStatus interprets the body of a successful status reply. Only the
// explicit busy token maps to StatusBusy; every other body, including
// action tokens like "2FACE" and "DRIFT" and firmware banners, is
// ready-equivalent. Busy instruments normally reject the status query with
// an error code instead, which callers handle before reaching here.
func ParseStatus(body string) Status {
	token, _, _ := strings.Cut(strings.TrimSpace(body), ",")
	if strings.EqualFold(strings.TrimSpace(token), "BUSY") {
		return StatusBusy
	}
	return StatusReady
}
